package classification

import (
	"errors"
	"fmt"
)

// Kind identifies which stage of the pipeline failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindModelMissing
	KindModelLoad
	KindDecode
	KindInference
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindModelMissing:
		return "model_missing"
	case KindModelLoad:
		return "model_load"
	case KindDecode:
		return "decode"
	case KindInference:
		return "inference"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

var ErrModelNotFound = errors.New("model not found")

// Error carries the failing stage alongside the underlying cause. Error()
// returns the cause's message unchanged so it can be echoed to clients.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func modelNotFound(path string) error {
	return newError(KindModelMissing, "loader.ensure", fmt.Errorf("%w at %s", ErrModelNotFound, path))
}
