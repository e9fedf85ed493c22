package classification

// Layout is the memory order of the model's image input.
type Layout int

const (
	NHWC Layout = iota
	NCHW
)

func (l Layout) String() string {
	if l == NCHW {
		return "NCHW"
	}
	return "NHWC"
}

type Size struct {
	Width  int
	Height int
}

// InputSpec describes the tensor a model expects for one image.
type InputSpec struct {
	Size   Size
	Layout Layout
	// FromModel is false when Size came from the fallback.
	FromModel bool
}

// Shape returns the batch-of-one tensor shape for the spec.
func (s InputSpec) Shape() []int64 {
	h, w := int64(s.Size.Height), int64(s.Size.Width)
	if s.Layout == NCHW {
		return []int64{1, Channels, h, w}
	}
	return []int64{1, h, w, Channels}
}

func (s InputSpec) Elements() int {
	return s.Size.Width * s.Size.Height * Channels
}

// ResolveInput derives the target size and layout from a model's declared
// input dimensions. Dynamic (non-positive) spatial dimensions or shapes of
// rank below four fall back to the given size.
func ResolveInput(dims []int64, fallback Size) InputSpec {
	spec := InputSpec{Size: fallback, Layout: NHWC}
	if len(dims) < 4 {
		return spec
	}

	h, w := dims[1], dims[2]
	if dims[3] != Channels && dims[1] == Channels {
		spec.Layout = NCHW
		h, w = dims[2], dims[3]
	}

	if h > 0 && w > 0 {
		spec.Size = Size{Width: int(w), Height: int(h)}
		spec.FromModel = true
	}
	return spec
}
