package main

import (
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// hostCapabilities describes the vector extensions ONNX Runtime can use on
// this host, logged at startup to explain inference latency differences.
func hostCapabilities() []zap.Field {
	fields := []zap.Field{
		zap.String("goos", runtime.GOOS),
		zap.String("goarch", runtime.GOARCH),
		zap.Int("num_cpu", runtime.NumCPU()),
		zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)),
	}

	switch runtime.GOARCH {
	case "amd64", "386":
		fields = append(fields,
			zap.Bool("sse41", cpu.X86.HasSSE41),
			zap.Bool("avx2", cpu.X86.HasAVX2),
			zap.Bool("avx512f", cpu.X86.HasAVX512F),
			zap.Bool("fma", cpu.X86.HasFMA),
		)
	case "arm64":
		fields = append(fields,
			zap.Bool("asimd", cpu.ARM64.HasASIMD),
			zap.Bool("sve", cpu.ARM64.HasSVE),
		)
	}
	return fields
}
