package detections

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// Platform describes the host as seen by the ONNX runtime adapter.
type Platform struct {
	GOOS       string
	GOARCH     string
	LibraryDir string
	Features   []string
}

// DetectPlatform inspects the CPU and the directory holding the ONNX Runtime
// shared library, where execution provider libraries are expected to live.
func DetectPlatform(libraryPath string) Platform {
	return Platform{
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		LibraryDir: filepath.Dir(libraryPath),
		Features:   cpuFeatures(),
	}
}

func cpuFeatures() []string {
	var f []string
	add := func(ok bool, name string) {
		if ok {
			f = append(f, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasAVX512F, "avx512f")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasSSE41, "sse4.1")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasASIMDHP, "asimdhp")
		add(cpu.ARM64.HasASIMDDP, "asimddp")
		add(cpu.ARM64.HasFPHP, "fphp")
	}
	return f
}

func (p Platform) String() string {
	features := "none"
	if len(p.Features) > 0 {
		features = strings.Join(p.Features, ",")
	}
	return fmt.Sprintf("%s/%s cpu=[%s]", p.GOOS, p.GOARCH, features)
}

// ProviderLibrary is the file name ONNX Runtime loads for a provider.
func (p Platform) ProviderLibrary(provider string) string {
	switch p.GOOS {
	case "windows":
		return fmt.Sprintf("onnxruntime_providers_%s.dll", provider)
	case "darwin":
		return fmt.Sprintf("libonnxruntime_providers_%s.dylib", provider)
	default:
		return fmt.Sprintf("libonnxruntime_providers_%s.so", provider)
	}
}

// HasProvider reports whether the provider library and the shared provider
// bridge sit next to the runtime library.
func (p Platform) HasProvider(provider string) error {
	for _, name := range []string{p.ProviderLibrary("shared"), p.ProviderLibrary(provider)} {
		path := filepath.Join(p.LibraryDir, name)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrBackendLibrariesMissing, path)
		}
	}
	return nil
}
