package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

var errLibraryNotFound = errors.New("onnxruntime shared library not found")

// sharedLibraryName returns the runtime library file name for goos.
func sharedLibraryName(goos string) string {
	switch goos {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// librarySearchDirs lists where the runtime library is looked for when no
// path is configured: next to the binary first, then the system paths.
func librarySearchDirs() []string {
	dirs := []string{"lib"}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "lib"))
	}
	if runtime.GOOS != "windows" {
		dirs = append(dirs, "/usr/local/lib", "/usr/lib")
	}
	return dirs
}

// resolveLibrary returns the configured library path if it exists, or the
// first match in dirs.
func resolveLibrary(configured string, dirs []string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: %v", errLibraryNotFound, err)
		}
		return filepath.Abs(configured)
	}

	name := sharedLibraryName(runtime.GOOS)
	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return filepath.Abs(path)
		}
	}
	return "", fmt.Errorf("%w: %s not in %v", errLibraryNotFound, name, dirs)
}

// initRuntime loads the runtime library and initializes the environment.
// The returned func tears the environment down.
func initRuntime(libPath string) (func() error, error) {
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return ort.DestroyEnvironment, nil
}
