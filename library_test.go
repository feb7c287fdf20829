package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedLibraryName(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", sharedLibraryName("linux"))
	assert.Equal(t, "libonnxruntime.dylib", sharedLibraryName("darwin"))
	assert.Equal(t, "onnxruntime.dll", sharedLibraryName("windows"))
}

func TestResolveLibrary(t *testing.T) {
	empty := t.TempDir()
	withLib := t.TempDir()
	lib := filepath.Join(withLib, sharedLibraryName(runtime.GOOS))
	require.NoError(t, os.WriteFile(lib, nil, 0o600))

	t.Run("searched", func(t *testing.T) {
		got, err := resolveLibrary("", []string{empty, withLib})
		require.NoError(t, err)
		assert.Equal(t, lib, got)
	})

	t.Run("configured", func(t *testing.T) {
		got, err := resolveLibrary(lib, nil)
		require.NoError(t, err)
		assert.Equal(t, lib, got)
	})

	t.Run("configured missing", func(t *testing.T) {
		_, err := resolveLibrary(filepath.Join(empty, "nope.so"), []string{withLib})
		assert.ErrorIs(t, err, errLibraryNotFound)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := resolveLibrary("", []string{empty})
		assert.ErrorIs(t, err, errLibraryNotFound)
	})
}
