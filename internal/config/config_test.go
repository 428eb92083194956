package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYAML(t *testing.T) {
	data := []byte(`
roots: [src, lib]
stubPaths: [typings]
memory:
  highUsageThreshold: 0.75
  heapLimitBytes: 1048576
analysis:
  checkOnlyOpenFiles: true
  maxWorkPerCall: 4
`)
	opts, err := Parse(data, "yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "lib"}, opts.Roots)
	assert.Equal(t, []string{"typings"}, opts.StubPaths)
	assert.Equal(t, 0.75, opts.Memory.HighUsageThreshold)
	assert.Equal(t, uint64(1048576), opts.Memory.HeapLimitBytes)
	assert.True(t, opts.Analysis.CheckOnlyOpenFiles)
	assert.Equal(t, 4, opts.Analysis.MaxWorkPerCall)
}

func TestParseTOML(t *testing.T) {
	data := []byte(`
roots = ["src"]

[memory]
highUsageThreshold = 0.5

[analysis]
maxWorkPerCall = 2
`)
	opts, err := Parse(data, "toml")
	require.NoError(t, err)
	assert.Equal(t, []string{"src"}, opts.Roots)
	assert.Equal(t, 0.5, opts.Memory.HighUsageThreshold)
	assert.Equal(t, 2, opts.Analysis.MaxWorkPerCall)
	assert.NotZero(t, opts.Memory.HeapLimitBytes)
}

func TestDefaults(t *testing.T) {
	opts, err := Parse([]byte("{}"), "yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"."}, opts.Roots)
	assert.Equal(t, DefaultHighUsageThreshold, opts.Memory.HighUsageThreshold)
	assert.Equal(t, 1, opts.Analysis.MaxWorkPerCall)

	def := Default()
	assert.Equal(t, opts.Memory.HighUsageThreshold, def.Memory.HighUsageThreshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"threshold_too_high", "memory:\n  highUsageThreshold: 1.5\n"},
		{"threshold_negative", "memory:\n  highUsageThreshold: -0.1\n"},
		{"empty_root", "roots: ['']\n"},
		{"negative_work", "analysis:\n  maxWorkPerCall: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "yaml")
			require.Error(t, err)
		})
	}

	_, err := Parse([]byte("x"), "ini")
	require.Error(t, err)
}

func TestLoadAndDiscover(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	path, err := Discover(nested)
	require.NoError(t, err)
	assert.Empty(t, path)

	cfg := filepath.Join(dir, ConfigFileTOML)
	require.NoError(t, os.WriteFile(cfg, []byte("roots = [\"src\"]\nstubPaths = [\"/abs/stubs\"]\n"), 0o644))

	path, err = Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, cfg, path)

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "src")}, opts.Roots)
	assert.Equal(t, []string{"/abs/stubs"}, opts.StubPaths)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestSourceExt(t *testing.T) {
	assert.True(t, HasSourceExt("a/b.py"))
	assert.True(t, HasSourceExt("a/b.pyi"))
	assert.False(t, HasSourceExt("a/b.txt"))
	assert.Equal(t, "mod", TrimSourceExt("mod.pyi"))
	assert.Equal(t, "mod", TrimSourceExt("mod.py"))
}
