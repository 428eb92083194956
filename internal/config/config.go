package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Options is the project configuration read from sable.yaml or sable.toml.
type Options struct {
	// Roots are the directories searched for absolute imports and, by the
	// CLI, walked for files to check. Relative roots are resolved against
	// the directory holding the config file.
	Roots []string `yaml:"roots" toml:"roots"`

	// StubPaths are searched before Roots when resolving imports.
	StubPaths []string `yaml:"stubPaths,omitempty" toml:"stubPaths,omitempty"`

	Memory   MemoryOptions   `yaml:"memory" toml:"memory"`
	Analysis AnalysisOptions `yaml:"analysis" toml:"analysis"`
}

type MemoryOptions struct {
	// HighUsageThreshold is the usage ratio in (0, 1] above which
	// HandleMemoryHighUsage evicts derived caches.
	HighUsageThreshold float64 `yaml:"highUsageThreshold,omitempty" toml:"highUsageThreshold,omitempty"`
	// HeapLimitBytes is the denominator of the heap usage ratio.
	HeapLimitBytes uint64 `yaml:"heapLimitBytes,omitempty" toml:"heapLimitBytes,omitempty"`
}

type AnalysisOptions struct {
	// CheckOnlyOpenFiles skips the checker for tracked units that are not open.
	CheckOnlyOpenFiles bool `yaml:"checkOnlyOpenFiles,omitempty" toml:"checkOnlyOpenFiles,omitempty"`
	// MaxWorkPerCall bounds how many units one Analyze call processes (default 1).
	MaxWorkPerCall int `yaml:"maxWorkPerCall,omitempty" toml:"maxWorkPerCall,omitempty"`
}

// Default returns options rooted at the current directory.
func Default() *Options {
	o := &Options{Roots: []string{"."}}
	o.setDefaults()
	return o
}

// Load reads and parses a config file; the format follows the extension.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	opts, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	opts.resolveRelative(filepath.Dir(path))
	return opts, nil
}

func formatOf(path string) string {
	if strings.HasSuffix(path, ".toml") {
		return "toml"
	}
	return "yaml"
}

// Parse decodes config content. format is "yaml" or "toml".
func Parse(data []byte, format string) (*Options, error) {
	var opts Options
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return nil, err
		}
	case "toml":
		if err := toml.Unmarshal(data, &opts); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	opts.setDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Discover searches for sable.yaml or sable.toml starting from dir and
// walking up to parent directories. It returns "" when none exists.
func Discover(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range []string{ConfigFileYAML, ConfigFileTOML} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (o *Options) setDefaults() {
	if len(o.Roots) == 0 {
		o.Roots = []string{"."}
	}
	if o.Memory.HighUsageThreshold == 0 {
		o.Memory.HighUsageThreshold = DefaultHighUsageThreshold
	}
	if o.Memory.HeapLimitBytes == 0 {
		o.Memory.HeapLimitBytes = heapLimit()
	}
	if o.Analysis.MaxWorkPerCall <= 0 {
		o.Analysis.MaxWorkPerCall = 1
	}
}

// heapLimit uses the runtime soft memory limit when one is set.
func heapLimit() uint64 {
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
		return uint64(limit)
	}
	return DefaultHeapLimitBytes
}

func (o *Options) resolveRelative(base string) {
	for i, r := range o.Roots {
		if !filepath.IsAbs(r) {
			o.Roots[i] = filepath.Join(base, r)
		}
	}
	for i, s := range o.StubPaths {
		if !filepath.IsAbs(s) {
			o.StubPaths[i] = filepath.Join(base, s)
		}
	}
}

// Validate checks the options for semantic errors.
func (o *Options) Validate() error {
	if len(o.Roots) == 0 {
		return fmt.Errorf("roots: at least one root is required")
	}
	for i, r := range o.Roots {
		if r == "" {
			return fmt.Errorf("roots[%d]: empty path", i)
		}
	}
	if t := o.Memory.HighUsageThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("memory.highUsageThreshold: %v is outside (0, 1]", t)
	}
	if o.Analysis.MaxWorkPerCall < 0 {
		return fmt.Errorf("analysis.maxWorkPerCall: must not be negative")
	}
	return nil
}
