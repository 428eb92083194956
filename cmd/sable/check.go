package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/funvibe/sable/internal/cachemgr"
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/program"
	"github.com/funvibe/sable/internal/uri"
	"github.com/funvibe/sable/internal/vfs"
)

// txtarRoot is where the files of a --txtar archive are placed.
const txtarRoot = "/txtar"

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "check every source file below the given paths",
		ArgsUsage: "[paths...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "output format: text, json or lsp"},
			&cli.StringFlag{Name: "txtar", Usage: "check the files of a txtar archive instead of the disk"},
		},
		Action: checkAction,
	}
}

// project is what check analyzes: a file system, its configuration and
// the units to track.
type project struct {
	fsys    fs.FS
	cfg     *config.Options
	files   []uri.URI
	display func(uri.URI) string
}

func checkAction(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	out, ok := formats[format]
	if !ok {
		return fmt.Errorf("unknown format %q", format)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	var proj *project
	if archive := cmd.String("txtar"); archive != "" {
		proj, err = txtarProject(archive, cfg)
	} else {
		proj, err = diskProject(cmd.Args().Slice(), cfg)
	}
	if err != nil {
		return err
	}

	res, err := runCheck(ctx, proj, newLogger(cmd))
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	if err := out(w, proj, res); err != nil {
		return err
	}
	if res.errors > 0 {
		return errProblems
	}
	return nil
}

func txtarProject(archive string, cfg *config.Options) (*project, error) {
	data, err := os.ReadFile(archive)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	fsys, files := vfs.FromTxtar(data, txtarRoot)
	cfg.Roots = []string{txtarRoot}
	cfg.StubPaths = nil
	prefix := "/" + strings.TrimPrefix(txtarRoot, "/") + "/"
	return &project{
		fsys:  fsys,
		cfg:   cfg,
		files: sourceFiles(files),
		display: func(u uri.URI) string {
			return strings.TrimPrefix(u.Path(), prefix)
		},
	}, nil
}

func diskProject(paths []string, cfg *config.Options) (*project, error) {
	if len(paths) == 0 {
		paths = cfg.Roots
	}
	fsys := vfs.OS()
	var files, dirs []uri.URI
	for _, p := range paths {
		u := uri.FromPath(p)
		switch {
		case vfs.IsDir(fsys, u):
			dirs = append(dirs, u)
		case vfs.IsFile(fsys, u):
			files = append(files, u)
		default:
			return nil, fmt.Errorf("%s: no such file or directory", p)
		}
	}
	walked, err := vfs.Walk(fsys, dirs)
	if err != nil {
		return nil, err
	}
	files = append(files, walked...)

	cwd, _ := os.Getwd()
	return &project{
		fsys:  fsys,
		cfg:   cfg,
		files: sourceFiles(files),
		display: func(u uri.URI) string {
			p := u.FilePath()
			if rel, err := filepath.Rel(cwd, p); err == nil && !strings.HasPrefix(rel, "..") {
				return rel
			}
			return p
		},
	}, nil
}

func sourceFiles(uris []uri.URI) []uri.URI {
	var out []uri.URI
	for _, u := range uris {
		if config.HasSourceExt(u.Path()) {
			out = append(out, u)
		}
	}
	return out
}

type checkResult struct {
	diags    map[uri.URI][]*diagnostics.DiagnosticError
	files    []uri.URI
	errors   int
	warnings int
	elapsed  time.Duration
	heap     uint64
}

// runCheck tracks every file of proj and analyzes until nothing is dirty,
// relieving memory pressure between steps.
func runCheck(ctx context.Context, proj *project, logger *slog.Logger) (*checkResult, error) {
	start := time.Now()
	mgr := cachemgr.New(cachemgr.WithHeapLimit(proj.cfg.Memory.HeapLimitBytes))
	p := program.New(program.Options{FS: proj.fsys, Config: proj.cfg, Logger: logger, CacheManager: mgr})
	defer p.Close()
	p.SetTrackedFiles(proj.files)

	for step := 0; ; step++ {
		more, err := p.Analyze(ctx)
		if err != nil {
			return nil, err
		}
		if p.HandleMemoryHighUsage() {
			logger.Debug("caches evicted", "step", step)
		}
		if !more {
			break
		}
	}

	res := &checkResult{
		diags: make(map[uri.URI][]*diagnostics.DiagnosticError),
		files: proj.files,
	}
	for _, u := range proj.files {
		ds := p.GetDiagnostics(u)
		if len(ds) == 0 {
			continue
		}
		res.diags[u] = ds
		for _, d := range ds {
			if d.Severity == diagnostics.SeverityError {
				res.errors++
			} else {
				res.warnings++
			}
		}
	}
	res.elapsed = time.Since(start)
	res.heap, _ = mgr.HeapUsage()
	stats := p.Stats()
	logger.Debug("check finished", "files", len(proj.files), "parses", stats.Parses, "binds", stats.Binds, "checks", stats.Checks, "elapsed", res.elapsed)
	return res, nil
}

type formatter func(w io.Writer, proj *project, res *checkResult) error

var formats = map[string]formatter{
	"text": writeText,
	"json": writeJSON,
	"lsp":  writeLSP,
}
