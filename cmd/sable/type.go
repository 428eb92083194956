package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/cachemgr"
	"github.com/funvibe/sable/internal/program"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
	"github.com/funvibe/sable/internal/vfs"
)

func typeCommand() *cli.Command {
	return &cli.Command{
		Name:      "type",
		Usage:     "print the type of the expression at a position",
		ArgsUsage: "FILE:LINE:COL",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "hover", Usage: "print the hover text, including documentation"},
		},
		Action: typeAction,
	}
}

type position struct {
	path      string
	line, col int
}

// parsePosition splits FILE:LINE:COL. The file part may itself contain
// colons.
func parsePosition(s string) (position, error) {
	var pos position
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return pos, fmt.Errorf("%q: want FILE:LINE:COL", s)
	}
	j := strings.LastIndex(s[:i], ":")
	if j <= 0 {
		return pos, fmt.Errorf("%q: want FILE:LINE:COL", s)
	}
	line, err := strconv.Atoi(s[j+1 : i])
	if err != nil || line < 1 {
		return pos, fmt.Errorf("%q: bad line", s)
	}
	col, err := strconv.Atoi(s[i+1:])
	if err != nil || col < 1 {
		return pos, fmt.Errorf("%q: bad column", s)
	}
	return position{path: s[:j], line: line, col: col}, nil
}

func typeAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("type takes exactly one FILE:LINE:COL argument")
	}
	pos, err := parsePosition(cmd.Args().First())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(pos.path)
	if err != nil {
		return err
	}
	// Imports next to the file resolve like a script's.
	cfg.Roots = append([]string{filepath.Dir(abs)}, cfg.Roots...)

	fsys := vfs.OS()
	u := uri.FromPath(abs)
	if !vfs.IsFile(fsys, u) {
		return fmt.Errorf("%s: no such file", pos.path)
	}
	p := program.New(program.Options{
		FS:           fsys,
		Config:       cfg,
		Logger:       newLogger(cmd),
		CacheManager: cachemgr.New(cachemgr.WithHeapLimit(cfg.Memory.HeapLimitBytes)),
	})
	defer p.Close()
	p.AddTrackedFile(u)

	var text string
	if cmd.Bool("hover") {
		text, err = p.GetHoverText(ctx, u, pos.line, pos.col)
	} else {
		var n ast.Node
		var t typesystem.Type
		n, t, err = p.GetTypeAtPosition(ctx, u, pos.line, pos.col)
		if n != nil {
			text = typesystem.Print(t)
		}
	}
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("%s:%d:%d: nothing to describe", pos.path, pos.line, pos.col)
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, text)
	return err
}
