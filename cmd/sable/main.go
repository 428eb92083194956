// Command sable checks Python-like sources and serves the analysis engine
// to other processes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/config"
)

// version can be set at build time with -ldflags "-X main.version=v1.2.3".
var version = "dev"

// errProblems is returned by check when error diagnostics were reported.
var errProblems = errors.New("problems found")

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, errProblems) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "sable:", err)
		os.Exit(2)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "sable",
		Usage: "incremental static type analysis",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (default: discover sable.yaml or sable.toml)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging on stderr"},
		},
		Commands: []*cli.Command{
			checkCommand(),
			typeCommand(),
			serveCommand(),
			{
				Name:   "version",
				Usage:  "print the sable version",
				Action: versionAction,
			},
		},
	}
}

// newLogger installs the stderr logger selected by --verbose.
func newLogger(cmd *cli.Command) *slog.Logger {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.Root().ErrWriter, &slog.HandlerOptions{Level: level}))
	assert.SetLogger(logger)
	return logger
}

// loadConfig reads --config, or the nearest config file above the working
// directory, or the defaults.
func loadConfig(cmd *cli.Command) (*config.Options, error) {
	path := cmd.String("config")
	if path == "" {
		found, err := config.Discover(".")
		if err != nil {
			return nil, err
		}
		path = found
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
