package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/depq/internal/runconfig"
)

// Version is set at release time; the development default mirrors the
// placeholder other depq-adjacent tools ship before their first tag.
var Version = "0.1.0-dev"

func loadConfigWithOverrides(c *cli.Context) (*runconfig.Config, error) {
	root := c.String("root")
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}

	var cfg *runconfig.Config
	if path := c.String("config"); path != "" {
		cfg, err = runconfig.LoadFile(path)
	} else {
		cfg, err = runconfig.Load(absRoot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if workers := c.Int("workers"); workers > 0 {
		cfg.Workers = workers
	}
	if depth := c.Int("depth"); depth > 0 {
		cfg.DepthLimit = depth
	}
	if c.IsSet("ordered") {
		cfg.Ordered = c.Bool("ordered")
	}
	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:                   "depq",
		Usage:                  "structural pattern queries over dependency-parsed treebanks",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: fmt.Sprintf("path to %s (default: <root>/%s)", runconfig.FileName, runconfig.FileName),
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "project root used to locate the config file; corpus paths are resolved relative to the working directory",
				Value: ".",
			},
		},
		Commands: []*cli.Command{
			runCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "depq:", err)
		os.Exit(1)
	}
}
