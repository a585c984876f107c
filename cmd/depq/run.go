package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/depq/internal/compiler"
	"github.com/standardbeagle/depq/internal/query"
	"github.com/standardbeagle/depq/internal/runconfig"
	"github.com/standardbeagle/depq/internal/treebank"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "run a structural pattern query against one or more treebank files",
	ArgsUsage: "<path-glob> [path-glob...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "query",
			Aliases: []string{"q"},
			Usage:   "pattern source: a literal query string, or a path to a file containing one",
		},
		&cli.BoolFlag{
			Name:  "ordered",
			Usage: "force strictly ordered (single-worker) iteration, overriding config",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "file-level worker pool size (default: config value, or GOMAXPROCS)",
		},
		&cli.IntFlag{
			Name:  "depth",
			Usage: "override the descendant/ancestor scan depth limit",
		},
		&cli.BoolFlag{
			Name:  "count-only",
			Usage: "print only the total match count, not individual bindings",
		},
	},
	Action: runAction,
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	querySrc := c.String("query")
	if querySrc == "" {
		return cli.Exit("depq run: --query is required", 1)
	}
	queryText, err := resolveQueryText(querySrc)
	if err != nil {
		return fmt.Errorf("failed to read query: %w", err)
	}

	ast, err := query.Parse(queryText)
	if err != nil {
		return fmt.Errorf("query parse failed: %w", err)
	}

	paths, err := expandCorpusPaths(c.Args().Slice(), cfg)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return cli.Exit("depq run: no corpus files matched the given paths and no config default is set", 1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tb := treebank.New(paths, treebank.WithWorkers(cfg.Workers), treebank.WithDepthLimit(cfg.DepthLimit))

	// A second compile against the same Pool just to recover the variable
	// names for display; Treebank.Matches compiles its own copy
	// internally and the two never need to agree on anything but names.
	prog, err := compiler.New(tb.Pool()).Compile(ast)
	if err != nil {
		return fmt.Errorf("query compile failed: %w", err)
	}

	ordered := cfg.Ordered
	if c.IsSet("ordered") {
		ordered = c.Bool("ordered")
	}

	if c.Bool("count-only") {
		return countMatches(ctx, tb, ast, ordered)
	}
	return printMatches(ctx, tb, ast, ordered, prog.VarNames)
}

// resolveQueryText treats src as a file path when it names a readable
// file, and as a literal query otherwise.
func resolveQueryText(src string) (string, error) {
	if content, err := os.ReadFile(src); err == nil {
		return string(content), nil
	}
	return src, nil
}

// expandCorpusPaths resolves positional glob patterns into concrete file
// paths with doublestar, falling back to the loaded config's Paths (or
// Root, treated as a single pattern) when no positional arguments were
// given.
func expandCorpusPaths(patterns []string, cfg *runconfig.Config) ([]string, error) {
	if len(patterns) == 0 {
		if len(cfg.Paths) > 0 {
			patterns = cfg.Paths
		} else if cfg.Root != "" {
			patterns = []string{cfg.Root}
		}
	}

	var out []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			// A literal path with no glob metacharacters that simply
			// doesn't exist yet is reported as a FileOpen error once
			// Treebank tries to read it; pass it through unchanged.
			matches = []string{pattern}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func countMatches(ctx context.Context, tb *treebank.Treebank, ast *query.AST, ordered bool) error {
	var n, failed int
	for _, err := range tb.Matches(ctx, ast, ordered) {
		if err != nil {
			fmt.Fprintln(os.Stderr, "depq:", err)
			failed++
			continue
		}
		n++
	}
	fmt.Println(n)
	if failed > 0 {
		return fmt.Errorf("%d input error(s) while reading the corpus", failed)
	}
	return nil
}

func printMatches(ctx context.Context, tb *treebank.Treebank, ast *query.AST, ordered bool, varNames []string) error {
	var failed int
	for m, err := range tb.Matches(ctx, ast, ordered) {
		if err != nil {
			fmt.Fprintln(os.Stderr, "depq:", err)
			failed++
			continue
		}
		fmt.Println(formatMatch(tb, m, varNames))
	}
	if failed > 0 {
		return fmt.Errorf("%d input error(s) while reading the corpus", failed)
	}
	return nil
}

func formatMatch(tb *treebank.Treebank, m treebank.Match, varNames []string) string {
	var sb strings.Builder
	sb.WriteString(m.Tree.Text)
	sb.WriteString("\t")
	for i, idx := range m.Match.Bindings {
		if i > 0 {
			sb.WriteString(" ")
		}
		tok := m.Tree.Tokens[idx]
		form, _ := tb.Pool().Resolve(tok.Form)
		name := ""
		if i < len(varNames) {
			name = varNames[i]
		}
		fmt.Fprintf(&sb, "%s=%d:%s", name, tok.ID, form)
	}
	return sb.String()
}
