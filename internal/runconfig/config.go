// Package runconfig loads the optional .depq.kdl run configuration file,
// the way this codebase's sibling tool loads its own .lci.kdl: best
// effort, sensible defaults when the file is absent, CLI flags always
// win over whatever it sets.
package runconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// FileName is the configuration file looked up relative to a project
// root, mirroring .lci.kdl's role for the teacher tool.
const FileName = ".depq.kdl"

// Config holds every setting the CLI and Treebank construction need that
// isn't supplied on the command line.
type Config struct {
	// Root is the default corpus root/path, used when the CLI receives
	// no positional file arguments.
	Root string
	// Paths lists specific corpus files, used instead of Root when set.
	Paths []string
	// Workers overrides the file-level worker-pool size; 0 means
	// runtime.GOMAXPROCS(0).
	Workers int
	// DepthLimit overrides vm.DefaultDepthLimit for descendant/ancestor
	// scans; 0 keeps the VM's own default.
	DepthLimit int
	// Ordered is the CLI's default for --ordered when the flag is not
	// passed explicitly.
	Ordered bool
}

// Default returns the configuration used when no .depq.kdl file exists.
func Default() *Config {
	return &Config{
		Workers:    runtime.GOMAXPROCS(0),
		DepthLimit: 0,
		Ordered:    false,
	}
}

// Load reads projectRoot/.depq.kdl. A missing file is not an error: Load
// returns Default() instead, matching config.LoadKDL's "no KDL config
// found, use defaults" behavior.
func Load(projectRoot string) (*Config, error) {
	return LoadFile(filepath.Join(projectRoot, FileName))
}

// LoadFile reads an explicit config file path (e.g. from a CLI --config
// flag) instead of the default <root>/.depq.kdl location. A missing file
// is still not an error; Load and LoadFile share that behavior.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parse(string(content))
}

func parse(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "root":
			if s, ok := firstStringArg(n); ok {
				cfg.Root = s
			}
		case "paths":
			cfg.Paths = append(cfg.Paths, collectStringArgs(n)...)
		case "workers":
			if v, ok := firstIntArg(n); ok {
				cfg.Workers = v
			}
		case "depth":
			if v, ok := firstIntArg(n); ok {
				cfg.DepthLimit = v
			}
		case "ordered":
			if b, ok := firstBoolArg(n); ok {
				cfg.Ordered = b
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
