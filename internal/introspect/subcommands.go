package introspect

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// discovery walks the subcommand tree of one binary. It is single-use.
type discovery struct {
	a       *Analyzer
	binary  string
	visited map[string]bool
	deepest int
}

func newDiscovery(a *Analyzer, binary string) *discovery {
	return &discovery{a: a, binary: binary, visited: make(map[string]bool)}
}

// expand builds the nodes for entries listed under parent. ancestors holds
// the help texts of every node on the path, root first. Only context
// cancellation is returned as an error; per-node failures leave a node
// without options or children.
func (d *discovery) expand(ctx context.Context, parent []string, entries []SubcommandEntry, ancestors []string, depth int) ([]types.Subcommand, error) {
	if depth > d.a.maxDepth || len(entries) == 0 {
		return []types.Subcommand{}, nil
	}

	nodes := make([]types.Subcommand, 0, len(entries))
	for _, entry := range entries {
		path := append(append([]string(nil), parent...), entry.Name)
		key := strings.Join(path, "\x00")
		if d.visited[key] {
			continue
		}
		d.visited[key] = true
		if depth > d.deepest {
			d.deepest = depth
		}

		node := types.Subcommand{
			Name:         entry.Name,
			Description:  entry.Description,
			Options:      []types.Option{},
			Subcommands:  []types.Subcommand{},
			RequiredArgs: []string{},
		}

		help, err := fetchHelp(ctx, d.a.exec, d.binary, path, nodeHelpAttempts, d.a.helpTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.a.logger.WarnContext(ctx, "subcommand help unavailable",
				"binary", d.binary, "path", strings.Join(path, " "), "error", err)
			nodes = append(nodes, node)
			continue
		}

		doc := ParseHelp(help)
		if len(doc.Options) > 0 {
			node.Options = doc.Options
		}
		if args := doc.RequiredArgs(); len(args) > 0 {
			node.RequiredArgs = args
		}

		if repeatsAncestor(help, ancestors) {
			d.a.logger.DebugContext(ctx, "subcommand help repeats an ancestor, not descending",
				"path", strings.Join(path, " "))
		} else if depth < d.a.maxDepth {
			children, err := d.expand(ctx, path, doc.Subcommands, append(ancestors[:len(ancestors):len(ancestors)], help), depth+1)
			if err != nil {
				return nil, err
			}
			node.Subcommands = children
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func repeatsAncestor(help string, ancestors []string) bool {
	trimmed := strings.TrimSpace(help)
	for _, a := range ancestors {
		if strings.TrimSpace(a) == trimmed {
			return true
		}
	}
	return false
}

func logNodes(ctx context.Context, logger *slog.Logger, nodes []types.Subcommand) {
	types.WalkSubcommands(nodes, func(path []string, sc *types.Subcommand) {
		logger.DebugContext(ctx, "discovered subcommand",
			"path", strings.Join(path, " "), "options", len(sc.Options))
	})
}
