package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// edgeGraph is an in-memory parent oracle loaded from a text edge list:
// one line per commit, "name parent1,parent2,...". A commit with no
// parents is written as just its name. Lines starting with '#' and
// blank lines are ignored. The last line names the default head.
type edgeGraph struct {
	parents map[string][][]byte
	order   []string
}

func loadEdgeGraph(path string) (*edgeGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open edge list %s: %w", path, err)
	}
	defer f.Close()

	g := &edgeGraph{parents: make(map[string][][]byte)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		name := fields[0]
		var parents [][]byte
		if len(fields) > 1 {
			for _, p := range strings.Split(fields[1], ",") {
				p = strings.TrimSpace(p)
				if p != "" {
					parents = append(parents, []byte(p))
				}
			}
		}
		if _, seen := g.parents[name]; !seen {
			g.order = append(g.order, name)
		}
		g.parents[name] = parents
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read edge list %s: %w", path, err)
	}
	return g, nil
}

// lookup implements idmap.ParentsByName over the parsed edge list.
func (g *edgeGraph) lookup(name []byte) ([][]byte, error) {
	parents, ok := g.parents[string(name)]
	if !ok {
		return nil, fmt.Errorf("name %q not found in edge list", string(name))
	}
	return parents, nil
}

// defaultHead returns the last name defined in the edge list, used
// when --head is omitted.
func (g *edgeGraph) defaultHead() (string, error) {
	if len(g.order) == 0 {
		return "", fmt.Errorf("edge list is empty")
	}
	return g.order[len(g.order)-1], nil
}
