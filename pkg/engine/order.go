package engine

import (
	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/config"
	"github.com/pronovic/cedarbackup/pkg/graph"
)

// defaultOrder is the built-in action sequence per spec.md §5
// ("actions execute strictly in topological order"). rebuild is
// mutually exclusive with store at the call site, never both.
var defaultOrder = []string{"collect", "stage", "store", "purge"}

// BuildActionOrder resolves the order in which requested actions must
// run, splicing any configured extensions in via their before/after
// edges (spec.md §4.7) and returning a topological sort. A graph cycle
// surfaces as a configuration error naming the conflict.
func BuildActionOrder(requested []string, extensions *config.ExtensionsConfig) ([]string, error) {
	g, err := graph.New("actions")
	if err != nil {
		return nil, cerrors.WrapConfig(err, "error creating action graph")
	}

	wanted := make(map[string]bool, len(requested))
	for _, name := range requested {
		wanted[name] = true
	}

	var included []string
	for _, name := range defaultOrder {
		if wanted[name] {
			included = append(included, name)
		}
	}
	if wanted["rebuild"] {
		included = append(included, "rebuild")
	}
	if wanted["validate"] {
		included = append(included, "validate")
	}

	for _, name := range included {
		if err := g.CreateVertex(name); err != nil {
			return nil, cerrors.WrapConfig(err, "error adding action "+name)
		}
	}
	for i := 0; i+1 < len(included); i++ {
		if err := g.CreateEdge(included[i], included[i+1]); err != nil {
			return nil, cerrors.WrapConfig(err, "error ordering actions")
		}
	}

	if extensions != nil {
		for _, action := range extensions.Actions {
			if err := g.CreateVertex(action.Name); err != nil {
				return nil, cerrors.WrapConfig(err, "error adding extension "+action.Name)
			}
		}
		for _, action := range extensions.Actions {
			for _, before := range action.Before {
				if err := g.CreateEdge(action.Name, before); err != nil {
					return nil, cerrors.WrapConfig(err, "error wiring extension "+action.Name)
				}
			}
			for _, after := range action.After {
				if err := g.CreateEdge(after, action.Name); err != nil {
					return nil, cerrors.WrapConfig(err, "error wiring extension "+action.Name)
				}
			}
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, cerrors.WrapConfig(err, "action order contains a cycle")
	}
	return order, nil
}
