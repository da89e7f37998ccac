// Package plan orders a resolved dependency graph into an executable
// build sequence.
//
// Ordering follows build-time dependency edges only: runtime dependencies
// constrain what must exist in the install prefix, not what must be built
// first. The order is deterministic for a given graph, so repeated runs
// over unchanged inputs produce identical plans.
package plan

import (
	"sort"
	"strings"

	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/recipe"
	"github.com/jmarlow/cookery/pkg/resolve"
)

// BuildPlan is a topologically ordered build sequence: every node appears
// after all of its build-time dependencies.
type BuildPlan struct {
	Nodes []*resolve.Node
}

// Len returns the number of planned nodes.
func (p *BuildPlan) Len() int { return len(p.Nodes) }

// Identities returns the planned identities in order.
func (p *BuildPlan) Identities() []recipe.Identity {
	out := make([]recipe.Identity, len(p.Nodes))
	for i, n := range p.Nodes {
		out[i] = n.ID
	}
	return out
}

// Build orders the graph with Kahn's algorithm over build-requires edges.
// Nodes whose dependencies are all scheduled are released in (name,
// version, variant) order, which makes the plan deterministic regardless
// of map iteration. A cycle among build edges fails with GRAPH_CYCLE
// naming every node still trapped in it.
func Build(g *resolve.Graph) (*BuildPlan, error) {
	indegree := make(map[recipe.Identity]int, len(g.Nodes))
	dependents := make(map[recipe.Identity][]recipe.Identity, len(g.Nodes))

	for id, n := range g.Nodes {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		for _, dep := range n.BuildRequires {
			if dep == id {
				// A node that build-requires itself is the one-node cycle;
				// Kahn would never see it because the edge is its own back edge.
				return nil, errors.New(errors.ErrCodeCycle,
					"build dependency cycle involving %s", id)
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []recipe.Identity
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	plan := &BuildPlan{Nodes: make([]*resolve.Node, 0, len(g.Nodes))}
	for len(ready) > 0 {
		sortIdentities(ready)
		next := ready[0]
		ready = ready[1:]

		plan.Nodes = append(plan.Nodes, g.Nodes[next])
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(plan.Nodes) != len(g.Nodes) {
		var trapped []recipe.Identity
		for id, deg := range indegree {
			if deg > 0 {
				trapped = append(trapped, id)
			}
		}
		sortIdentities(trapped)
		names := make([]string, len(trapped))
		for i, id := range trapped {
			names[i] = id.String()
		}
		return nil, errors.New(errors.ErrCodeCycle,
			"build dependency cycle involving %s", strings.Join(names, ", "))
	}
	return plan, nil
}

func sortIdentities(ids []recipe.Identity) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Name != ids[j].Name {
			return ids[i].Name < ids[j].Name
		}
		if ids[i].Version != ids[j].Version {
			return ids[i].Version < ids[j].Version
		}
		return ids[i].Variant < ids[j].Variant
	})
}
