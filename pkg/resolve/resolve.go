// Package resolve turns a build request into a closed dependency graph.
//
// A request names one target package plus optional version constraints and
// variant axes. A Resolver expands it against the recipe catalog into a
// Graph whose nodes carry everything downstream stages need: concrete
// identities, resolved dependency edges, and the recipe's build entry
// point. The Client wraps a Resolver with validation, caching, and the
// closure check that every downstream stage relies on.
package resolve

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmarlow/cookery/pkg/cache"
	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/recipe"
)

// Node is one concrete package build in a resolved graph. Dependency
// edges reference other nodes by identity; Graph.Validate guarantees
// every referenced identity is present.
type Node struct {
	ID            recipe.Identity
	Variant       recipe.Variant
	Requires      []recipe.Identity // runtime dependencies
	BuildRequires []recipe.Identity // build-time dependencies, drive plan ordering
	Build         recipe.BuildSpec
	Source        *recipe.SourceSpec
	RecipeDir     string
}

// Graph is a resolved, closed dependency graph rooted at the requested
// package. Read-only after resolution.
type Graph struct {
	Root  recipe.Identity
	Nodes map[recipe.Identity]*Node
}

// Validate checks the closure invariant: every identity referenced by a
// dependency edge must itself be a node, and the root must be present.
// A violation means the resolver is buggy and the graph cannot be trusted.
func (g *Graph) Validate() error {
	if _, ok := g.Nodes[g.Root]; !ok {
		return errors.New(errors.ErrCodeClosure, "root %s missing from resolved graph", g.Root)
	}
	for id, n := range g.Nodes {
		if id != n.ID {
			return errors.New(errors.ErrCodeClosure, "node keyed as %s carries identity %s", id, n.ID)
		}
		for _, dep := range n.Requires {
			if _, ok := g.Nodes[dep]; !ok {
				return errors.New(errors.ErrCodeClosure, "%s requires %s, which is not in the graph", id, dep)
			}
		}
		for _, dep := range n.BuildRequires {
			if _, ok := g.Nodes[dep]; !ok {
				return errors.New(errors.ErrCodeClosure, "%s build-requires %s, which is not in the graph", id, dep)
			}
		}
	}
	return nil
}

// SortedNodes returns all nodes ordered by (name, version, variant).
// Used wherever a deterministic traversal is needed.
func (g *Graph) SortedNodes() []*Node {
	nodes := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i].ID, nodes[j].ID
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Variant < b.Variant
	})
	return nodes
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.Nodes) }

// Request is a validated build request: one target package, optional
// extra version constraints, and requested variant axes.
type Request struct {
	Package     recipe.Constraint
	Constraints []recipe.Constraint
	Variant     recipe.Variant
}

// ParseRequest validates the raw CLI inputs into a Request. Constraint
// arguments of the form "key=value" are variant axes; everything else is
// a package version constraint. The first malformed argument fails the
// whole request, before any resolver contact.
func ParseRequest(pkg string, constraints []string) (Request, error) {
	target, err := recipe.ParseConstraint(pkg)
	if err != nil {
		return Request{}, err
	}

	req := Request{Package: target, Variant: recipe.Variant{}}
	for _, raw := range constraints {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return Request{}, errors.New(errors.ErrCodeInvalidConstraint, "empty constraint")
		}
		if strings.Contains(raw, "=") && !strings.ContainsAny(raw, "@<>^~") {
			key, value, err := recipe.ParseVariantPair(raw)
			if err != nil {
				return Request{}, err
			}
			if prev, ok := req.Variant[key]; ok && prev != value {
				return Request{}, errors.New(errors.ErrCodeInvalidConstraint,
					"variant axis %q requested as both %q and %q", key, prev, value)
			}
			req.Variant[key] = value
			continue
		}
		c, err := recipe.ParseConstraint(raw)
		if err != nil {
			return Request{}, err
		}
		req.Constraints = append(req.Constraints, c)
	}
	return req, nil
}

// Hash returns a stable digest of the request, used as a cache key
// component. Constraint order does not affect the hash.
func (r Request) Hash() string {
	cons := make([]string, 0, len(r.Constraints))
	for _, c := range r.Constraints {
		cons = append(cons, c.String())
	}
	sort.Strings(cons)
	payload := r.Package.String() + "\n" + strings.Join(cons, "\n") + "\n" + r.Variant.Canon()
	return cache.Hash([]byte(payload))
}

// String renders the request for logging.
func (r Request) String() string {
	parts := []string{r.Package.String()}
	for _, c := range r.Constraints {
		parts = append(parts, c.String())
	}
	if len(r.Variant) > 0 {
		parts = append(parts, r.Variant.String())
	}
	return strings.Join(parts, " ")
}

// Resolver expands a request into a dependency graph using the catalog.
type Resolver interface {
	// Name identifies the resolver in logs and cache keys.
	Name() string

	// Resolve returns the closed dependency graph for the request, a
	// *Conflict (wrapped under DEPENDENCY_CONFLICT) when constraints
	// cannot be satisfied together, or an error.
	Resolve(ctx context.Context, req Request, cat *recipe.Catalog) (*Graph, error)
}

// ConflictEntry describes one irreconcilable requirement pair.
type ConflictEntry struct {
	Package  string `json:"package"`  // the contested package name
	Wanted   string `json:"wanted"`   // the requirement that could not be met
	Clashing string `json:"clashing"` // what it clashes with
	Origin   string `json:"origin"`   // who stated the requirement
}

// Conflict is a resolution failure caused by contradictory constraints.
// It is a legitimate solver outcome, reported to the user verbatim so
// they can add a disambiguating constraint.
type Conflict struct {
	Entries []ConflictEntry `json:"entries"`
}

// Error implements the error interface.
func (c *Conflict) Error() string {
	lines := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		lines = append(lines, fmt.Sprintf("%s: %s (from %s) conflicts with %s", e.Package, e.Wanted, e.Origin, e.Clashing))
	}
	return "dependency conflict:\n  " + strings.Join(lines, "\n  ")
}

// WrapConflict wraps a conflict under the DEPENDENCY_CONFLICT code so
// callers can classify it while AsConflict still recovers the details.
func WrapConflict(c *Conflict) error {
	return errors.Wrap(errors.ErrCodeConflict, c, "cannot satisfy all constraints")
}

// AsConflict extracts conflict details from an error chain, if present.
func AsConflict(err error) (*Conflict, bool) {
	var c *Conflict
	if stderrors.As(err, &c) {
		return c, true
	}
	return nil, false
}
