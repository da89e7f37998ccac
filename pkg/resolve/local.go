package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/recipe"
)

// LocalResolver resolves requests directly against the recipe catalog.
//
// The strategy is greedy: constraints are processed as a worklist and each
// package is pinned to the highest catalog version satisfying every
// constraint seen so far. A later constraint that excludes an already
// pinned version is reported as a conflict rather than triggering
// backtracking; the conflict report names both requirements and their
// origins so the user can disambiguate.
type LocalResolver struct{}

// NewLocalResolver returns the in-process catalog resolver.
func NewLocalResolver() *LocalResolver { return &LocalResolver{} }

// Name implements Resolver.
func (r *LocalResolver) Name() string { return "local" }

// originRequest marks constraints stated by the user rather than a recipe.
const originRequest = "request"

// scopedConstraint is a constraint plus who stated it.
type scopedConstraint struct {
	con    recipe.Constraint
	origin string
}

// choice is a pinned package: the selected recipe, its variant, and the
// constraints that led to the pin.
type choice struct {
	recipe  *recipe.Recipe
	variant recipe.Variant
	dir     string // variant-resolved build resource directory
	seen    []scopedConstraint
}

func (c *choice) identity() recipe.Identity {
	return c.recipe.Identity(c.variant)
}

// Resolve implements Resolver.
func (r *LocalResolver) Resolve(ctx context.Context, req Request, cat *recipe.Catalog) (*Graph, error) {
	worklist := []scopedConstraint{{con: req.Package, origin: originRequest}}
	for _, c := range req.Constraints {
		worklist = append(worklist, scopedConstraint{con: c, origin: originRequest})
	}

	chosen := make(map[string]*choice)

	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := worklist[0]
		worklist = worklist[1:]

		prev, ok := chosen[item.con.Name]
		if ok {
			// Already pinned: the new constraint must admit the pin.
			if !item.con.Admits(prev.recipe.Version) {
				return nil, WrapConflict(&Conflict{Entries: []ConflictEntry{{
					Package:  item.con.Name,
					Wanted:   item.con.String(),
					Clashing: fmt.Sprintf("pinned %s (%s)", prev.identity(), describeOrigins(prev.seen)),
					Origin:   item.origin,
				}}})
			}
			prev.seen = append(prev.seen, item)
			continue
		}

		c, err := pick(item, req.Variant, cat)
		if err != nil {
			return nil, err
		}
		chosen[item.con.Name] = c

		origin := c.identity().String()
		for _, dep := range c.recipe.Requires {
			worklist = append(worklist, scopedConstraint{con: dep, origin: origin})
		}
		for _, dep := range c.recipe.BuildRequires {
			worklist = append(worklist, scopedConstraint{con: dep, origin: origin})
		}
	}

	return assemble(req, chosen), nil
}

// pick selects the highest catalog version admitted by the constraint
// with a variant compatible with the requested axes.
func pick(item scopedConstraint, requested recipe.Variant, cat *recipe.Catalog) (*choice, error) {
	all := cat.Versions(item.con.Name)
	if len(all) == 0 {
		return nil, errors.New(errors.ErrCodeRecipeNotFound,
			"no recipe for %s (required by %s)", item.con.Name, item.origin)
	}

	candidates := cat.Find(item.con)
	if len(candidates) == 0 {
		return nil, WrapConflict(&Conflict{Entries: []ConflictEntry{{
			Package:  item.con.Name,
			Wanted:   item.con.String(),
			Clashing: fmt.Sprintf("available versions %s", versionList(all)),
			Origin:   item.origin,
		}}})
	}

	for _, r := range candidates {
		if v, ok := r.SelectVariant(requested); ok {
			return &choice{
				recipe:  r,
				variant: v,
				dir:     cat.ResourceDir(r, v),
				seen:    []scopedConstraint{item},
			}, nil
		}
	}
	return nil, WrapConflict(&Conflict{Entries: []ConflictEntry{{
		Package:  item.con.Name,
		Wanted:   item.con.String(),
		Clashing: fmt.Sprintf("no declared variant compatible with %s", requested),
		Origin:   item.origin,
	}}})
}

// assemble turns the pinned choices into a graph, mapping every recipe
// constraint to its pinned identity.
func assemble(req Request, chosen map[string]*choice) *Graph {
	g := &Graph{Nodes: make(map[recipe.Identity]*Node, len(chosen))}
	for _, c := range chosen {
		id := c.identity()
		n := &Node{
			ID:        id,
			Variant:   c.variant.Clone(),
			Build:     c.recipe.Build,
			Source:    c.recipe.Source,
			RecipeDir: c.dir,
		}
		for _, dep := range c.recipe.Requires {
			n.Requires = append(n.Requires, chosen[dep.Name].identity())
		}
		for _, dep := range c.recipe.BuildRequires {
			n.BuildRequires = append(n.BuildRequires, chosen[dep.Name].identity())
		}
		g.Nodes[id] = n
	}
	g.Root = chosen[req.Package.Name].identity()
	return g
}

func describeOrigins(seen []scopedConstraint) string {
	parts := make([]string, 0, len(seen))
	for _, s := range seen {
		parts = append(parts, fmt.Sprintf("%s from %s", s.con, s.origin))
	}
	return strings.Join(parts, ", ")
}

func versionList(recipes []*recipe.Recipe) string {
	parts := make([]string, 0, len(recipes))
	for _, r := range recipes {
		parts = append(parts, r.Version.String())
	}
	return strings.Join(parts, ", ")
}
