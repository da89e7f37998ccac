// Package recipe defines package recipes and the catalog that loads them.
//
// A recipe is a declarative descriptor of one buildable package version:
// its identity, declared variants, runtime and build-time dependency
// constraints, and an opaque build entry point reference. Recipes live in
// a directory tree:
//
//	<recipes>/<name>/<version>/recipe.toml
//	<recipes>/<name>/<version>/<axis-value>/.../recipe.toml   (variant override)
//
// The catalog scans this tree once per invocation and is read-only
// thereafter. Recipe build-step content is never interpreted here — the
// descriptor only carries what the orchestrator needs to invoke the entry
// point as a black box.
package recipe

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/jmarlow/cookery/pkg/errors"
)

// Build-system kinds understood by the orchestrator's entry-point registry.
const (
	KindCommand = "command" // run a declared argv in the staging directory
	KindScript  = "script"  // run a script shipped alongside the recipe
	KindNoop    = "noop"    // nothing to build (metapackages, tests)
)

// BuildSpec is the opaque build entry point declaration of a recipe.
// The orchestrator selects an entry-point implementation by Kind and
// passes the rest through untouched.
type BuildSpec struct {
	Kind    string            `json:"kind" toml:"kind"`
	Command []string          `json:"command,omitempty" toml:"command"`
	Script  string            `json:"script,omitempty" toml:"script"`
	Env     map[string]string `json:"env,omitempty" toml:"env"`
}

// SourceSpec declares where the entry point should fetch sources from.
// Fetching itself is part of the black-box build step; the catalog only
// carries the declaration.
type SourceSpec struct {
	URL string `json:"url,omitempty" toml:"url"`
	Ref string `json:"ref,omitempty" toml:"ref"`
}

// Recipe is the loaded, validated descriptor of one package version.
// Read-only after the catalog scan.
type Recipe struct {
	Name          string
	Version       *semver.Version
	Variants      []Variant // declared variants, may be empty
	Requires      []Constraint
	BuildRequires []Constraint
	Build         BuildSpec
	Source        *SourceSpec
	Dir           string // recipe directory, resolves script paths
}

// recipeDoc is the raw TOML shape of recipe.toml.
type recipeDoc struct {
	Name          string              `toml:"name"`
	Version       string              `toml:"version"`
	Variants      []map[string]string `toml:"variants"`
	Requires      []string            `toml:"requires"`
	BuildRequires []string            `toml:"build_requires"`
	Build         BuildSpec           `toml:"build"`
	Source        *SourceSpec         `toml:"source"`
}

// Parse decodes and validates a recipe.toml. dir is recorded as the
// recipe's directory for entry-point resolution.
func Parse(data []byte, dir string) (*Recipe, error) {
	var doc recipeDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRecipe, err, "decode recipe in %s", dir)
	}
	return doc.validate(dir)
}

func (doc *recipeDoc) validate(dir string) (*Recipe, error) {
	if err := errors.ValidatePackageName(doc.Name); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRecipe, err, "recipe in %s", dir)
	}

	version, err := semver.NewVersion(doc.Version)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRecipe, err,
			"recipe %s in %s: invalid version %q", doc.Name, dir, doc.Version)
	}

	r := &Recipe{
		Name:    doc.Name,
		Version: version,
		Build:   doc.Build,
		Source:  doc.Source,
		Dir:     dir,
	}

	for _, raw := range doc.Variants {
		v := Variant(raw)
		if err := v.Validate(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRecipe, err, "recipe %s: variant", doc.Name)
		}
		r.Variants = append(r.Variants, v)
	}

	if r.Requires, err = parseConstraints(doc.Name, "requires", doc.Requires); err != nil {
		return nil, err
	}
	if r.BuildRequires, err = parseConstraints(doc.Name, "build_requires", doc.BuildRequires); err != nil {
		return nil, err
	}

	if err := r.Build.validate(doc.Name); err != nil {
		return nil, err
	}
	return r, nil
}

func parseConstraints(name, field string, raw []string) ([]Constraint, error) {
	out := make([]Constraint, 0, len(raw))
	for _, s := range raw {
		c, err := ParseConstraint(s)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRecipe, err, "recipe %s: %s", name, field)
		}
		out = append(out, c)
	}
	return out, nil
}

func (b *BuildSpec) validate(name string) error {
	if b.Kind == "" {
		b.Kind = KindCommand
	}
	switch b.Kind {
	case KindCommand:
		if len(b.Command) == 0 {
			return errors.New(errors.ErrCodeInvalidRecipe, "recipe %s: build kind %q requires a command", name, b.Kind)
		}
	case KindScript:
		if b.Script == "" {
			return errors.New(errors.ErrCodeInvalidRecipe, "recipe %s: build kind %q requires a script", name, b.Kind)
		}
	case KindNoop:
		// nothing to declare
	default:
		// Unknown kinds are rejected at scan time rather than at build
		// time, so a bad descriptor cannot enter a plan.
		return errors.New(errors.ErrCodeInvalidRecipe, "recipe %s: unknown build kind %q", name, b.Kind)
	}
	return nil
}

// SelectVariant picks the first declared variant that does not conflict
// with the requested axes, in declaration order. Recipes without declared
// variants build the empty variant. Returns false when every declared
// variant conflicts with the request.
func (r *Recipe) SelectVariant(requested Variant) (Variant, bool) {
	if len(r.Variants) == 0 {
		return Variant{}, true
	}
	for _, v := range r.Variants {
		if !v.ConflictsWith(requested) {
			return v.Clone(), true
		}
	}
	return nil, false
}

// Identity returns the identity of this recipe built with the given variant.
func (r *Recipe) Identity(variant Variant) Identity {
	return MakeIdentity(r.Name, r.Version, variant)
}

// String renders the recipe's name and version.
func (r *Recipe) String() string {
	return fmt.Sprintf("%s-%s", r.Name, r.Version)
}
