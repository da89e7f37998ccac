package recipe

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/jmarlow/cookery/pkg/errors"
)

// Constraint is a version requirement on a named package, e.g. "imath" or
// "imath@>=3.1 <4.0". An empty range admits every version.
type Constraint struct {
	Name  string
	Raw   string              // original range text, "" means any
	Range *semver.Constraints // nil means any
}

// ParseConstraint parses "name" or "name@<range>" into a Constraint.
// Range syntax follows semver constraint expressions (">=1.0", "^2.3",
// "1.2.x"). Malformed input fails with INVALID_CONSTRAINT before any
// resolver contact.
func ParseConstraint(s string) (Constraint, error) {
	name, raw, _ := strings.Cut(strings.TrimSpace(s), "@")
	if err := errors.ValidatePackageName(name); err != nil {
		return Constraint{}, err
	}

	c := Constraint{Name: name, Raw: strings.TrimSpace(raw)}
	if c.Raw != "" {
		rng, err := semver.NewConstraint(c.Raw)
		if err != nil {
			return Constraint{}, errors.Wrap(errors.ErrCodeInvalidConstraint, err,
				"invalid version range %q for package %s", c.Raw, name)
		}
		c.Range = rng
	}
	return c, nil
}

// MustParseConstraint is a test helper that panics on malformed input.
func MustParseConstraint(s string) Constraint {
	c, err := ParseConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Admits reports whether a concrete version satisfies the constraint.
func (c Constraint) Admits(v *semver.Version) bool {
	if c.Range == nil {
		return true
	}
	return c.Range.Check(v)
}

// String renders the constraint in its parse form.
func (c Constraint) String() string {
	if c.Raw == "" {
		return c.Name
	}
	return c.Name + "@" + c.Raw
}

// Identity uniquely names a concrete package build: name, exact version,
// and canonical variant string (see Variant.Canon). It is comparable and
// used as a map key throughout the pipeline.
type Identity struct {
	Name    string
	Version string
	Variant string
}

// MakeIdentity builds an Identity from its parts.
func MakeIdentity(name string, version *semver.Version, variant Variant) Identity {
	return Identity{Name: name, Version: version.String(), Variant: variant.Canon()}
}

// String renders the identity for display: "imath-3.1.9 [platform=linux]".
func (id Identity) String() string {
	s := id.Name + "-" + id.Version
	if id.Variant != "" {
		s += " [" + id.Variant + "]"
	}
	return s
}
