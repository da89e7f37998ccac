package recipe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmarlow/cookery/pkg/errors"
)

// Variant is a set of named configuration axes (e.g. platform=linux,
// arch=amd64) that produce a distinct installable artifact from the same
// version. The empty variant is valid and means "no axes".
type Variant map[string]string

// ParseVariantPair parses a single "key=value" variant constraint.
func ParseVariantPair(s string) (key, value string, err error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || value == "" {
		return "", "", errors.New(errors.ErrCodeInvalidConstraint, "variant constraint %q must be key=value", s)
	}
	if err := errors.ValidateVariantKey(key); err != nil {
		return "", "", err
	}
	return key, value, nil
}

// Keys returns the axis names in sorted order.
func (v Variant) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canon returns the canonical string form, axes sorted by key:
// "arch=amd64 platform=linux". Empty variants canonicalize to "".
// Canonical strings are used as identity components and map keys.
func (v Variant) Canon() string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, 0, len(v))
	for _, k := range v.Keys() {
		parts = append(parts, k+"="+v[k])
	}
	return strings.Join(parts, " ")
}

// Dir returns the variant encoded as a relative directory path:
// "arch-amd64/platform-linux", axes sorted by key. Empty variants
// return "". This mirrors the on-disk layout of both the recipe tree
// and the install prefix.
func (v Variant) Dir() string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, 0, len(v))
	for _, k := range v.Keys() {
		parts = append(parts, k+"-"+v[k])
	}
	return strings.Join(parts, "/")
}

// String renders the variant for display: "[arch=amd64 platform=linux]".
func (v Variant) String() string {
	if len(v) == 0 {
		return "[]"
	}
	return fmt.Sprintf("[%s]", v.Canon())
}

// ConflictsWith reports whether two variants disagree on any shared axis.
// Axes present in only one variant never conflict.
func (v Variant) ConflictsWith(other Variant) bool {
	for k, val := range v {
		if o, ok := other[k]; ok && o != val {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the variant.
func (v Variant) Clone() Variant {
	if v == nil {
		return nil
	}
	out := make(Variant, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Validate checks every axis name and value.
func (v Variant) Validate() error {
	for k, val := range v {
		if err := errors.ValidateVariantKey(k); err != nil {
			return err
		}
		if val == "" {
			return errors.New(errors.ErrCodeInvalidConstraint, "variant axis %q has empty value", k)
		}
	}
	return nil
}
