package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmarlow/cookery/pkg/errors"
)

// DescriptorFile is the recipe descriptor basename.
const DescriptorFile = "recipe.toml"

// Catalog is the loaded recipe repository: every known package name with
// its available versions. Loaded once per invocation, read-only after.
type Catalog struct {
	dir         string
	recipes     map[string][]*Recipe // name -> versions, descending
	fingerprint string
}

// Load scans the recipe tree rooted at dir. Every
// <name>/<version>/recipe.toml is parsed and validated; a malformed
// descriptor fails the scan, so a bad recipe can never enter a plan.
func Load(dir string) (*Catalog, error) {
	if err := errors.ValidatePrefixPath(dir); err != nil {
		return nil, err
	}

	names, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "read recipe tree %s", dir)
	}

	cat := &Catalog{dir: dir, recipes: make(map[string][]*Recipe)}
	hash := sha256.New()

	for _, nameEntry := range names {
		if !nameEntry.IsDir() {
			continue
		}
		name := nameEntry.Name()
		versionDir := filepath.Join(dir, name)
		versions, err := os.ReadDir(versionDir)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "read %s", versionDir)
		}

		for _, verEntry := range versions {
			if !verEntry.IsDir() {
				continue
			}
			recipeDir := filepath.Join(versionDir, verEntry.Name())
			descriptor := filepath.Join(recipeDir, DescriptorFile)
			data, err := os.ReadFile(descriptor)
			if os.IsNotExist(err) {
				continue // version directory without a descriptor
			}
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "read %s", descriptor)
			}

			r, err := Parse(data, recipeDir)
			if err != nil {
				return nil, err
			}
			if r.Name != name {
				return nil, errors.New(errors.ErrCodeInvalidRecipe,
					"recipe in %s declares name %q, directory says %q", recipeDir, r.Name, name)
			}
			cat.recipes[name] = append(cat.recipes[name], r)

			fmt.Fprintf(hash, "%s\n", descriptor)
			hash.Write(data)
		}
	}

	// Versions sorted descending so Find returns newest-first, matching
	// the resolver's highest-satisfying-version preference.
	for _, list := range cat.recipes {
		sort.Slice(list, func(i, j int) bool {
			return list[i].Version.GreaterThan(list[j].Version)
		})
	}

	cat.fingerprint = hex.EncodeToString(hash.Sum(nil))
	return cat, nil
}

// Dir returns the catalog's root directory.
func (c *Catalog) Dir() string { return c.dir }

// Len returns the number of loaded descriptors.
func (c *Catalog) Len() int {
	n := 0
	for _, list := range c.recipes {
		n += len(list)
	}
	return n
}

// Names returns all known package names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.recipes))
	for name := range c.recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions returns all recipes for name, newest first.
// Returns nil for unknown packages.
func (c *Catalog) Versions(name string) []*Recipe {
	return c.recipes[name]
}

// Find returns the recipes whose version satisfies the constraint,
// newest first.
func (c *Catalog) Find(con Constraint) []*Recipe {
	var out []*Recipe
	for _, r := range c.recipes[con.Name] {
		if con.Admits(r.Version) {
			out = append(out, r)
		}
	}
	return out
}

// Fingerprint returns a digest of every descriptor's path and content.
// Any recipe change produces a different fingerprint, which invalidates
// cached resolution results keyed on it.
func (c *Catalog) Fingerprint() string { return c.fingerprint }

// ResourceDir resolves the build resource directory for a recipe built
// with the given variant. When variant subdirectories exist under the
// recipe (e.g. platform-linux/arch-amd64/), the deepest matching one wins,
// letting recipes override build files per variant; otherwise the recipe's
// own directory is used.
func (c *Catalog) ResourceDir(r *Recipe, variant Variant) string {
	dir := r.Dir
	for _, key := range variant.Keys() {
		candidate := filepath.Join(dir, key+"-"+variant[key])
		info, err := os.Stat(candidate)
		if err != nil || !info.IsDir() {
			continue
		}
		dir = candidate
	}
	return dir
}
