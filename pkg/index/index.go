// Package index answers one question: is a package identity already
// installed? It reads install records from one or more package roots and
// never mutates anything; writing records is the installer's job.
package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/recipe"
)

// RecordFile is the install record basename. Its presence marks an
// install as complete; it is always the last file written before an
// install directory is published.
const RecordFile = "install.json"

// Record is the install record written next to an installed package's
// payload.
type Record struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Variant map[string]string `json:"variant,omitempty"`
	Kind    string            `json:"kind"` // build kind that produced it
	BuiltAt time.Time         `json:"built_at"`
}

// Identity returns the identity the record attests.
func (r *Record) Identity() recipe.Identity {
	return recipe.Identity{
		Name:    r.Name,
		Version: r.Version,
		Variant: recipe.Variant(r.Variant).Canon(),
	}
}

// InstallDir returns the install directory for an identity under root:
// <root>/<name>/<version>/<variant dirs...>.
func InstallDir(root string, id recipe.Identity, variant recipe.Variant) string {
	dir := filepath.Join(root, id.Name, id.Version)
	if vd := variant.Dir(); vd != "" {
		dir = filepath.Join(dir, filepath.FromSlash(vd))
	}
	return dir
}

// ReadRecord loads the install record from an install directory.
// Returns (nil, nil) when no record exists, which means the directory
// does not count as installed.
func ReadRecord(dir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, RecordFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read install record in %s", dir)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "decode install record in %s", dir)
	}
	return &rec, nil
}

// WriteRecord writes the install record into dir.
func WriteRecord(dir string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode install record")
	}
	if err := os.WriteFile(filepath.Join(dir, RecordFile), data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeInstall, err, "write install record in %s", dir)
	}
	return nil
}

// Index is a read-only view over an ordered list of package roots. The
// first root is the install prefix; additional roots are shared,
// typically read-only, package repositories. Earlier roots win.
type Index struct {
	roots []string
}

// New builds an index over the given roots, earlier roots searched first.
func New(roots ...string) *Index {
	return &Index{roots: roots}
}

// Installation is where an identity was found.
type Installation struct {
	Root   string // the package root that holds it
	Dir    string // the install directory
	Record *Record
}

// Lookup finds the first installation of id across the roots. Returns
// (nil, nil) when the identity is not installed anywhere. A directory
// without a complete install record is ignored: records are written last,
// so their absence means the install never finished.
func (ix *Index) Lookup(id recipe.Identity, variant recipe.Variant) (*Installation, error) {
	for _, root := range ix.roots {
		dir := InstallDir(root, id, variant)
		rec, err := ReadRecord(dir)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if rec.Identity() != id {
			// stale or foreign record, does not attest this identity
			continue
		}
		return &Installation{Root: root, Dir: dir, Record: rec}, nil
	}
	return nil, nil
}

// IsSatisfied reports whether the exact identity, variant included, is
// already installed in any root.
func (ix *Index) IsSatisfied(id recipe.Identity, variant recipe.Variant) (bool, error) {
	inst, err := ix.Lookup(id, variant)
	if err != nil {
		return false, err
	}
	return inst != nil, nil
}
