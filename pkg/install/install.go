// Package install publishes built artifacts into the install prefix.
//
// Publication is atomic: artifacts are staged into a hidden directory
// inside the prefix (same filesystem, so rename is atomic), the install
// record is written as the final staging step, and a single os.Rename
// makes the package visible. An interrupted install leaves either nothing
// at the final path or a complete, record-bearing package; there is no
// observable half-installed state.
package install

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/index"
	"github.com/jmarlow/cookery/pkg/resolve"
)

// stagingDirName holds in-flight installs under the prefix.
const stagingDirName = ".staging"

// Installer publishes artifacts into one install prefix.
type Installer struct {
	prefix string
}

// New builds an installer for the given prefix.
func New(prefix string) (*Installer, error) {
	if err := errors.ValidatePrefixPath(prefix); err != nil {
		return nil, err
	}
	return &Installer{prefix: prefix}, nil
}

// Prefix returns the install prefix.
func (in *Installer) Prefix() string { return in.prefix }

// Install publishes the artifacts a build produced for node. artifactsDir
// is the build's output directory; its contents become the package
// payload. If the identity is already installed when publication happens
// (a concurrent build of the same identity won the race), the staged copy
// is discarded and the existing install is returned unchanged.
func (in *Installer) Install(node *resolve.Node, artifactsDir string) (*index.Installation, error) {
	dest := index.InstallDir(in.prefix, node.ID, node.Variant)

	stage := filepath.Join(in.prefix, stagingDirName, uuid.NewString())
	if err := os.MkdirAll(stage, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInstall, err, "create staging dir for %s", node.ID)
	}
	defer os.RemoveAll(stage)

	if err := copyTree(artifactsDir, stage); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInstall, err, "stage artifacts for %s", node.ID)
	}

	// The record goes in last: a package directory is only an install
	// once its record exists.
	rec := &index.Record{
		Name:    node.ID.Name,
		Version: node.ID.Version,
		Variant: node.Variant,
		Kind:    node.Build.Kind,
		BuiltAt: time.Now().UTC(),
	}
	if err := index.WriteRecord(stage, rec); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInstall, err, "create parent of %s", dest)
	}

	if err := os.Rename(stage, dest); err != nil {
		// Same-identity race: if a complete install already sits at the
		// destination, the bytes are equivalent and the existing one wins.
		if existing, recErr := index.ReadRecord(dest); recErr == nil && existing != nil && existing.Identity() == node.ID {
			return &index.Installation{Root: in.prefix, Dir: dest, Record: existing}, nil
		}
		return nil, errors.Wrap(errors.ErrCodeInstall, err, "publish %s", node.ID)
	}
	return &index.Installation{Root: in.prefix, Dir: dest, Record: rec}, nil
}

// copyTree copies src into dst recursively, preserving file modes.
// Symlinks are recreated rather than followed.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			if rel == "." {
				return nil
			}
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	from, err := os.Open(src)
	if err != nil {
		return err
	}
	defer from.Close()

	to, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(to, from); err != nil {
		to.Close()
		return err
	}
	return to.Close()
}
