package builder

import (
	"context"
	"io"
	"os/exec"
	"path/filepath"

	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/recipe"
	"github.com/jmarlow/cookery/pkg/resolve"
)

// BuildContext is everything an entry point gets to work with. The entry
// point runs in BuildDir and must place its artifacts under InstallDir;
// anything else it writes is discarded with the build directory.
type BuildContext struct {
	Node       *resolve.Node
	BuildDir   string
	InstallDir string
	Env        []string
	Output     io.Writer // combined stdout and stderr of the build
}

// EntryPoint executes one recipe's build step. The orchestrator treats it
// as a black box: success means InstallDir holds the complete artifacts.
type EntryPoint interface {
	Build(ctx context.Context, bc BuildContext) error
}

// Registry maps build kinds to entry-point implementations.
type Registry map[string]EntryPoint

// DefaultRegistry returns the built-in entry points.
func DefaultRegistry() Registry {
	return Registry{
		recipe.KindCommand: commandEntryPoint{},
		recipe.KindScript:  scriptEntryPoint{},
		recipe.KindNoop:    noopEntryPoint{},
	}
}

// Lookup returns the entry point for a build kind. Unknown kinds are
// normally rejected at catalog scan time; hitting this at build time
// means the plan came from an external resolver with looser validation.
func (r Registry) Lookup(kind string) (EntryPoint, error) {
	ep, ok := r[kind]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupported, "no entry point for build kind %q", kind)
	}
	return ep, nil
}

// commandEntryPoint runs the recipe's declared argv in the build directory.
type commandEntryPoint struct{}

func (commandEntryPoint) Build(ctx context.Context, bc BuildContext) error {
	argv := bc.Node.Build.Command
	return runBuildCommand(ctx, bc, argv[0], argv[1:]...)
}

// scriptEntryPoint runs a script shipped alongside the recipe. The script
// must be executable; its interpreter comes from its shebang line.
type scriptEntryPoint struct{}

func (scriptEntryPoint) Build(ctx context.Context, bc BuildContext) error {
	script := bc.Node.Build.Script
	if !filepath.IsAbs(script) {
		script = filepath.Join(bc.Node.RecipeDir, script)
	}
	return runBuildCommand(ctx, bc, script)
}

// noopEntryPoint builds nothing. Used by metapackages whose only purpose
// is their dependency edges; the install still happens, producing an
// empty payload with a record.
type noopEntryPoint struct{}

func (noopEntryPoint) Build(ctx context.Context, bc BuildContext) error {
	return nil
}

func runBuildCommand(ctx context.Context, bc BuildContext, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = bc.BuildDir
	cmd.Env = bc.Env
	cmd.Stdout = bc.Output
	cmd.Stderr = bc.Output
	if err := cmd.Run(); err != nil {
		return errors.Wrap(errors.ErrCodeBuildFailure, err, "build %s", bc.Node.ID)
	}
	return nil
}
