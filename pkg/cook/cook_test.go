package cook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmarlow/cookery/pkg/builder"
	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/index"
	"github.com/jmarlow/cookery/pkg/recipe"
	"github.com/jmarlow/cookery/pkg/resolve"
)

// writeRecipe lays out <recipes>/<name>/<version>/recipe.toml with a
// shell command build.
func writeRecipe(t *testing.T, recipes, name, version, command string, deps []string) {
	t.Helper()
	dir := filepath.Join(recipes, name, version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	body := fmt.Sprintf("name = %q\nversion = %q\n", name, version)
	if len(deps) > 0 {
		body += "build_requires = ["
		for i, dep := range deps {
			if i > 0 {
				body += ", "
			}
			body += fmt.Sprintf("%q", dep)
		}
		body += "]\n"
	}
	body += fmt.Sprintf("\n[build]\nkind = \"command\"\ncommand = [\"sh\", \"-c\", %q]\n", command)
	if err := os.WriteFile(filepath.Join(dir, recipe.DescriptorFile), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

const okBuild = `echo built > "$COOKERY_INSTALL_PATH/payload"`

func newTestRunner() *Runner {
	return NewRunner(nil, nil, nil)
}

func outcomeOf(t *testing.T, res *Result, name string) builder.Outcome {
	t.Helper()
	for id, out := range res.Outcomes {
		if id.Name == name {
			return out
		}
	}
	t.Fatalf("no outcome for %s", name)
	return builder.Outcome{}
}

func TestCookBuildsThenSatisfied(t *testing.T) {
	recipes := t.TempDir()
	prefix := t.TempDir()
	writeRecipe(t, recipes, "libB", "1.0.0", okBuild, nil)
	writeRecipe(t, recipes, "appA", "1.0.0", okBuild, []string{"libB"})

	r := newTestRunner()
	opts := Options{Package: "appA", RecipesPath: recipes, Prefix: prefix}

	res, err := r.Cook(context.Background(), opts)
	if err != nil {
		t.Fatalf("Cook: %v", err)
	}
	if got := outcomeOf(t, res, "libB").Status; got != builder.StatusSuccess {
		t.Errorf("libB = %s", got)
	}
	if got := outcomeOf(t, res, "appA").Status; got != builder.StatusSuccess {
		t.Errorf("appA = %s", got)
	}

	// both published with records and payloads
	for _, name := range []string{"libB", "appA"} {
		dir := filepath.Join(prefix, name, "1.0.0")
		if _, err := os.Stat(filepath.Join(dir, "payload")); err != nil {
			t.Errorf("%s payload missing: %v", name, err)
		}
		if rec, err := index.ReadRecord(dir); err != nil || rec == nil {
			t.Errorf("%s record missing: %v %v", name, rec, err)
		}
	}

	// second run over unchanged inputs performs zero builds
	res2, err := r.Cook(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Cook: %v", err)
	}
	if n := res2.Outcomes.Count(builder.StatusSuccess); n != 0 {
		t.Errorf("second run built %d packages, want 0", n)
	}
	if n := res2.Outcomes.Count(builder.StatusSatisfied); n != 2 {
		t.Errorf("second run satisfied = %d, want 2", n)
	}
}

func TestCookFailureSkipsDependents(t *testing.T) {
	recipes := t.TempDir()
	prefix := t.TempDir()
	writeRecipe(t, recipes, "libB", "1.0.0", "echo broken >&2; exit 1", nil)
	writeRecipe(t, recipes, "appA", "1.0.0", okBuild, []string{"libB"})

	r := newTestRunner()
	res, err := r.Cook(context.Background(), Options{Package: "appA", RecipesPath: recipes, Prefix: prefix})
	if err != nil {
		t.Fatalf("Cook: %v", err)
	}

	libB := outcomeOf(t, res, "libB")
	if libB.Status != builder.StatusFailed {
		t.Errorf("libB = %s", libB.Status)
	}
	if code := errors.GetCode(libB.Err); code != errors.ErrCodeBuildFailure {
		t.Errorf("libB error code = %s", code)
	}
	if libB.LogPath != "" {
		t.Cleanup(func() { os.RemoveAll(filepath.Dir(libB.LogPath)) })
	}

	appA := outcomeOf(t, res, "appA")
	if appA.Status != builder.StatusSkipped {
		t.Errorf("appA = %s, want skipped", appA.Status)
	}
	if appA.Upstream.Name != "libB" {
		t.Errorf("appA upstream = %s", appA.Upstream)
	}

	// neither package left an install record
	ix := index.New(prefix)
	for _, name := range []string{"libB", "appA"} {
		ok, _ := ix.IsSatisfied(recipe.Identity{Name: name, Version: "1.0.0"}, nil)
		if ok {
			t.Errorf("%s must not be installed", name)
		}
	}
}

func TestCookConflictBuildsNothing(t *testing.T) {
	recipes := t.TempDir()
	prefix := t.TempDir()
	writeRecipe(t, recipes, "libB", "1.0.0", okBuild, nil)
	writeRecipe(t, recipes, "libB", "2.1.0", okBuild, nil)
	writeRecipe(t, recipes, "appA", "1.0.0", okBuild, []string{"libB@>=2.0"})

	r := newTestRunner()
	_, err := r.Cook(context.Background(), Options{
		Package:     "appA",
		Constraints: []string{"libB@1.0.0"},
		RecipesPath: recipes,
		Prefix:      prefix,
	})
	if err == nil {
		t.Fatal("expected conflict")
	}
	if code := errors.GetCode(err); code != errors.ErrCodeConflict {
		t.Fatalf("error code = %s, want %s", code, errors.ErrCodeConflict)
	}
	conflict, ok := resolve.AsConflict(err)
	if !ok || len(conflict.Entries) == 0 {
		t.Fatalf("conflict report missing: %v", err)
	}

	// resolution failed, so the prefix is untouched
	entries, _ := os.ReadDir(prefix)
	if len(entries) != 0 {
		t.Errorf("prefix should be empty, got %v", entries)
	}
}

func TestCookDryRun(t *testing.T) {
	recipes := t.TempDir()
	prefix := t.TempDir()
	writeRecipe(t, recipes, "libB", "1.0.0", okBuild, nil)
	writeRecipe(t, recipes, "appA", "1.0.0", okBuild, []string{"libB"})

	r := newTestRunner()
	res, err := r.Cook(context.Background(), Options{
		Package:     "appA",
		RecipesPath: recipes,
		Prefix:      prefix,
		DryRun:      true,
	})
	if err != nil {
		t.Fatalf("Cook: %v", err)
	}
	if n := res.Outcomes.Count(builder.StatusPlanned); n != 2 {
		t.Errorf("planned = %d, want 2", n)
	}

	entries, _ := os.ReadDir(prefix)
	if len(entries) != 0 {
		t.Errorf("dry run touched the prefix: %v", entries)
	}
}

func TestCookSearchPathSatisfies(t *testing.T) {
	recipes := t.TempDir()
	prefix := t.TempDir()
	shared := t.TempDir()
	writeRecipe(t, recipes, "libB", "1.0.0", okBuild, nil)
	writeRecipe(t, recipes, "appA", "1.0.0", okBuild, []string{"libB"})

	r := newTestRunner()

	// build libB into the shared root first
	if _, err := r.Cook(context.Background(), Options{Package: "libB", RecipesPath: recipes, Prefix: shared}); err != nil {
		t.Fatal(err)
	}

	res, err := r.Cook(context.Background(), Options{
		Package:     "appA",
		RecipesPath: recipes,
		Prefix:      prefix,
		SearchPaths: []string{shared},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := outcomeOf(t, res, "libB").Status; got != builder.StatusSatisfied {
		t.Errorf("libB = %s, want satisfied via search path", got)
	}
	if got := outcomeOf(t, res, "appA").Status; got != builder.StatusSuccess {
		t.Errorf("appA = %s", got)
	}

	// libB was not rebuilt into the new prefix
	if _, err := os.Stat(filepath.Join(prefix, "libB")); !os.IsNotExist(err) {
		t.Error("libB should live only in the shared root")
	}
}

func TestCookInvalidConstraintFailsFast(t *testing.T) {
	r := newTestRunner()
	_, err := r.Cook(context.Background(), Options{
		Package:     "appA@>>1",
		RecipesPath: t.TempDir(),
		Prefix:      t.TempDir(),
	})
	if code := errors.GetCode(err); code != errors.ErrCodeInvalidConstraint {
		t.Fatalf("error code = %s, want %s", code, errors.ErrCodeInvalidConstraint)
	}
}
