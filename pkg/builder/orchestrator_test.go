package builder

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/index"
	"github.com/jmarlow/cookery/pkg/plan"
	"github.com/jmarlow/cookery/pkg/recipe"
	"github.com/jmarlow/cookery/pkg/resolve"
)

// fakeEntryPoint records invocations and fails on command. It stands in
// for every build kind, so tests control success and failure per node.
type fakeEntryPoint struct {
	mu       sync.Mutex
	invoked  []string
	failures map[string]bool // by package name
}

func (f *fakeEntryPoint) Build(ctx context.Context, bc BuildContext) error {
	f.mu.Lock()
	f.invoked = append(f.invoked, bc.Node.ID.Name)
	f.mu.Unlock()

	if f.failures[bc.Node.ID.Name] {
		return errors.New(errors.ErrCodeBuildFailure, "rigged failure for %s", bc.Node.ID)
	}
	// produce a payload so the install has something to publish
	return os.WriteFile(filepath.Join(bc.InstallDir, "artifact"), []byte(bc.Node.ID.Name), 0644)
}

func (f *fakeEntryPoint) invocations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invoked...)
}

func fakeRegistry(failures ...string) (*fakeEntryPoint, Registry) {
	ep := &fakeEntryPoint{failures: map[string]bool{}}
	for _, name := range failures {
		ep.failures[name] = true
	}
	return ep, Registry{
		recipe.KindCommand: ep,
		recipe.KindScript:  ep,
		recipe.KindNoop:    ep,
	}
}

func node(name string, buildDeps []string, runtimeDeps []string) *resolve.Node {
	n := &resolve.Node{
		ID:    recipe.Identity{Name: name, Version: "1.0.0"},
		Build: recipe.BuildSpec{Kind: recipe.KindCommand, Command: []string{"true"}},
	}
	for _, dep := range buildDeps {
		n.BuildRequires = append(n.BuildRequires, recipe.Identity{Name: dep, Version: "1.0.0"})
	}
	for _, dep := range runtimeDeps {
		n.Requires = append(n.Requires, recipe.Identity{Name: dep, Version: "1.0.0"})
	}
	return n
}

func makePlan(t *testing.T, nodes ...*resolve.Node) *plan.BuildPlan {
	t.Helper()
	g := &resolve.Graph{Root: nodes[len(nodes)-1].ID, Nodes: map[recipe.Identity]*resolve.Node{}}
	for _, n := range nodes {
		g.Nodes[n.ID] = n
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("test graph not closed: %v", err)
	}
	p, err := plan.Build(g)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func status(t *testing.T, outcomes Outcomes, name string) Status {
	t.Helper()
	out, ok := outcomes[recipe.Identity{Name: name, Version: "1.0.0"}]
	if !ok {
		t.Fatalf("no outcome for %s", name)
	}
	return out.Status
}

func TestExecuteBuildsAndInstalls(t *testing.T) {
	prefix := t.TempDir()
	ep, reg := fakeRegistry()
	o := New(reg, nil)

	p := makePlan(t, node("base", nil, nil), node("app", []string{"base"}, nil))
	outcomes, err := o.Execute(context.Background(), p, Options{Prefix: prefix})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if status(t, outcomes, "base") != StatusSuccess || status(t, outcomes, "app") != StatusSuccess {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	got := ep.invocations()
	if len(got) != 2 || got[0] != "base" || got[1] != "app" {
		t.Errorf("invocations = %v, want base before app", got)
	}

	ix := index.New(prefix)
	for _, name := range []string{"base", "app"} {
		ok, err := ix.IsSatisfied(recipe.Identity{Name: name, Version: "1.0.0"}, nil)
		if err != nil || !ok {
			t.Errorf("%s not installed: %v %v", name, ok, err)
		}
	}
}

func TestExecuteIdempotent(t *testing.T) {
	prefix := t.TempDir()
	ep, reg := fakeRegistry()
	o := New(reg, nil)
	p := makePlan(t, node("base", nil, nil), node("app", []string{"base"}, nil))

	if _, err := o.Execute(context.Background(), p, Options{Prefix: prefix}); err != nil {
		t.Fatal(err)
	}

	// second run over unchanged inputs: everything satisfied, zero invocations
	outcomes, err := o.Execute(context.Background(), p, Options{Prefix: prefix})
	if err != nil {
		t.Fatal(err)
	}
	if status(t, outcomes, "base") != StatusSatisfied || status(t, outcomes, "app") != StatusSatisfied {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if got := ep.invocations(); len(got) != 2 {
		t.Errorf("second run invoked entry points: %v", got)
	}
}

func TestExecuteFailFastSkipsDependents(t *testing.T) {
	prefix := t.TempDir()
	ep, reg := fakeRegistry("libB")
	o := New(reg, nil)

	// app -> libB (fails), top -> app; island is independent
	p := makePlan(t,
		node("libB", nil, nil),
		node("app", []string{"libB"}, nil),
		node("top", []string{"app"}, nil),
		node("island", nil, nil),
	)
	outcomes, err := o.Execute(context.Background(), p, Options{Prefix: prefix})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if status(t, outcomes, "libB") != StatusFailed {
		t.Errorf("libB = %s", status(t, outcomes, "libB"))
	}
	for _, name := range []string{"app", "top"} {
		if status(t, outcomes, name) != StatusSkipped {
			t.Errorf("%s = %s, want skipped", name, status(t, outcomes, name))
		}
		out := outcomes[recipe.Identity{Name: name, Version: "1.0.0"}]
		if out.Upstream.Name != "libB" {
			t.Errorf("%s upstream = %s, want libB", name, out.Upstream)
		}
	}
	if status(t, outcomes, "island") != StatusSuccess {
		t.Errorf("independent subtree should keep building: island = %s", status(t, outcomes, "island"))
	}

	// skipped nodes were never invoked and left no records
	for _, got := range ep.invocations() {
		if got == "app" || got == "top" {
			t.Errorf("skipped node %s was invoked", got)
		}
	}
	ix := index.New(prefix)
	for _, name := range []string{"libB", "app", "top"} {
		ok, _ := ix.IsSatisfied(recipe.Identity{Name: name, Version: "1.0.0"}, nil)
		if ok {
			t.Errorf("%s must not have an install record", name)
		}
	}
}

func TestExecuteSkipsRuntimeDependents(t *testing.T) {
	prefix := t.TempDir()
	_, reg := fakeRegistry("plugin")
	o := New(reg, nil)

	// host runtime-requires plugin, and builds after it via a build edge
	// on the same package, so the failure lands before host dispatches
	p := makePlan(t,
		node("plugin", nil, nil),
		node("host", []string{"plugin"}, []string{"plugin"}),
	)
	outcomes, err := o.Execute(context.Background(), p, Options{Prefix: prefix})
	if err != nil {
		t.Fatal(err)
	}
	if status(t, outcomes, "host") != StatusSkipped {
		t.Errorf("host = %s, want skipped", status(t, outcomes, "host"))
	}
}

func TestExecuteDryRun(t *testing.T) {
	prefix := t.TempDir()
	ep, reg := fakeRegistry()
	o := New(reg, nil)
	p := makePlan(t, node("base", nil, nil), node("app", []string{"base"}, nil))

	// pre-install base so the dry run shows both classes
	if _, err := o.Execute(context.Background(), makePlan(t, node("base", nil, nil)), Options{Prefix: prefix}); err != nil {
		t.Fatal(err)
	}
	before := ep.invocations()

	outcomes, err := o.Execute(context.Background(), p, Options{Prefix: prefix, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if status(t, outcomes, "base") != StatusSatisfied {
		t.Errorf("base = %s, want satisfied", status(t, outcomes, "base"))
	}
	if status(t, outcomes, "app") != StatusPlanned {
		t.Errorf("app = %s, want planned", status(t, outcomes, "app"))
	}

	// zero entry-point invocations, prefix untouched
	if got := ep.invocations(); len(got) != len(before) {
		t.Errorf("dry run invoked entry points: %v", got)
	}
	ok, _ := index.New(prefix).IsSatisfied(recipe.Identity{Name: "app", Version: "1.0.0"}, nil)
	if ok {
		t.Error("dry run must not install anything")
	}
}

func TestExecuteParallelRespectsEdges(t *testing.T) {
	prefix := t.TempDir()
	ep, reg := fakeRegistry()
	o := New(reg, nil)

	p := makePlan(t,
		node("base", nil, nil),
		node("left", []string{"base"}, nil),
		node("right", []string{"base"}, nil),
		node("app", []string{"left", "right"}, nil),
	)
	outcomes, err := o.Execute(context.Background(), p, Options{Prefix: prefix, Jobs: 4})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"base", "left", "right", "app"} {
		if status(t, outcomes, name) != StatusSuccess {
			t.Errorf("%s = %s", name, status(t, outcomes, name))
		}
	}

	pos := map[string]int{}
	for i, name := range ep.invocations() {
		pos[name] = i
	}
	if pos["base"] > pos["left"] || pos["base"] > pos["right"] || pos["app"] < pos["left"] || pos["app"] < pos["right"] {
		t.Errorf("dependency order violated: %v", ep.invocations())
	}
}

func TestExecuteUnsupportedKind(t *testing.T) {
	prefix := t.TempDir()
	o := New(Registry{}, nil) // empty registry knows no kinds

	p := makePlan(t, node("app", nil, nil))
	outcomes, err := o.Execute(context.Background(), p, Options{Prefix: prefix})
	if err != nil {
		t.Fatal(err)
	}
	out := outcomes[recipe.Identity{Name: "app", Version: "1.0.0"}]
	if out.Status != StatusFailed {
		t.Fatalf("status = %s", out.Status)
	}
	if code := errors.GetCode(out.Err); code != errors.ErrCodeUnsupported {
		t.Errorf("error code = %s, want %s", code, errors.ErrCodeUnsupported)
	}
}

func TestExecuteCancellation(t *testing.T) {
	prefix := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before any dispatch completes

	_, reg := fakeRegistry()
	o := New(reg, nil)
	p := makePlan(t, node("base", nil, nil), node("app", []string{"base"}, nil))

	outcomes, err := o.Execute(ctx, p, Options{Prefix: prefix})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	// every planned node still gets an outcome
	if len(outcomes) != 2 {
		t.Errorf("outcomes = %d entries, want 2", len(outcomes))
	}
}

func TestRealCommandEntryPoint(t *testing.T) {
	prefix := t.TempDir()
	o := New(nil, nil)

	n := &resolve.Node{
		ID: recipe.Identity{Name: "shellpkg", Version: "1.0.0"},
		Build: recipe.BuildSpec{
			Kind:    recipe.KindCommand,
			Command: []string{"sh", "-c", `echo payload > "$COOKERY_INSTALL_PATH/out.txt"`},
		},
	}
	p := makePlan(t, n)
	outcomes, err := o.Execute(context.Background(), p, Options{Prefix: prefix})
	if err != nil {
		t.Fatal(err)
	}
	if outcomes[n.ID].Status != StatusSuccess {
		t.Fatalf("outcome = %+v", outcomes[n.ID])
	}

	data, err := os.ReadFile(filepath.Join(prefix, "shellpkg", "1.0.0", "out.txt"))
	if err != nil {
		t.Fatalf("payload missing: %v", err)
	}
	if string(data) != "payload\n" {
		t.Errorf("payload = %q", data)
	}
}

func TestRealCommandFailureKeepsLog(t *testing.T) {
	prefix := t.TempDir()
	o := New(nil, nil)

	n := &resolve.Node{
		ID: recipe.Identity{Name: "broken", Version: "1.0.0"},
		Build: recipe.BuildSpec{
			Kind:    recipe.KindCommand,
			Command: []string{"sh", "-c", "echo diagnostics; exit 1"},
		},
	}
	p := makePlan(t, n)
	outcomes, err := o.Execute(context.Background(), p, Options{Prefix: prefix})
	if err != nil {
		t.Fatal(err)
	}
	out := outcomes[n.ID]
	if out.Status != StatusFailed {
		t.Fatalf("outcome = %+v", out)
	}
	if code := errors.GetCode(out.Err); code != errors.ErrCodeBuildFailure {
		t.Errorf("error code = %s", code)
	}
	if out.LogPath == "" {
		t.Fatal("failed build should keep its log")
	}
	t.Cleanup(func() { os.RemoveAll(filepath.Dir(out.LogPath)) })

	data, err := os.ReadFile(out.LogPath)
	if err != nil {
		t.Fatalf("log missing: %v", err)
	}
	if string(data) != "diagnostics\n" {
		t.Errorf("log = %q", data)
	}
}
