package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/index"
	"github.com/jmarlow/cookery/pkg/install"
	"github.com/jmarlow/cookery/pkg/plan"
	"github.com/jmarlow/cookery/pkg/recipe"
	"github.com/jmarlow/cookery/pkg/resolve"
)

// Options configures one plan execution.
type Options struct {
	// Prefix is the install prefix new builds are published into.
	Prefix string

	// SearchPaths are additional package roots consulted when checking
	// whether an identity is already installed. The prefix is always
	// searched first.
	SearchPaths []string

	// DryRun reports what would be built without invoking any entry
	// point or touching the prefix.
	DryRun bool

	// Jobs bounds concurrent builds. Values below 1 mean strictly
	// sequential execution in plan order.
	Jobs int

	// KeepBuildDirs preserves build directories of successful builds.
	// Failed builds always keep theirs, so the log survives.
	KeepBuildDirs bool

	// BuildOutput, when set, additionally streams entry-point output
	// here. Output always goes to the per-build log file.
	BuildOutput io.Writer
}

// Orchestrator executes build plans.
type Orchestrator struct {
	entrypoints Registry
	logger      *log.Logger
}

// New builds an orchestrator. A nil registry uses the built-in entry
// points; a nil logger discards logs.
func New(entrypoints Registry, logger *log.Logger) *Orchestrator {
	if entrypoints == nil {
		entrypoints = DefaultRegistry()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Orchestrator{entrypoints: entrypoints, logger: logger}
}

type buildResult struct {
	id  recipe.Identity
	out Outcome
}

// Execute runs the plan and returns one outcome per planned node.
//
// Already-installed nodes are satisfied without invoking their entry
// point. When a build fails, its transitive dependents are skipped
// without being invoked while independent subtrees keep building.
// Failures are reported in the outcomes, not as the error return; the
// error covers run-level problems only, such as cancellation.
func (o *Orchestrator) Execute(ctx context.Context, p *plan.BuildPlan, opts Options) (Outcomes, error) {
	roots := append([]string{opts.Prefix}, opts.SearchPaths...)
	ix := index.New(roots...)

	outcomes := make(Outcomes, p.Len())

	// Filter out what is already installed. The check is by exact
	// identity, variant included.
	var toBuild []*resolve.Node
	for _, n := range p.Nodes {
		ok, err := ix.IsSatisfied(n.ID, n.Variant)
		if err != nil {
			return nil, err
		}
		if ok {
			outcomes[n.ID] = Outcome{Status: StatusSatisfied}
			o.logger.Debug("already installed", "pkg", n.ID.String())
			continue
		}
		toBuild = append(toBuild, n)
	}

	if opts.DryRun {
		for _, n := range toBuild {
			outcomes[n.ID] = Outcome{Status: StatusPlanned}
		}
		return outcomes, nil
	}
	if len(toBuild) == 0 {
		return outcomes, nil
	}

	installer, err := install.New(opts.Prefix)
	if err != nil {
		return nil, err
	}

	// Edge bookkeeping, restricted to nodes that actually need building.
	// Ordering gates on build edges only; skip propagation additionally
	// follows runtime edges, because installing a package whose runtime
	// dependency failed would publish something unusable.
	need := make(map[recipe.Identity]*resolve.Node, len(toBuild))
	for _, n := range toBuild {
		need[n.ID] = n
	}
	nodes := make(map[recipe.Identity]*resolve.Node, p.Len())
	for _, n := range p.Nodes {
		nodes[n.ID] = n
	}

	pendingDeps := make(map[recipe.Identity]int, len(need))
	buildDependents := make(map[recipe.Identity][]recipe.Identity)
	skipDependents := make(map[recipe.Identity][]recipe.Identity)
	for id, n := range need {
		for _, dep := range n.BuildRequires {
			if _, ok := need[dep]; ok && dep != id {
				pendingDeps[id]++
				buildDependents[dep] = append(buildDependents[dep], id)
				skipDependents[dep] = append(skipDependents[dep], id)
			}
		}
		for _, dep := range n.Requires {
			if _, ok := need[dep]; ok && dep != id {
				skipDependents[dep] = append(skipDependents[dep], id)
			}
		}
	}

	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}
	readyCh := make(chan *resolve.Node, len(need))
	resultCh := make(chan buildResult, len(need))
	for i := 0; i < jobs; i++ {
		go func() {
			for n := range readyCh {
				resultCh <- buildResult{id: n.ID, out: o.buildOne(ctx, n, nodes, ix, installer, opts)}
			}
		}()
	}
	defer close(readyCh)

	dispatched := make(map[recipe.Identity]bool, len(need))
	inFlight := 0

	// dispatch walks the plan order, so ready nodes release in the
	// plan's deterministic order.
	dispatch := func() {
		for _, n := range toBuild {
			if dispatched[n.ID] || pendingDeps[n.ID] > 0 {
				continue
			}
			if _, done := outcomes[n.ID]; done {
				continue
			}
			dispatched[n.ID] = true
			inFlight++
			readyCh <- n
		}
	}

	// skip marks every transitive dependent of a failed node that has not
	// been dispatched yet. Nodes in flight were only dispatched after all
	// their build dependencies succeeded, so they are never dependents of
	// the failed node.
	var skip func(failed recipe.Identity, root recipe.Identity)
	skip = func(failed recipe.Identity, root recipe.Identity) {
		for _, dep := range skipDependents[failed] {
			if dispatched[dep] {
				continue
			}
			if _, done := outcomes[dep]; done {
				continue
			}
			outcomes[dep] = Outcome{
				Status:   StatusSkipped,
				Upstream: root,
				Err:      errors.New(errors.ErrCodeBuildFailure, "dependency %s failed", root),
			}
			o.logger.Warn("skipped", "pkg", dep.String(), "failed_dependency", root.String())
			skip(dep, root)
		}
	}

	cancelled := false
	for {
		if !cancelled {
			dispatch()
		}
		if inFlight == 0 {
			break
		}

		var res buildResult
		if cancelled {
			res = <-resultCh
		} else {
			select {
			case res = <-resultCh:
			case <-ctx.Done():
				cancelled = true
				for _, n := range toBuild {
					if dispatched[n.ID] {
						continue
					}
					if _, done := outcomes[n.ID]; done {
						continue
					}
					outcomes[n.ID] = Outcome{Status: StatusSkipped, Err: ctx.Err()}
				}
				continue
			}
		}

		inFlight--
		outcomes[res.id] = res.out
		switch res.out.Status {
		case StatusSuccess, StatusSatisfied:
			for _, dep := range buildDependents[res.id] {
				pendingDeps[dep]--
			}
		case StatusFailed:
			skip(res.id, res.id)
		}
	}

	if cancelled {
		for _, n := range toBuild {
			if _, done := outcomes[n.ID]; !done {
				outcomes[n.ID] = Outcome{Status: StatusSkipped, Err: ctx.Err()}
			}
		}
		return outcomes, ctx.Err()
	}
	return outcomes, nil
}

// buildOne runs a single node end to end: entry point, then install.
func (o *Orchestrator) buildOne(ctx context.Context, node *resolve.Node, nodes map[recipe.Identity]*resolve.Node, ix *index.Index, installer *install.Installer, opts Options) Outcome {
	start := time.Now()

	// Another process may have installed this identity since planning.
	// Byproducts of earlier builds count too.
	if ok, err := ix.IsSatisfied(node.ID, node.Variant); err == nil && ok {
		return Outcome{Status: StatusSatisfied, Duration: time.Since(start)}
	}

	deps := make(map[recipe.Identity]*index.Installation, len(node.BuildRequires))
	for _, depID := range node.BuildRequires {
		var variant recipe.Variant
		if dep, ok := nodes[depID]; ok {
			variant = dep.Variant
		}
		inst, err := ix.Lookup(depID, variant)
		if err != nil || inst == nil {
			return Outcome{
				Status:   StatusFailed,
				Err:      errors.New(errors.ErrCodeBuildFailure, "build dependency %s is not installed", depID),
				Duration: time.Since(start),
			}
		}
		deps[depID] = inst
	}

	buildDir, err := os.MkdirTemp("", fmt.Sprintf("cookery-%s-%s-", node.ID.Name, node.ID.Version))
	if err != nil {
		return Outcome{
			Status:   StatusFailed,
			Err:      errors.Wrap(errors.ErrCodeBuildFailure, err, "create build dir for %s", node.ID),
			Duration: time.Since(start),
		}
	}
	artifactsDir := filepath.Join(buildDir, "install")
	if err := os.MkdirAll(artifactsDir, 0755); err != nil {
		return Outcome{
			Status:   StatusFailed,
			Err:      errors.Wrap(errors.ErrCodeBuildFailure, err, "create artifacts dir for %s", node.ID),
			Duration: time.Since(start),
		}
	}

	logPath := filepath.Join(buildDir, "build.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return Outcome{
			Status:   StatusFailed,
			Err:      errors.Wrap(errors.ErrCodeBuildFailure, err, "create build log for %s", node.ID),
			Duration: time.Since(start),
		}
	}
	output := io.Writer(logFile)
	if opts.BuildOutput != nil {
		output = io.MultiWriter(logFile, opts.BuildOutput)
	}

	o.logger.Info("building", "pkg", node.ID.String(), "kind", node.Build.Kind)

	buildErr := o.runEntryPoint(ctx, node, BuildContext{
		Node:       node,
		BuildDir:   buildDir,
		InstallDir: artifactsDir,
		Env:        buildEnv(node, deps, buildDir, artifactsDir),
		Output:     output,
	})
	logFile.Close()

	if buildErr != nil {
		// keep the build dir so the log survives for inspection
		o.logger.Error("build failed", "pkg", node.ID.String(), "log", logPath, "err", buildErr)
		return Outcome{Status: StatusFailed, Err: buildErr, LogPath: logPath, Duration: time.Since(start)}
	}

	inst, err := installer.Install(node, artifactsDir)
	if err != nil {
		o.logger.Error("install failed", "pkg", node.ID.String(), "err", err)
		return Outcome{Status: StatusFailed, Err: err, LogPath: logPath, Duration: time.Since(start)}
	}

	out := Outcome{Status: StatusSuccess, Duration: time.Since(start)}
	if opts.KeepBuildDirs {
		out.LogPath = logPath
	} else {
		os.RemoveAll(buildDir)
	}
	o.logger.Info("installed", "pkg", node.ID.String(), "dir", inst.Dir, "duration", out.Duration)
	return out
}

func (o *Orchestrator) runEntryPoint(ctx context.Context, node *resolve.Node, bc BuildContext) error {
	ep, err := o.entrypoints.Lookup(node.Build.Kind)
	if err != nil {
		return err
	}
	if err := ep.Build(ctx, bc); err != nil {
		if errors.GetCode(err) == "" {
			return errors.Wrap(errors.ErrCodeBuildFailure, err, "build %s", node.ID)
		}
		return err
	}
	return nil
}
