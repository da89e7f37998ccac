// Package cook composes the full pipeline: catalog scan, resolution,
// planning, and execution. It is the programmatic API the CLI is a thin
// layer over.
package cook

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jmarlow/cookery/pkg/builder"
	"github.com/jmarlow/cookery/pkg/cache"
	"github.com/jmarlow/cookery/pkg/plan"
	"github.com/jmarlow/cookery/pkg/recipe"
	"github.com/jmarlow/cookery/pkg/resolve"
)

// Runner holds the pipeline's collaborators. Zero-value fields get
// working defaults: the local resolver, no cache, discarded logs, and the
// built-in entry points.
type Runner struct {
	Resolver    resolve.Resolver
	Cache       cache.Cache
	Logger      *log.Logger
	EntryPoints builder.Registry
}

// NewRunner builds a runner, normalizing nil collaborators to defaults.
func NewRunner(resolver resolve.Resolver, c cache.Cache, logger *log.Logger) *Runner {
	r := &Runner{Resolver: resolver, Cache: c, Logger: logger}
	r.normalize()
	return r
}

func (r *Runner) normalize() {
	if r.Resolver == nil {
		r.Resolver = resolve.NewLocalResolver()
	}
	if r.Cache == nil {
		r.Cache = cache.NewNullCache()
	}
	if r.Logger == nil {
		r.Logger = log.New(io.Discard)
	}
	if r.EntryPoints == nil {
		r.EntryPoints = builder.DefaultRegistry()
	}
}

// Options configures one cook invocation.
type Options struct {
	// Package is the target, "name" or "name@<range>".
	Package string

	// Constraints are extra requirements: version constraints
	// ("name@<range>") or variant axes ("key=value").
	Constraints []string

	// RecipesPath is the recipe tree root.
	RecipesPath string

	// Prefix is the install prefix. SearchPaths are additional read-only
	// package roots consulted for already-installed packages.
	Prefix      string
	SearchPaths []string

	// DryRun reports the plan without building or installing.
	DryRun bool

	// Jobs bounds concurrent builds; below 1 means sequential.
	Jobs int

	// Refresh bypasses the resolution cache.
	Refresh bool

	// KeepBuildDirs preserves successful builds' scratch directories.
	KeepBuildDirs bool

	// BuildOutput, when set, streams entry-point output here in addition
	// to the per-build log files.
	BuildOutput io.Writer
}

// Stats carries timing and provenance for one run.
type Stats struct {
	ResolveTime time.Duration
	BuildTime   time.Duration
	CacheHit    bool
}

// Result is everything one cook run produced.
type Result struct {
	Request  resolve.Request
	Graph    *resolve.Graph
	Plan     *plan.BuildPlan
	Outcomes builder.Outcomes
	Stats    Stats
}

// Resolve parses and resolves the request against the recipe tree.
func (r *Runner) Resolve(ctx context.Context, opts Options) (*Result, error) {
	r.normalize()

	req, err := resolve.ParseRequest(opts.Package, opts.Constraints)
	if err != nil {
		return nil, err
	}

	cat, err := recipe.Load(opts.RecipesPath)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("catalog loaded", "recipes", cat.Len(), "dir", cat.Dir())

	client := resolve.NewClient(r.Resolver, r.Cache, r.Logger)
	g, info, err := client.ResolveWithInfo(ctx, req, cat, opts.Refresh)
	if err != nil {
		return nil, err
	}

	return &Result{
		Request: req,
		Graph:   g,
		Stats:   Stats{ResolveTime: info.Duration, CacheHit: info.CacheHit},
	}, nil
}

// Plan orders a resolved graph into a build sequence.
func (r *Runner) Plan(g *resolve.Graph) (*plan.BuildPlan, error) {
	return plan.Build(g)
}

// Execute runs a plan. Failures land in the outcomes; the error return is
// reserved for run-level problems.
func (r *Runner) Execute(ctx context.Context, p *plan.BuildPlan, opts Options) (builder.Outcomes, error) {
	r.normalize()
	o := builder.New(r.EntryPoints, r.Logger)
	return o.Execute(ctx, p, builder.Options{
		Prefix:        opts.Prefix,
		SearchPaths:   opts.SearchPaths,
		DryRun:        opts.DryRun,
		Jobs:          opts.Jobs,
		KeepBuildDirs: opts.KeepBuildDirs,
		BuildOutput:   opts.BuildOutput,
	})
}

// Cook runs the whole pipeline: resolve, plan, execute.
func (r *Runner) Cook(ctx context.Context, opts Options) (*Result, error) {
	res, err := r.Resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	res.Plan, err = r.Plan(res.Graph)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res.Outcomes, err = r.Execute(ctx, res.Plan, opts)
	res.Stats.BuildTime = time.Since(start)
	if err != nil {
		return res, err
	}
	return res, nil
}
