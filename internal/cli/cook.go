package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmarlow/cookery/pkg/builder"
	"github.com/jmarlow/cookery/pkg/cook"
	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/report"
	"github.com/jmarlow/cookery/pkg/resolve"
)

// cookCommand creates the main build command.
func (c *CLI) cookCommand() *cobra.Command {
	var (
		constraints  []string
		recipesPath  string
		prefix       string
		searchPaths  []string
		jobs         int
		dryRun       bool
		yes          bool
		noCleanup    bool
		verboseBuild bool
		refresh      bool
		noCache      bool
	)

	cmd := &cobra.Command{
		Use:   "cook PACKAGE",
		Short: "Resolve, build, and install a package and its dependencies",
		Long: `Cook resolves PACKAGE (optionally "name@<range>") and its transitive
dependencies against the recipe repository, orders them, and builds
everything that is not already installed. Already-installed packages are
never rebuilt.

Constraints narrow the resolution: version constraints take the form
"name@<range>" and variant axes the form "key=value".`,
		Example: `  cookery cook openexr
  cookery cook openexr@3.2 -c imath@3.1.9 -c platform=linux
  cookery cook openexr --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if recipesPath != "" {
				cfg.RecipesPath = recipesPath
			}
			if prefix != "" {
				cfg.Prefix = prefix
			}
			if len(searchPaths) > 0 {
				cfg.SearchPaths = searchPaths
			}
			if cmd.Flags().Changed("jobs") {
				cfg.Jobs = jobs
			}

			runner, err := c.newRunner(ctx, cfg, noCache)
			if err != nil {
				return err
			}
			defer runner.Cache.Close()

			opts := cook.Options{
				Package:       args[0],
				Constraints:   constraints,
				RecipesPath:   cfg.RecipesPath,
				Prefix:        cfg.Prefix,
				SearchPaths:   cfg.SearchPaths,
				Jobs:          cfg.Jobs,
				Refresh:       refresh,
				KeepBuildDirs: noCleanup,
			}
			if verboseBuild {
				opts.BuildOutput = os.Stderr
			}

			// Resolve and plan first, so the user confirms a concrete plan.
			prog := newProgress(c.Logger)
			spin := newSpinnerWithContext(ctx, "Resolving "+args[0])
			spin.Start()
			res, err := runner.Resolve(ctx, opts)
			spin.Stop()
			if err != nil {
				return renderResolveError(err)
			}
			prog.done(fmt.Sprintf("Resolved %d packages", res.Graph.Len()))

			res.Plan, err = runner.Plan(res.Graph)
			if err != nil {
				return err
			}

			// A dry-run execution classifies the plan without building.
			preview, err := runner.Execute(ctx, res.Plan, withDryRun(opts))
			if err != nil {
				return err
			}

			fmt.Println()
			fmt.Println(StyleTitle.Render("Build plan for " + res.Graph.Root.String()))
			fmt.Print(report.RenderPlan(res.Plan, preview))
			fmt.Println()

			if dryRun {
				fmt.Println(report.Summary(preview))
				return nil
			}
			if preview.Count(builder.StatusPlanned) == 0 {
				printSuccess("Everything is already installed")
				return nil
			}

			if !yes && !confirm(cmd) {
				printInfo("Aborted")
				return nil
			}

			res.Outcomes, err = runner.Execute(ctx, res.Plan, opts)
			if err != nil {
				return err
			}

			fmt.Print(report.RenderOutcomes(res.Plan, res.Outcomes))
			if res.Outcomes.Failed() {
				return fmt.Errorf("%d packages failed to build", res.Outcomes.Count(builder.StatusFailed))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&constraints, "constrain", "c", nil, "additional constraint, name@<range> or key=value (repeatable)")
	cmd.Flags().StringVarP(&recipesPath, "recipes", "r", "", "recipe repository root")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "install prefix")
	cmd.Flags().StringArrayVarP(&searchPaths, "search-path", "s", nil, "additional package root to search for installed packages (repeatable)")
	cmd.Flags().IntVar(&jobs, "jobs", 1, "maximum concurrent builds")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "show the plan without building anything")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&noCleanup, "no-cleanup", false, "keep build directories of successful builds")
	cmd.Flags().BoolVar(&verboseBuild, "verbose-build", false, "stream build output to the terminal")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the resolution cache")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the resolution cache")

	return cmd
}

// withDryRun returns a copy of opts with DryRun set.
func withDryRun(opts cook.Options) cook.Options {
	opts.DryRun = true
	return opts
}

// confirm asks the user to proceed with the plan.
func confirm(cmd *cobra.Command) bool {
	fmt.Fprint(cmd.OutOrStdout(), "Proceed? [y/N] ")
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// renderResolveError prints conflicts verbatim before returning; other
// resolution errors pass through to cobra's error handling.
func renderResolveError(err error) error {
	conflict, ok := resolve.AsConflict(err)
	if !ok {
		return err
	}
	printError("Cannot satisfy all constraints:")
	for _, e := range conflict.Entries {
		printDetail("%s: %s (from %s) conflicts with %s", e.Package, e.Wanted, e.Origin, e.Clashing)
	}
	printDetail("add a constraint that disambiguates, e.g. -c %s@<range>", conflict.Entries[0].Package)
	return errors.New(errors.ErrCodeConflict, "dependency conflict")
}
