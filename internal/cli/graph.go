package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmarlow/cookery/pkg/cook"
	"github.com/jmarlow/cookery/pkg/report"
)

// Output formats for graph rendering.
const (
	formatDOT = "dot"
	formatSVG = "svg"
	formatPNG = "png"
)

// graphCommand creates the dependency graph export command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		constraints []string
		recipesPath string
		output      string
		format      string
		refresh     bool
		noCache     bool
	)

	cmd := &cobra.Command{
		Use:   "graph PACKAGE",
		Short: "Export a package's resolved dependency graph",
		Long: `Graph resolves PACKAGE the same way cook does and writes the dependency
graph instead of building it. Build-time edges are solid, runtime edges
dashed.`,
		Example: `  cookery graph openexr -o openexr.svg
  cookery graph openexr --format dot`,
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

			if format == "" {
				format = formatFromPath(output)
			}
			switch format {
			case formatDOT, formatSVG, formatPNG:
			default:
				return fmt.Errorf("unknown format %q (want dot, svg, or png)", format)
			}

			runner, err := c.newRunner(ctx, cfg, noCache)
			if err != nil {
				return err
			}
			defer runner.Cache.Close()

			res, err := runner.Resolve(ctx, cook.Options{
				Package:     args[0],
				Constraints: constraints,
				RecipesPath: cfg.RecipesPath,
				Refresh:     refresh,
			})
			if err != nil {
				return renderResolveError(err)
			}

			dot := report.ToDOT(res.Graph)

			var data []byte
			switch format {
			case formatDOT:
				data = []byte(dot)
			case formatSVG:
				data, err = report.RenderSVG(ctx, dot)
			case formatPNG:
				data, err = report.RenderPNG(ctx, dot)
			}
			if err != nil {
				return err
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return err
			}
			printSuccess("Wrote %s graph for %s", format, res.Graph.Root)
			printDetail("File: %s", output)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&constraints, "constrain", "c", nil, "additional constraint (repeatable)")
	cmd.Flags().StringVarP(&recipesPath, "recipes", "r", "", "recipe repository root")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "", "output format: dot, svg, png (default from file extension, else dot)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the resolution cache")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the resolution cache")

	return cmd
}

// formatFromPath infers the output format from a file extension.
func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".svg":
		return formatSVG
	case ".png":
		return formatPNG
	default:
		return formatDOT
	}
}
