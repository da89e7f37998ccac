package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmarlow/cookery/pkg/recipe"
)

// recipesCommand creates the recipe repository inspection command.
func (c *CLI) recipesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "Inspect the recipe repository",
	}

	cmd.AddCommand(c.recipesListCommand())
	cmd.AddCommand(c.recipesShowCommand())

	return cmd
}

// recipesListCommand creates the "recipes list" subcommand.
func (c *CLI) recipesListCommand() *cobra.Command {
	var recipesPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all known packages and their versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.loadCatalog(recipesPath)
			if err != nil {
				return err
			}

			if cat.Len() == 0 {
				printInfo("No recipes in %s", cat.Dir())
				return nil
			}
			for _, name := range cat.Names() {
				versions := make([]string, 0)
				for _, r := range cat.Versions(name) {
					versions = append(versions, r.Version.String())
				}
				fmt.Printf("%s %s\n",
					StyleValue.Render(name),
					StyleDim.Render(strings.Join(versions, ", ")))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&recipesPath, "recipes", "r", "", "recipe repository root")
	return cmd
}

// recipesShowCommand creates the "recipes show" subcommand.
func (c *CLI) recipesShowCommand() *cobra.Command {
	var recipesPath string

	cmd := &cobra.Command{
		Use:   "show PACKAGE",
		Short: "Show a package's recipes in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.loadCatalog(recipesPath)
			if err != nil {
				return err
			}

			con, err := recipe.ParseConstraint(args[0])
			if err != nil {
				return err
			}
			recipes := cat.Find(con)
			if len(recipes) == 0 {
				printWarning("No recipe matches %s", con)
				return nil
			}

			for _, r := range recipes {
				fmt.Println(StyleTitle.Render(r.String()))
				printDetail("dir: %s", r.Dir)
				if len(r.Variants) > 0 {
					variants := make([]string, 0, len(r.Variants))
					for _, v := range r.Variants {
						variants = append(variants, v.String())
					}
					printDetail("variants: %s", strings.Join(variants, " "))
				}
				if len(r.Requires) > 0 {
					printDetail("requires: %s", joinConstraints(r.Requires))
				}
				if len(r.BuildRequires) > 0 {
					printDetail("build_requires: %s", joinConstraints(r.BuildRequires))
				}
				printDetail("build: %s", r.Build.Kind)
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&recipesPath, "recipes", "r", "", "recipe repository root")
	return cmd
}

// loadCatalog scans the configured or overridden recipe tree.
func (c *CLI) loadCatalog(override string) (*recipe.Catalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dir := cfg.RecipesPath
	if override != "" {
		dir = override
	}
	prog := newProgress(c.Logger)
	cat, err := recipe.Load(dir)
	if err != nil {
		return nil, err
	}
	prog.done(fmt.Sprintf("Scanned %d recipes", cat.Len()))
	return cat, nil
}

func joinConstraints(cons []recipe.Constraint) string {
	parts := make([]string, len(cons))
	for i, c := range cons {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
