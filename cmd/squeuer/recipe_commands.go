package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
	"github.com/haikalllp/smoothie-rs-queuer/internal/ipc"
	"github.com/haikalllp/smoothie-rs-queuer/internal/smoothie"
)

func newRecipeCommand(ctx *commandContext) *cobra.Command {
	recipeCmd := &cobra.Command{
		Use:   "recipe",
		Short: "Inspect and change the active recipe",
	}

	recipeCmd.AddCommand(newRecipeSetCommand(ctx))
	recipeCmd.AddCommand(newRecipeListCommand(ctx))

	return recipeCmd
}

func newRecipeSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <path>",
		Short: "Set the recipe used for new and pending tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipe, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve recipe path: %w", err)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetRecipe(recipe)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Recipe set to %s\n", recipe)
				if resp.Updated > 0 {
					fmt.Fprintf(out, "Retargeted %d pending tasks\n", resp.Updated)
				}
				return nil
			})
		},
	}
}

func newRecipeListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recipe files in the smoothie-rs install directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			installDir, err := resolveInstallDir(cfg)
			if err != nil {
				return err
			}

			recipes, err := smoothie.ListRecipes(installDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recipes) == 0 {
				fmt.Fprintf(out, "No recipes found under %s\n", installDir)
				return nil
			}

			active := activeRecipe(ctx, cfg, installDir)
			for _, recipe := range recipes {
				marker := " "
				if recipe == active {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, recipe)
			}
			return nil
		},
	}
}

func resolveInstallDir(cfg *config.Config) (string, error) {
	if dir := strings.TrimSpace(cfg.Smoothie.InstallDir); dir != "" {
		return config.ExpandPath(dir)
	}
	exe, err := smoothie.FindExecutable(cfg.Smoothie.Binary, "")
	if err != nil {
		return "", fmt.Errorf("locate smoothie-rs install: %w", err)
	}
	return smoothie.InstallRootFromExecutable(exe), nil
}

// activeRecipe asks the daemon for the live recipe and falls back to the
// configured or default one when the daemon is unreachable.
func activeRecipe(ctx *commandContext, cfg *config.Config, installDir string) string {
	if client, err := ctx.dialClient(); err == nil {
		defer client.Close()
		if resp, err := client.QueueList(); err == nil {
			for _, task := range resp.Tasks {
				if task.Status == "pending" {
					return task.Recipe
				}
			}
		}
	}
	if recipe := strings.TrimSpace(cfg.Smoothie.Recipe); recipe != "" {
		if expanded, err := config.ExpandPath(recipe); err == nil {
			return expanded
		}
		return recipe
	}
	return smoothie.DefaultRecipe(installDir)
}
