package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ollamad/internal/config"
	"ollamad/internal/manager"
	"ollamad/pkg/types"
)

var (
	heading = color.New(color.Bold, color.FgCyan)
	dim     = color.New(color.Faint)
)

// withCatalog opens the store, reconciles it with the models directory, and hands
// the manager to fn. No model is ever loaded.
func withCatalog(cmd *cobra.Command, fn func(ctx context.Context, m *manager.Manager) error) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Store:     store,
		ModelsDir: cfg.ModelsDir,
		Logger:    loggerFor(cmd, withQuietDefault(cfg)),
	})
	defer mgr.Close()
	ctx := cmd.Context()
	if err := mgr.Initialize(ctx); err != nil {
		return err
	}
	return fn(ctx, mgr)
}

// withQuietDefault keeps catalog commands silent unless a level was chosen.
func withQuietDefault(cfg config.Config) config.Config {
	if cfg.LogLevel == config.DefaultLogLevel {
		cfg.LogLevel = "warn"
	}
	return cfg
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered models",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, m *manager.Manager) error {
				models, err := m.ListModels(ctx)
				if err != nil {
					return err
				}
				printModels(cmd.OutOrStdout(), models)
				return nil
			})
		},
	}
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "search <query>",
		Short:   "Search models by name",
		Example: "  ollamad search llama",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, m *manager.Manager) error {
				models, err := m.SearchModels(ctx, args[0])
				if err != nil {
					return err
				}
				printModels(cmd.OutOrStdout(), models)
				return nil
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, m *manager.Manager) error {
				st, err := m.Stats(ctx)
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

func printModels(w io.Writer, models []types.Model) {
	if len(models) == 0 {
		fmt.Fprintln(w, dim.Sprint("no models found"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, heading.Sprint("ID")+"\t"+heading.Sprint("FAMILY")+"\t"+heading.Sprint("QUANT")+"\t"+heading.Sprint("SIZE"))
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f GB\n", m.ID, m.Family, m.Quant, types.SizeGB(m.SizeBytes))
	}
	_ = tw.Flush()
}

func printStats(w io.Writer, st types.ModelStats) {
	fmt.Fprintln(w, heading.Sprint("Catalog"))
	fmt.Fprintf(w, "  models:  %d\n", st.TotalModels)
	fmt.Fprintf(w, "  running: %d\n", st.RunningModels)
	fmt.Fprintf(w, "  size:    %.2f GB\n", st.TotalSizeGB)
}
