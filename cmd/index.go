package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/vault-watch/internal/config"
	"github.com/kozaktomas/vault-watch/internal/store/postgres"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and persist the similarity index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show similarity index statistics",
	RunE:  runIndexStats,
}

var indexSaveCmd = &cobra.Command{
	Use:   "save <path>",
	Short: "Build the index from the identity store and save it to disk",
	Long: `Build the similarity index from all enrolled identities and save it
to the given path. The serve command loads a persisted index faster
than rebuilding the approximate graph on a large catalog.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexSave,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexSaveCmd)
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	rec, _, err := buildRecognizer(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer rec.Close()

	stats := rec.IndexStats()
	fmt.Printf("Entries:   %d\n", stats.Entries)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	fmt.Printf("Metric:    %s\n", stats.Metric)
	fmt.Printf("Backend:   %s\n", stats.Backend)
	fmt.Printf("Trained:   %t\n", stats.Trained)
	if stats.Trained {
		fmt.Printf("Built:     %s\n", stats.BuiltAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runIndexSave(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	cfg.Recognition.IndexPath = path

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	rec, _, err := buildRecognizer(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer rec.Close()

	if err := rec.SaveIndex(); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	stats := rec.IndexStats()
	fmt.Printf("Saved %d entries (%s backend) to %s\n", stats.Entries, stats.Backend, path)
	return nil
}
