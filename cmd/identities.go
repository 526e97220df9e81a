package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/kozaktomas/vault-watch/internal/config"
	"github.com/kozaktomas/vault-watch/internal/store/postgres"
	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Manage enrolled identities",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	RunE:  runIdentitiesList,
}

var identitiesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an enrolled identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentitiesRemove,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd)
	identitiesCmd.AddCommand(identitiesRemoveCmd)

	identitiesListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

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
	identities, err := postgres.NewIdentityRepository(pool).LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading identities: %w", err)
	}
	sort.Slice(identities, func(i, j int) bool { return identities[i].Name < identities[j].Name })

	if jsonOutput {
		type row struct {
			Name       string `json:"name"`
			MatchCount int64  `json:"match_count"`
			EnrolledAt string `json:"enrolled_at"`
			UpdatedAt  string `json:"updated_at"`
		}
		out := make([]row, 0, len(identities))
		for _, id := range identities {
			out = append(out, row{
				Name:       id.Name,
				MatchCount: id.MatchCount,
				EnrolledAt: id.EnrolledAt.Format("2006-01-02 15:04:05"),
				UpdatedAt:  id.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(identities) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}
	fmt.Printf("%-30s %10s  %-19s\n", "NAME", "MATCHES", "ENROLLED")
	for _, id := range identities {
		fmt.Printf("%-30s %10d  %s\n", id.Name, id.MatchCount, id.EnrolledAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("\n%d identities\n", len(identities))
	return nil
}

func runIdentitiesRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	existed, err := postgres.NewIdentityRepository(pool).Delete(context.Background(), name)
	if err != nil {
		return fmt.Errorf("removing identity: %w", err)
	}
	if !existed {
		return fmt.Errorf("identity %q not found", name)
	}
	fmt.Printf("Removed %s\n", name)
	return nil
}
