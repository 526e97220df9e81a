package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/vault-watch/internal/config"
	"github.com/kozaktomas/vault-watch/internal/extractor"
	"github.com/kozaktomas/vault-watch/internal/notify"
	"github.com/kozaktomas/vault-watch/internal/recognizer"
	"github.com/kozaktomas/vault-watch/internal/review"
	"github.com/kozaktomas/vault-watch/internal/store/postgres"
	"github.com/kozaktomas/vault-watch/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the Vault Watch API server.
The server exposes identity management, the unknown face review queue
and recognition statistics over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// buildRecognizer wires the recognizer over PostgreSQL repositories and
// loads the identity catalog.
func buildRecognizer(ctx context.Context, cfg *config.Config, pool *postgres.Pool) (*recognizer.Recognizer, *review.Queue, error) {
	identities := postgres.NewIdentityRepository(pool)
	detections := postgres.NewDetectionRepository(pool)
	images := postgres.NewImageRepository(pool)

	var alerter notify.Alerter = notify.Nop{}
	if cfg.Email.Enabled {
		alerter = notify.NewEmailAlerter(cfg.Email)
		fmt.Printf("Email alerts enabled (recipient %s)\n", cfg.Email.Recipient)
	}

	rec := recognizer.New(cfg, identities, detections, images, alerter)
	if err := rec.Reload(ctx); err != nil {
		return nil, nil, fmt.Errorf("loading identity catalog: %w", err)
	}
	stats := rec.IndexStats()
	fmt.Printf("Identity catalog loaded: %d entries, %s backend\n", stats.Entries, stats.Backend)

	queue := review.NewQueue(detections, images, rec)
	return rec, queue, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	if port := mustGetInt(cmd, "port"); port != 8080 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "0.0.0.0" {
		cfg.Web.Host = host
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec, queue, err := buildRecognizer(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer rec.Close()

	server := web.NewServer(cfg, web.Deps{
		Recognizer: rec,
		Queue:      queue,
		Images:     postgres.NewImageRepository(pool),
		Extractor:  extractor.NewClient(cfg.Extractor.URL),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		if err := rec.SaveIndex(); err != nil {
			fmt.Printf("Warning: failed to save similarity index: %v\n", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Vault Watch API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
