package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/vault-watch/internal/config"
	"github.com/kozaktomas/vault-watch/internal/extractor"
	"github.com/kozaktomas/vault-watch/internal/recognizer"
	"github.com/kozaktomas/vault-watch/internal/store"
	"github.com/kozaktomas/vault-watch/internal/store/postgres"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <directory>",
	Short: "Bulk-enroll identities from a directory of face photos",
	Long: `Enroll every image in a directory as an identity. The file name (without
extension) becomes the identity name, so "Jan Novak.jpg" enrolls
"Jan Novak". Each photo must contain exactly one face.

Already enrolled names are skipped, which makes the command safe to
re-run after adding new photos.

Examples:
  # Enroll everyone from a directory
  vault-watch sync ./people/

  # Preview without writing anything
  vault-watch sync ./people/ --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Bool("dry-run", false, "Detect faces but do not enroll anything")
}

func runSync(cmd *cobra.Command, args []string) error {
	dryRun := mustGetBool(cmd, "dry-run")

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	files, err := collectImageFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no image files found")
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

	client := extractor.NewClient(cfg.Extractor.URL)
	if err := client.Healthy(ctx); err != nil {
		return fmt.Errorf("extractor at %s is not healthy: %w", cfg.Extractor.URL, err)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var enrolled, skipped int
	var failures []string
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

		err := enrollFile(ctx, client, rec, name, file, dryRun)
		switch {
		case err == nil:
			enrolled++
		case errors.As(err, new(*store.NameConflictError)):
			skipped++
		default:
			failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(file), err))
		}
		bar.Add(1)
	}
	fmt.Println()

	for _, msg := range failures {
		fmt.Printf("Failed: %s\n", msg)
	}

	if dryRun {
		fmt.Printf("Dry run: %d photos would enroll, %d already enrolled, %d failed\n",
			enrolled, skipped, len(failures))
		return nil
	}
	fmt.Printf("Enrolled %d identities (%d already present, %d failed)\n",
		enrolled, skipped, len(failures))
	return nil
}

// enrollFile detects the face in a photo and enrolls it under name.
func enrollFile(ctx context.Context, client *extractor.Client, rec *recognizer.Recognizer, name, path string, dryRun bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	faces, err := client.DetectFaces(ctx, data)
	if err != nil {
		return fmt.Errorf("face extraction failed: %w", err)
	}
	if len(faces) == 0 {
		return errors.New("no face found")
	}
	if len(faces) > 1 {
		return fmt.Errorf("%d faces found, expected one", len(faces))
	}

	if dryRun {
		return nil
	}
	return rec.Enroll(ctx, name, faces[0].Embedding, data)
}
