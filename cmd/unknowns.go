package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/vault-watch/internal/config"
	"github.com/kozaktomas/vault-watch/internal/review"
	"github.com/kozaktomas/vault-watch/internal/store/postgres"
	"github.com/spf13/cobra"
)

var unknownsCmd = &cobra.Command{
	Use:   "unknowns",
	Short: "Review faces that did not match any identity",
}

var unknownsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unreviewed detections",
	RunE:  runUnknownsList,
}

var unknownsDismissCmd = &cobra.Command{
	Use:   "dismiss <detection-id>",
	Short: "Dismiss a detection as not interesting",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnknownsDismiss,
}

var unknownsEnrollCmd = &cobra.Command{
	Use:   "enroll <detection-id> <name>",
	Short: "Enroll a detection as a new identity",
	Args:  cobra.ExactArgs(2),
	RunE:  runUnknownsEnroll,
}

var unknownsDeleteCmd = &cobra.Command{
	Use:   "delete <detection-id>",
	Short: "Delete a detection and its stored image",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnknownsDelete,
}

var unknownsSimilarCmd = &cobra.Command{
	Use:   "similar <detection-id>",
	Short: "Find unreviewed detections similar to the given one",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnknownsSimilar,
}

func init() {
	rootCmd.AddCommand(unknownsCmd)
	unknownsCmd.AddCommand(unknownsListCmd)
	unknownsCmd.AddCommand(unknownsDismissCmd)
	unknownsCmd.AddCommand(unknownsEnrollCmd)
	unknownsCmd.AddCommand(unknownsDeleteCmd)
	unknownsCmd.AddCommand(unknownsSimilarCmd)

	unknownsListCmd.Flags().Int("limit", 50, "Maximum number of detections to list")
	unknownsListCmd.Flags().Bool("json", false, "Output as JSON")

	unknownsSimilarCmd.Flags().Float64("threshold", 0.75, "Minimum cosine similarity")
	unknownsSimilarCmd.Flags().Int("limit", 20, "Maximum number of matches")
}

// withQueue connects to PostgreSQL, builds the review queue and runs fn.
func withQueue(fn func(ctx context.Context, queue *review.Queue) error) error {
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
	rec, queue, err := buildRecognizer(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer rec.Close()

	return fn(ctx, queue)
}

func runUnknownsList(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")

	return withQueue(func(ctx context.Context, queue *review.Queue) error {
		detections, err := queue.List(ctx, limit)
		if err != nil {
			return fmt.Errorf("listing detections: %w", err)
		}

		if jsonOutput {
			type row struct {
				ID         string  `json:"id"`
				CameraID   string  `json:"camera_id"`
				CapturedAt string  `json:"captured_at"`
				Confidence float64 `json:"confidence"`
				BestMatch  string  `json:"best_match,omitempty"`
				ReviewFlag bool    `json:"review_flag"`
			}
			out := make([]row, 0, len(detections))
			for _, det := range detections {
				out = append(out, row{
					ID:         det.ID,
					CameraID:   det.CameraID,
					CapturedAt: det.CapturedAt.Format("2006-01-02 15:04:05"),
					Confidence: det.Confidence,
					BestMatch:  det.BestMatch,
					ReviewFlag: det.ReviewFlag,
				})
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		if len(detections) == 0 {
			fmt.Println("No unreviewed detections")
			return nil
		}
		fmt.Printf("%-36s %-12s %-19s %8s  %-20s %s\n", "ID", "CAMERA", "CAPTURED", "BEST", "CLOSEST", "REVIEW")
		for _, det := range detections {
			flag := ""
			if det.ReviewFlag {
				flag = "near miss"
			}
			fmt.Printf("%-36s %-12s %-19s %8.3f  %-20s %s\n",
				det.ID, det.CameraID, det.CapturedAt.Format("2006-01-02 15:04:05"),
				det.Confidence, det.BestMatch, flag)
		}
		fmt.Printf("\n%d detections\n", len(detections))
		return nil
	})
}

func runUnknownsDismiss(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withQueue(func(ctx context.Context, queue *review.Queue) error {
		found, err := queue.Dismiss(ctx, id)
		if err != nil {
			return fmt.Errorf("dismissing detection: %w", err)
		}
		if !found {
			return fmt.Errorf("detection %q not found", id)
		}
		fmt.Printf("Dismissed %s\n", id)
		return nil
	})
}

func runUnknownsEnroll(cmd *cobra.Command, args []string) error {
	id, name := args[0], args[1]
	return withQueue(func(ctx context.Context, queue *review.Queue) error {
		found, err := queue.Enroll(ctx, id, name)
		if err != nil {
			return fmt.Errorf("enrolling detection: %w", err)
		}
		if !found {
			return fmt.Errorf("detection %q not found", id)
		}
		fmt.Printf("Enrolled %s as %s\n", id, name)
		return nil
	})
}

func runUnknownsSimilar(cmd *cobra.Command, args []string) error {
	id := args[0]
	threshold := mustGetFloat64(cmd, "threshold")
	limit := mustGetInt(cmd, "limit")

	return withQueue(func(ctx context.Context, queue *review.Queue) error {
		similar, found, err := queue.FindSimilar(ctx, id, threshold, limit)
		if err != nil {
			return fmt.Errorf("scanning for similar detections: %w", err)
		}
		if !found {
			return fmt.Errorf("detection %q not found", id)
		}

		if len(similar) == 0 {
			fmt.Println("No similar detections")
			return nil
		}
		fmt.Printf("%-36s %-12s %-19s %s\n", "ID", "CAMERA", "CAPTURED", "SIMILARITY")
		for _, s := range similar {
			fmt.Printf("%-36s %-12s %-19s %10.3f\n",
				s.Detection.ID, s.Detection.CameraID,
				s.Detection.CapturedAt.Format("2006-01-02 15:04:05"), s.Similarity)
		}
		return nil
	})
}

func runUnknownsDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withQueue(func(ctx context.Context, queue *review.Queue) error {
		found, err := queue.Delete(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting detection: %w", err)
		}
		if !found {
			return fmt.Errorf("detection %q not found", id)
		}
		fmt.Printf("Deleted %s\n", id)
		return nil
	})
}
