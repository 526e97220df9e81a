package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kozaktomas/vault-watch/internal/config"
	"github.com/kozaktomas/vault-watch/internal/extractor"
	"github.com/kozaktomas/vault-watch/internal/recognizer"
	"github.com/kozaktomas/vault-watch/internal/store/postgres"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process <image-or-directory>...",
	Short: "Run camera frames through the recognition pipeline",
	Long: `Process image files as camera frames: detect faces, match them against
the enrolled identities and queue unknown faces for review.

Files are processed in name order, which for frame dumps matches capture
order. That keeps temporal smoothing meaningful.

Examples:
  # Process a single frame
  vault-watch process frame_0042.jpg

  # Process a directory of frames
  vault-watch process ./frames/

  # Tag detections with a different camera
  CAMERA_ID=backdoor vault-watch process ./frames/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().Bool("json", false, "Output results as JSON")
}

// frameResult is the per-file outcome of a process run.
type frameResult struct {
	File    string              `json:"file"`
	Faces   int                 `json:"faces"`
	Results []recognizer.Result `json:"results,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// collectImageFiles expands arguments into a sorted list of image paths.
func collectImageFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", arg, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext == ".jpg" || ext == ".jpeg" || ext == ".png" {
				files = append(files, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return files, nil
}

func processFrame(ctx context.Context, client *extractor.Client, rec *recognizer.Recognizer, path string) frameResult {
	result := frameResult{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	faces, err := client.DetectFaces(ctx, data)
	if err != nil {
		result.Error = fmt.Sprintf("face extraction failed: %v", err)
		return result
	}
	result.Faces = len(faces)

	results, err := rec.ProcessFrame(ctx, faces, data)
	result.Results = results
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func printFrameResult(fr frameResult) {
	if fr.Error != "" {
		fmt.Printf("%s: ERROR %s\n", fr.File, fr.Error)
		return
	}
	if fr.Faces == 0 {
		fmt.Printf("%s: no faces\n", fr.File)
		return
	}
	for _, res := range fr.Results {
		switch {
		case res.Matched:
			fmt.Printf("%s: matched %s (%.3f)\n", fr.File, res.Name, res.Confidence)
		case res.Saved:
			flag := ""
			if res.ReviewFlag {
				flag = ", near miss"
			}
			fmt.Printf("%s: unknown saved as %s (best %.3f%s)\n", fr.File, res.DetectionID, res.Confidence, flag)
		default:
			fmt.Printf("%s: unknown discarded (best %.3f)\n", fr.File, res.Confidence)
		}
	}
}

func runProcess(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

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

	startTime := time.Now()
	results := make([]frameResult, 0, len(files))
	for _, file := range files {
		fr := processFrame(ctx, client, rec, file)
		results = append(results, fr)
		if !jsonOutput {
			printFrameResult(fr)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	fmt.Printf("\nProcessed %d frames in %s\n", len(files), time.Since(startTime).Round(time.Millisecond))
	return nil
}
