package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vault-watch",
	Short: "Face recognition watcher for CCTV camera frames",
	Long: `Vault Watch recognizes faces in camera frames against a catalog of
enrolled identities. Unknown faces are queued for review, matched
identities are adaptively refined over time.

Frames are sent to an external extractor service for face detection
and embedding; everything downstream (matching, smoothing, review
queue, storage) lives here.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
