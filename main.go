package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "depot",
		Short: "Upload files into an object storage bucket",
		Long: `depot serves a single upload form. Accepted files are validated,
renamed to a safe key and written to a MinIO, S3 or GCS bucket.

Configuration comes from the environment (optionally a .env file);
flags override individual values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(
		serveCmd(),
		fetchCmd(),
		versionCmd(),
	)
	return rootCmd
}
