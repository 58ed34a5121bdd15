package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
	"github.com/ahmad-alkadri/depot-upload/internal/logging"
	"github.com/ahmad-alkadri/depot-upload/internal/services"
	"github.com/ahmad-alkadri/depot-upload/internal/storage"
)

func fetchCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch <key>",
		Short: "Download a stored object",
		Long: `Download a stored object by key and write it to stdout or a file.
Keys are the sanitized filenames the server stored them under.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if services.Sanitize(key) != key {
				return fmt.Errorf("%q is not a valid object key", key)
			}

			cfg := config.LoadConfig()
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}

			newStore := func(ctx context.Context) (storage.ObjectStore, error) {
				return storage.New(ctx, cfg, logging.Discard())
			}
			return fetchObject(cmd.Context(), newStore, key, output, cmd.OutOrStdout(), cfg.StoreTimeout)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

// fetchObject opens the store and the object within openTimeout, then
// copies the object to output, or to stdout when output is empty. The copy
// itself has no deadline.
func fetchObject(
	ctx context.Context,
	newStore func(context.Context) (storage.ObjectStore, error),
	key, output string,
	stdout io.Writer,
	openTimeout time.Duration,
) error {
	// The store keeps ctx for the lifetime of the download, so the open
	// deadline cancels it from a timer instead of WithTimeout.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	timer := time.AfterFunc(openTimeout, cancel)

	store, err := newStore(ctx)
	if err != nil {
		timer.Stop()
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	rc, err := store.Fetch(ctx, key)
	if !timer.Stop() {
		if err == nil {
			rc.Close()
		}
		return fmt.Errorf("timed out opening %s after %s", key, openTimeout)
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	return writeObject(rc, output, stdout)
}

// writeObject copies r to the file named output, or to stdout when output
// is empty. A partially written file is removed.
func writeObject(r io.Reader, output string, stdout io.Writer) error {
	if output == "" {
		_, err := io.Copy(stdout, r)
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(output)
		return fmt.Errorf("failed to download to %s: %w", output, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(output)
		return err
	}
	return nil
}
