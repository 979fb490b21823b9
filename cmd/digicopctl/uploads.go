package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"digicop-backend/internal/config"
	"digicop-backend/internal/services"
	"digicop-backend/internal/storage"
)

func newUploadsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Inspect stored demo videos",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "orphans",
			Short: "List videos that have no metadata sidecar",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := newUploadService(cmd.Context(), cfg.Storage)
				if err != nil {
					return err
				}

				orphans, findErr := svc.FindOrphans(cmd.Context())
				if orphans == nil && findErr != nil {
					return findErr
				}

				if *jsonOutput {
					if err := writeJSON(cmd.OutOrStdout(), orphans); err != nil {
						return err
					}
					return findErr
				}
				for _, name := range orphans {
					if err := writePlain(cmd.OutOrStdout(), "%s\n", name); err != nil {
						return err
					}
				}
				if err := writePlain(cmd.OutOrStdout(), "%d orphaned videos\n", len(orphans)); err != nil {
					return err
				}
				return findErr
			},
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Re-hash every recorded video and compare with its sidecar",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := newUploadService(cmd.Context(), cfg.Storage)
				if err != nil {
					return err
				}

				checked, verifyErr := svc.Verify(cmd.Context())
				failed := 0
				if merr, ok := verifyErr.(*multierror.Error); ok {
					failed = len(merr.Errors)
				} else if verifyErr != nil {
					failed = 1
				}

				if *jsonOutput {
					if err := writeJSON(cmd.OutOrStdout(), map[string]int{"checked": checked, "failed": failed}); err != nil {
						return err
					}
				} else if err := writePlain(cmd.OutOrStdout(), "checked %d videos, %d problems\n", checked, failed); err != nil {
					return err
				}
				return verifyErr
			},
		},
	)

	return cmd
}

func newUploadService(ctx context.Context, cfg config.StorageConfig) (*services.UploadService, error) {
	var store storage.Store
	switch cfg.Backend {
	case config.StorageS3:
		s3, err := storage.NewS3Store(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 store: %w", err)
		}
		store = s3
	default:
		local, err := storage.NewLocalStore(cfg.UploadDir, cfg.MetaDir)
		if err != nil {
			return nil, err
		}
		store = local
	}

	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("storage unavailable: %w", err)
	}
	return services.NewUploadService(store), nil
}
