package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docpipe/internal/config"
	"docpipe/internal/domain"

	sqlitestore "docpipe/internal/checkpoint/sqlite"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the checkpoint store",
	RunE:  showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store, err := sqlitestore.New(cfg.Checkpoint.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	statuses := []domain.SessionStatus{
		domain.SessionStatusPending,
		domain.SessionStatusClassifying,
		domain.SessionStatusExtracting,
		domain.SessionStatusValidating,
		domain.SessionStatusRepairing,
		domain.SessionStatusSucceeded,
		domain.SessionStatusFailed,
	}
	for _, status := range statuses {
		sessions, err := store.ListByStatus(ctx, status)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			continue
		}
		fmt.Printf("%-12s %d\n", status, len(sessions))
		if status.Terminal() {
			continue
		}
		for _, sess := range sessions {
			fmt.Printf("  %s  attempts=%d\n", sess.DocumentID, len(sess.Attempts))
		}
	}
	return nil
}
