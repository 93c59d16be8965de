package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/article-voice/internal/config"
	"github.com/lexiqai/article-voice/internal/store"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history <requester>",
	Short: "List the latest narrations of one requester",
	Long: `History prints the narrations recorded for a requester, newest first.
Requesters are Telegram chat ids, ws-<id> for web chat connections and
cli-<host> for the narrate command. DATABASE_URL must be set.

Examples:
  article-voice history 123456789
  article-voice history cli-laptop --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "Maximum number of narrations to list")
}

type recentLister interface {
	Recent(ctx context.Context, requester string, limit int) ([]store.Narration, error)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if flagHistoryLimit < 1 {
		return fmt.Errorf("--limit must be positive, got %d", flagHistoryLimit)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	repo, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	return printHistory(cmd.Context(), cmd.OutOrStdout(), repo, args[0], flagHistoryLimit)
}

func printHistory(ctx context.Context, w io.Writer, repo recentLister, requester string, limit int) error {
	rows, err := repo.Recent(ctx, requester, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintf(w, "no narrations for %s\n", requester)
		return err
	}

	for _, n := range rows {
		line := fmt.Sprintf("%s  %-8s  %d parts  %s", n.CreatedAt.UTC().Format(time.RFC3339), n.Status, n.Parts, n.URL)
		if n.FailedStage != "" {
			line += fmt.Sprintf("\n    failed at %s", n.FailedStage)
			if n.FailedPart != nil {
				line += fmt.Sprintf(" part %d", *n.FailedPart)
			}
			line += ": " + n.Detail
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
