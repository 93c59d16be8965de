package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/article-voice/internal/config"
	"github.com/lexiqai/article-voice/internal/observability"
	"github.com/lexiqai/article-voice/internal/output"
	"github.com/lexiqai/article-voice/internal/pipeline"
)

var flagOutputDir string

var narrateCmd = &cobra.Command{
	Use:   "narrate <url>",
	Short: "Narrate one article into mp3 files without a chat transport",
	Long: `Narrate runs a single URL through the pipeline and writes part_<i>.mp3
files to the output directory. Progress and error messages go to stdout.

Examples:
  article-voice narrate https://example.com/post
  article-voice narrate https://example.com/post --output_dir ./out`,
	Args: cobra.ExactArgs(1),
	RunE: runNarrate,
}

func init() {
	rootCmd.AddCommand(narrateCmd)

	narrateCmd.Flags().StringVar(&flagOutputDir, "output_dir", "", "Output directory (default: current directory)")
}

func runNarrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)

	writer, err := output.New(flagOutputDir, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.Close(closeCtx)
	}()

	req := pipeline.Request{
		ID:        observability.NewCorrelationID(),
		Requester: "cli-" + hostname(),
		URL:       args[0],
		Reply:     writer,
	}
	if err := a.pipeline.Handle(ctx, req); err != nil {
		return err
	}

	if len(writer.Written()) == 0 {
		return fmt.Errorf("no audio written for %s", args[0])
	}
	return nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "local"
	}
	return name
}
