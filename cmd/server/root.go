package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "article-voice",
	Short: "article-voice turns article URLs into narrated mp3 parts",
	Long: `article-voice extracts the main text of an article, rewrites it for
listening with a chat model and reads it aloud in numbered mp3 parts.

Usage:
  article-voice serve
  article-voice narrate <url> [flags]
  article-voice chunk [flags] < article.txt
  article-voice history <requester> [flags]`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
