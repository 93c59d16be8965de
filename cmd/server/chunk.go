package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexiqai/article-voice/internal/chunk"
)

var flagChunkMax int

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Split text from stdin the way the pipeline does before synthesis",
	Long: `Chunk reads text from stdin and prints the parts it would be
synthesized in, each under a header naming its file and size.

Examples:
  article-voice chunk < article.txt
  article-voice chunk --max 500 < article.txt`,
	Args: cobra.NoArgs,
	RunE: runChunk,
}

func init() {
	rootCmd.AddCommand(chunkCmd)

	chunkCmd.Flags().IntVar(&flagChunkMax, "max", chunk.DefaultMaxSize, "Maximum part size in bytes")
}

func runChunk(cmd *cobra.Command, args []string) error {
	if flagChunkMax < 1 {
		return fmt.Errorf("--max must be positive, got %d", flagChunkMax)
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	return writeChunks(cmd.OutOrStdout(), chunk.Split(strings.TrimSpace(string(data)), flagChunkMax))
}

func writeChunks(w io.Writer, chunks []string) error {
	for i, c := range chunks {
		if _, err := fmt.Fprintf(w, "--- part_%d.mp3 (%d bytes) ---\n%s\n", i, len(c), c); err != nil {
			return err
		}
	}
	return nil
}
