// Package output writes narration parts to disk for the command line.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/lexiqai/article-voice/internal/pipeline"
)

// Writer is a pipeline.Replier that saves each audio part as a file and
// prints text replies
type Writer struct {
	OutputDir string

	out     io.Writer
	mu      sync.Mutex
	written []string
}

// New creates a Writer targeting outputDir, defaulting to the working directory
func New(outputDir string, out io.Writer) (*Writer, error) {
	if outputDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		outputDir = wd
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	if out == nil {
		out = io.Discard
	}
	return &Writer{OutputDir: outputDir, out: out}, nil
}

// SendText prints text on its own line
func (w *Writer) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, text)
	return err
}

// SendAudio writes the part under its file name
func (w *Writer) SendAudio(ctx context.Context, a pipeline.AudioArtifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(w.OutputDir, a.FileName)
	if err := os.WriteFile(path, a.Data, 0644); err != nil {
		return fmt.Errorf("writing file %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, path)
	fmt.Fprintf(w.out, "✓ Written: %s\n", path)
	return nil
}

// Written returns the paths saved so far, in delivery order
func (w *Writer) Written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}
