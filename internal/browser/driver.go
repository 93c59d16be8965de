package browser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/article-voice/internal/observability"
)

// readyMarker is printed by geckodriver once it accepts connections
const readyMarker = "Listening"

// ErrDriverExited is returned when the driver exits before reporting ready
var ErrDriverExited = errors.New("webdriver process exited before ready")

// Driver owns the local WebDriver server process
type Driver struct {
	path   string
	cmd    *exec.Cmd
	logger zerolog.Logger
	exited chan struct{}

	stopOnce sync.Once
}

// StartDriver kills stale driver processes, starts path and waits until it
// prints its ready line or readyTimeout elapses
func StartDriver(ctx context.Context, path string, readyTimeout time.Duration) (*Driver, error) {
	logger := observability.GetLogger().With().Str("component", "webdriver").Logger()

	// A driver left over from a previous run would hold the port.
	if err := exec.Command("pkill", filepath.Base(path)).Run(); err == nil {
		logger.Info().Str("driver", filepath.Base(path)).Msg("Killed stale driver process")
	}

	cmd := exec.Command(path)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach driver stdout: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start driver %q: %w", path, err)
	}

	d := &Driver{
		path:   path,
		cmd:    cmd,
		logger: logger,
		exited: make(chan struct{}),
	}

	ready := make(chan struct{})
	go func() {
		ScanOutput(stdout, logger, ready)
		cmd.Wait()
		close(d.exited)
	}()

	timer := time.NewTimer(readyTimeout)
	defer timer.Stop()

	select {
	case <-ready:
		logger.Info().Int("pid", cmd.Process.Pid).Msg("Driver ready")
		return d, nil
	case <-d.exited:
		return nil, ErrDriverExited
	case <-timer.C:
		d.Stop()
		return nil, fmt.Errorf("driver not ready after %v", readyTimeout)
	case <-ctx.Done():
		d.Stop()
		return nil, ctx.Err()
	}
}

// ScanOutput logs every driver output line at debug level and closes ready
// on the first line containing the ready marker. It returns at EOF.
func ScanOutput(r io.Reader, logger zerolog.Logger, ready chan<- struct{}) {
	signalled := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug().Str("line", line).Msg("Driver output")
		if !signalled && strings.Contains(line, readyMarker) {
			close(ready)
			signalled = true
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn().Err(err).Msg("Driver output scan stopped")
	}
}

// Exited is closed once the driver process is gone
func (d *Driver) Exited() <-chan struct{} {
	return d.exited
}

// Stop kills the driver process and waits for it to exit
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		if d.cmd.Process != nil {
			d.cmd.Process.Kill()
		}
		select {
		case <-d.exited:
		case <-time.After(5 * time.Second):
			d.logger.Warn().Msg("Driver did not exit after kill")
		}
	})
}
