package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures one ffmpeg progress report.
type ProgressUpdate struct {
	OutTimeSeconds float64
	Speed          string
	Done           bool
}

// Client defines encoding behaviour.
type Client interface {
	Encode(ctx context.Context, args []string, progress func(ProgressUpdate)) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the ffmpeg command-line encoder.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Encode launches ffmpeg with the given arguments, streaming progress reports
// from a machine-readable progress pipe on stdout. Exactly one terminal
// outcome is produced per invocation.
func (c *CLI) Encode(ctx context.Context, args []string, progress func(ProgressUpdate)) error {
	if len(args) == 0 {
		return errors.New("ffmpeg encode: no arguments")
	}

	full := append([]string{"-progress", "pipe:1", "-nostats"}, args...)
	cmd := commandContext(ctx, c.binary, full...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Kill the whole process group; ctx expiry must not leave a
		// detached encoder running.
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	update := ProgressUpdate{}
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			if micros, err := strconv.ParseInt(value, 10, 64); err == nil && micros > 0 {
				update.OutTimeSeconds = float64(micros) / 1e6
			}
		case "speed":
			update.Speed = strings.TrimSpace(value)
		case "progress":
			update.Done = value == "end"
			if progress != nil {
				progress(update)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg encode: %w", ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("ffmpeg encode failed: %w: %s", err, lastLine(detail))
		}
		return fmt.Errorf("ffmpeg encode failed: %w", err)
	}
	return nil
}

// lastLine trims stderr down to its final line; ffmpeg puts the actionable
// message there.
func lastLine(detail string) string {
	lines := strings.Split(detail, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return detail
}

var _ Client = (*CLI)(nil)
