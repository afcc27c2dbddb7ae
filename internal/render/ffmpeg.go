package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"clipforge/internal/fileutil"
	"clipforge/internal/logging"
)

var commandContext = exec.CommandContext

// Encoder runs one external encode or merge invocation. The produced output
// file must exist and be non-empty for the invocation to count as a success;
// exit codes alone are not trusted.
type Encoder interface {
	Run(ctx context.Context, timeout time.Duration, outputPath string, args ...string) error
}

// FFmpegRunner invokes ffmpeg with a hard per-invocation timeout.
type FFmpegRunner struct {
	binary string
	logger *slog.Logger
}

// NewFFmpegRunner builds a runner for the given ffmpeg binary.
func NewFFmpegRunner(binary string, logger *slog.Logger) *FFmpegRunner {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpegRunner{
		binary: binary,
		logger: logging.NewComponentLogger(logger, "ffmpeg"),
	}
}

// Run implements Encoder. A timeout kills the process and is treated
// identically to a non-zero exit.
func (r *FFmpegRunner) Run(ctx context.Context, timeout time.Duration, outputPath string, args ...string) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := commandContext(ctx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("ffmpeg timed out after %s: %s", timeout, stderrTail(stderr.Bytes()))
	}
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, stderrTail(stderr.Bytes()))
	}
	if err := fileutil.VerifyNonEmpty(outputPath); err != nil {
		return err
	}

	r.logger.Debug("ffmpeg invocation complete",
		logging.String("output", outputPath),
		logging.Duration("elapsed", elapsed))
	return nil
}

// stderrTail keeps the end of the encoder's stderr, where ffmpeg puts the
// actionable line.
func stderrTail(out []byte) string {
	const keep = 400
	text := strings.TrimSpace(string(out))
	if len(text) > keep {
		text = "..." + text[len(text)-keep:]
	}
	return text
}

// encodeWithFallback runs the command built for the currently selected codec
// and, on a hardware failure, downgrades the selector once and re-runs the
// whole command with the software codec rather than patching partial output.
func encodeWithFallback(ctx context.Context, enc Encoder, sel *Selector, timeout time.Duration, outputPath string, logger *slog.Logger, build func(codec string) []string) error {
	codec := sel.Current()
	err := enc.Run(ctx, timeout, outputPath, build(codec)...)
	if err == nil || codec == sel.Software() {
		return err
	}

	if sel.Downgrade() {
		logger.Warn("hardware encode failed, downgrading to software codec for the rest of the process",
			logging.String(logging.FieldEventType, "codec_downgrade"),
			logging.String("hardware_codec", codec),
			logging.String("software_codec", sel.Software()),
			logging.Error(err))
	}
	_ = os.Remove(outputPath)
	return enc.Run(ctx, timeout, outputPath, build(sel.Current())...)
}

var _ Encoder = (*FFmpegRunner)(nil)
