package render

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipforge/internal/logging"
)

// stubCommand replaces the spawned process with a shell snippet; the real
// arguments are still recorded through the Encoder interface in other tests.
func stubCommand(t *testing.T, script string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	t.Cleanup(func() { commandContext = original })
}

func TestFFmpegRunnerVerifiesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	stubCommand(t, "printf data > "+out)

	runner := NewFFmpegRunner("ffmpeg", logging.NewNop())
	if err := runner.Run(context.Background(), time.Minute, out, "-y"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestFFmpegRunnerRejectsMissingOutput(t *testing.T) {
	stubCommand(t, "exit 0")

	runner := NewFFmpegRunner("ffmpeg", logging.NewNop())
	err := runner.Run(context.Background(), time.Minute, filepath.Join(t.TempDir(), "never.mp4"), "-y")
	if err == nil {
		t.Fatal("zero exit with no output file must still fail")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("err = %v", err)
	}
}

func TestFFmpegRunnerRejectsEmptyOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.mp4")
	stubCommand(t, ": > "+out)

	runner := NewFFmpegRunner("ffmpeg", logging.NewNop())
	if err := runner.Run(context.Background(), time.Minute, out, "-y"); err == nil {
		t.Fatal("zero-byte output must fail")
	}
}

func TestFFmpegRunnerSurfacesStderrOnFailure(t *testing.T) {
	stubCommand(t, "echo 'Unknown encoder h264_nvenc' >&2; exit 1")

	runner := NewFFmpegRunner("ffmpeg", logging.NewNop())
	err := runner.Run(context.Background(), time.Minute, "/nonexistent/out.mp4", "-y")
	if err == nil {
		t.Fatal("expected error on non-zero exit")
	}
	if !strings.Contains(err.Error(), "Unknown encoder") {
		t.Errorf("err = %v, want stderr tail included", err)
	}
}

func TestFFmpegRunnerKillsOnTimeout(t *testing.T) {
	stubCommand(t, "sleep 5")

	runner := NewFFmpegRunner("ffmpeg", logging.NewNop())
	start := time.Now()
	err := runner.Run(context.Background(), 100*time.Millisecond, "/nonexistent/out.mp4", "-y")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("process was not killed promptly")
	}
}
