package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/services"
	"clipforge/internal/subtitles"
)

// Finalize turns a job's assembled clips into the finished video: subtitle
// generation, lossless concat, and a single subtitle-burn/BGM-mix encode. It
// takes the PipelineOutput rather than live scene state so a job can be
// re-finalized from persisted intermediate output.
func (c *Coordinator) Finalize(ctx context.Context, job Job, output *PipelineOutput, workDir string) (string, error) {
	if output == nil || len(output.ClipPaths) == 0 {
		return "", errors.New("finalize: no clips to merge")
	}
	logger := c.logger.With(logging.String(logging.FieldJobID, job.ID))
	timeout := time.Duration(c.cfg.Render.FinalizeTimeoutSeconds) * time.Second

	srtPath, err := c.writeSubtitles(output, workDir)
	if err != nil {
		return "", err
	}

	mergedPath, err := c.concatClips(ctx, output.ClipPaths, workDir, timeout)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "pipeline", "concat", "merge scene clips", err)
	}

	bgmPath := c.bgm.Select(ctx, output.Mood)
	if bgmPath == "" {
		logger.Info("finalizing without BGM",
			logging.String(logging.FieldEventType, "finalize_no_bgm"),
			logging.String("mood", output.Mood))
	}

	finalPath := filepath.Join(c.cfg.Paths.OutputDir, job.ID+".mp4")
	err = encodeWithFallback(ctx, c.encoder, c.codec, timeout, finalPath, logger, func(codec string) []string {
		return c.finalArgs(codec, mergedPath, srtPath, bgmPath, output.SilenceRanges, finalPath)
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "pipeline", "finalize", "final mix", err)
	}

	logger.Info("job finalized",
		logging.String(logging.FieldEventType, "job_finalized"),
		logging.String("output", finalPath))
	return finalPath, nil
}

func (c *Coordinator) writeSubtitles(output *PipelineOutput, workDir string) (string, error) {
	cues, err := subtitles.Build(output.Subtitles, output.Durations, subtitles.DefaultMaxLineChars)
	if err != nil {
		return "", fmt.Errorf("finalize: build subtitles: %w", err)
	}
	srtPath := filepath.Join(workDir, "subtitles.srt")
	if err := os.WriteFile(srtPath, []byte(subtitles.Render(cues)), 0o644); err != nil {
		return "", fmt.Errorf("finalize: write subtitles: %w", err)
	}
	return srtPath, nil
}

// concatClips merges the scene clips with the concat demuxer: stream copy,
// no re-encode.
func (c *Coordinator) concatClips(ctx context.Context, clips []string, workDir string, timeout time.Duration) (string, error) {
	listPath := filepath.Join(workDir, "concat_list.txt")
	var list strings.Builder
	for _, clip := range clips {
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(clip, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}

	mergedPath := filepath.Join(workDir, "merged.mp4")
	err := c.encoder.Run(ctx, timeout, mergedPath,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		mergedPath,
	)
	if err != nil {
		return "", err
	}
	return mergedPath, nil
}

func (c *Coordinator) finalArgs(codec, mergedPath, srtPath, bgmPath string, silences []SilenceRange, outPath string) []string {
	voiceBoost := c.cfg.BGM.VoiceBoost
	if voiceBoost <= 0 {
		voiceBoost = 1.2
	}
	burn := "subtitles=" + escapeFilterPath(srtPath)

	if bgmPath == "" {
		return []string{
			"-y",
			"-i", mergedPath,
			"-vf", burn,
			"-af", fmt.Sprintf("volume=%s", formatSeconds(voiceBoost)),
			"-c:v", codec,
			"-pix_fmt", "yuv420p",
			"-c:a", "aac",
			outPath,
		}
	}

	bgmLevel := c.cfg.BGM.Volume
	if bgmLevel <= 0 {
		bgmLevel = 0.15
	}
	filter := fmt.Sprintf(
		"[0:v]%s[v];[0:a]volume=%s[voice];[1:a]%s[bgm];[voice][bgm]amix=inputs=2:duration=first[a]",
		burn,
		formatSeconds(voiceBoost),
		bgmVolumeFilter(bgmLevel, silences),
	)
	return []string{
		"-y",
		"-i", mergedPath,
		"-stream_loop", "-1",
		"-i", bgmPath,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", codec,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		outPath,
	}
}

// bgmVolumeFilter holds the music at a low constant gain except during the
// silence windows, where it is driven to zero frame by frame.
func bgmVolumeFilter(level float64, silences []SilenceRange) string {
	if len(silences) == 0 {
		return "volume=" + formatSeconds(level)
	}
	terms := make([]string, len(silences))
	for i, r := range silences {
		terms[i] = fmt.Sprintf("between(t,%s,%s)", formatSeconds(r.Start), formatSeconds(r.End))
	}
	return fmt.Sprintf("volume='if(%s,0,%s)':eval=frame", strings.Join(terms, "+"), formatSeconds(level))
}

// escapeFilterPath quotes a path for use inside an ffmpeg filter argument.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	return "'" + replacer.Replace(path) + "'"
}
