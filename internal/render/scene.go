package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/services"
	"clipforge/internal/services/tts"
)

// silenceCue marks a dramatic pause in a scripted sentence: the BGM is ducked
// to zero for the scene's window. It is stripped before narration synthesis.
const silenceCue = "[silence]"

// Scene is one ordered narration unit from the upstream script writer.
type Scene struct {
	Index    int    `json:"index"`
	Sentence string `json:"sentence"`
	Keyword  string `json:"keyword"`
}

// SceneResult is the output of assembling one scene.
type SceneResult struct {
	Index    int
	ClipPath string
	Duration float64
	Subtitle string
	Silence  bool
}

// Job describes one video to produce.
type Job struct {
	ID      string
	Title   string
	Channel string
	Mood    string
	Report  bool
	Stills  []string
	Scenes  []Scene
}

// FootageResolver supplies a local visual for a search keyword.
type FootageResolver interface {
	Resolve(ctx context.Context, keyword, videoContext, destPath string) error
}

// Assembler produces one encoded clip per scene.
type Assembler struct {
	cfg        *config.Config
	footage    FootageResolver
	synth      tts.Synthesizer
	encoder    Encoder
	codec      *Selector
	logger     *slog.Logger
	probeAudio func(ctx context.Context, path string) (float64, error)
}

// NewAssembler wires a scene assembler.
func NewAssembler(cfg *config.Config, footage FootageResolver, synth tts.Synthesizer, encoder Encoder, codec *Selector, logger *slog.Logger) *Assembler {
	a := &Assembler{
		cfg:     cfg,
		footage: footage,
		synth:   synth,
		encoder: encoder,
		codec:   codec,
		logger:  logging.NewComponentLogger(logger, "assembler"),
	}
	a.probeAudio = func(ctx context.Context, path string) (float64, error) {
		return ffprobe.AudioDuration(ctx, cfg.FFprobeBinary(), path)
	}
	return a
}

// AssembleScene produces the encoded clip for one scene in workDir.
func (a *Assembler) AssembleScene(ctx context.Context, job Job, scene Scene, workDir string) (SceneResult, error) {
	logger := a.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.Int(logging.FieldSceneIndex, scene.Index))

	cleaned, silent := stripSilenceCue(scene.Sentence)

	visual, isImage, err := a.resolveVisual(ctx, job, scene, workDir, logger)
	if err != nil {
		return SceneResult{}, err
	}

	audioPath := filepath.Join(workDir, fmt.Sprintf("scene_%02d_narration.mp3", scene.Index))
	rawDuration, haveAudio := a.synthesizeNarration(ctx, cleaned, audioPath, logger)

	speed := a.cfg.Render.PlaybackSpeed
	if speed <= 0 {
		speed = 1
	}
	duration := rawDuration / speed

	clipPath := filepath.Join(workDir, fmt.Sprintf("scene_%02d.mp4", scene.Index))
	timeout := time.Duration(a.cfg.Render.SceneTimeoutSeconds) * time.Second
	err = encodeWithFallback(ctx, a.encoder, a.codec, timeout, clipPath, logger, func(codec string) []string {
		return a.sceneArgs(codec, visual, isImage, audioPath, haveAudio, duration, speed, clipPath)
	})
	if err != nil {
		return SceneResult{}, services.Wrap(services.ErrExternalTool, "assembler", "encode_scene",
			fmt.Sprintf("scene %d", scene.Index), err)
	}

	logger.Info("scene assembled",
		logging.String(logging.FieldEventType, "scene_assembled"),
		logging.Float64("duration_seconds", duration),
		logging.Bool("silence", silent))

	return SceneResult{
		Index:    scene.Index,
		ClipPath: clipPath,
		Duration: duration,
		Subtitle: cleaned,
		Silence:  silent,
	}, nil
}

// resolveVisual returns the visual input for the scene: a designated still for
// the leading scenes of a report job, otherwise cached or fresh footage with
// one channel-specific fallback keyword before the scene is declared failed.
func (a *Assembler) resolveVisual(ctx context.Context, job Job, scene Scene, workDir string, logger *slog.Logger) (string, bool, error) {
	if job.Report && scene.Index < a.cfg.Render.ReportStillCount && scene.Index < len(job.Stills) {
		return job.Stills[scene.Index], true, nil
	}

	dest := filepath.Join(workDir, fmt.Sprintf("scene_%02d_footage.mp4", scene.Index))
	err := a.footage.Resolve(ctx, scene.Keyword, job.Title, dest)
	if err == nil {
		return dest, false, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return "", false, err
	}

	fallback := a.cfg.FallbackKeyword(job.Channel)
	if fallback == "" {
		return "", false, err
	}
	logger.Warn("no footage for keyword, trying channel fallback",
		logging.String(logging.FieldEventType, "footage_fallback"),
		logging.String(logging.FieldKeyword, scene.Keyword),
		logging.String("fallback_keyword", fallback))

	if fbErr := a.footage.Resolve(ctx, fallback, job.Title, dest); fbErr != nil {
		return "", false, services.Wrap(services.ErrNotFound, "assembler", "resolve_visual",
			fmt.Sprintf("keyword %q and fallback %q both failed", scene.Keyword, fallback), fbErr)
	}
	return dest, false, nil
}

// synthesizeNarration returns the raw narration length and whether an audio
// file was produced. Synthesis failure is absorbed: the configured default
// duration stands in and the scene ships without narration audio.
func (a *Assembler) synthesizeNarration(ctx context.Context, text, audioPath string, logger *slog.Logger) (float64, bool) {
	defaultSecs := a.cfg.Render.DefaultNarrationSecs
	if defaultSecs <= 0 {
		defaultSecs = 5
	}
	if strings.TrimSpace(text) == "" {
		return defaultSecs, false
	}

	if err := a.synth.Synthesize(ctx, text, audioPath); err != nil {
		logger.Warn("narration synthesis failed, substituting default duration",
			logging.String(logging.FieldEventType, "synthesis_degraded"),
			logging.Float64("default_seconds", defaultSecs),
			logging.Error(err))
		return defaultSecs, false
	}

	duration, err := a.probeAudio(ctx, audioPath)
	if err != nil {
		logger.Warn("narration duration probe failed, substituting default duration",
			logging.String(logging.FieldEventType, "synthesis_degraded"),
			logging.Float64("default_seconds", defaultSecs),
			logging.Error(err))
		return defaultSecs, false
	}
	return duration, true
}

func (a *Assembler) sceneArgs(codec, visual string, isImage bool, audioPath string, haveAudio bool, duration, speed float64, outPath string) []string {
	r := a.cfg.Render
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d",
		r.Width, r.Height, r.Width, r.Height, r.FPS)

	args := []string{"-y"}
	if isImage {
		args = append(args, "-loop", "1")
	} else {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-i", visual)
	if haveAudio {
		args = append(args, "-i", audioPath)
	} else {
		// The concat demuxer takes the stream layout from the first segment,
		// so every clip must carry an audio track even when narration is
		// missing. A silent bed keeps degraded scenes mergeable.
		args = append(args,
			"-f", "lavfi",
			"-t", formatSeconds(duration),
			"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		)
	}
	args = append(args,
		"-t", formatSeconds(duration),
		"-vf", vf,
		"-pix_fmt", "yuv420p",
		"-c:v", codec,
		"-map", "0:v:0",
		"-map", "1:a:0",
	)
	if haveAudio {
		args = append(args, "-af", fmt.Sprintf("atempo=%s", formatSeconds(speed)))
	}
	args = append(args, "-c:a", "aac", "-b:a", "128k")
	return append(args, outPath)
}

// stripSilenceCue removes the silence marker from the sentence and reports
// whether it was present. The marker is matched case-insensitively in place;
// lowercasing the whole sentence first would shift byte offsets for some
// non-ASCII runes.
func stripSilenceCue(sentence string) (string, bool) {
	for i := 0; i+len(silenceCue) <= len(sentence); i++ {
		if strings.EqualFold(sentence[i:i+len(silenceCue)], silenceCue) {
			cleaned := sentence[:i] + sentence[i+len(silenceCue):]
			return strings.Join(strings.Fields(cleaned), " "), true
		}
	}
	return strings.TrimSpace(sentence), false
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
