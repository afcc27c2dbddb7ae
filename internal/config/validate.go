package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures deep inside the pipeline.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		problems = append(problems, "paths.staging_dir is required")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		problems = append(problems, "paths.output_dir is required")
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		problems = append(problems, "paths.cache_dir is required")
	}

	if len(c.Gemini.Models) == 0 {
		problems = append(problems, "gemini.models must list at least one model")
	}
	if c.Gemini.RPMLimit <= 0 {
		problems = append(problems, "gemini.rpm_limit must be positive")
	}
	if c.Gemini.TPMLimit <= 0 {
		problems = append(problems, "gemini.tpm_limit must be positive")
	}
	if c.Gemini.DailyLimit <= 0 {
		problems = append(problems, "gemini.daily_limit must be positive")
	}

	if c.Footage.MaxCandidates <= 0 {
		problems = append(problems, "footage.max_candidates must be positive")
	}
	if c.Footage.MinWidth <= 0 {
		problems = append(problems, "footage.min_width must be positive")
	}
	if c.Footage.MaxDownloadMiB <= 0 {
		problems = append(problems, "footage.max_download_mib must be positive")
	}

	if c.Render.FPS <= 0 {
		problems = append(problems, "render.fps must be positive")
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		problems = append(problems, "render.width and render.height must be positive")
	}
	if c.Render.PlaybackSpeed <= 0 {
		problems = append(problems, "render.playback_speed must be positive")
	}
	if strings.TrimSpace(c.Render.SoftwareCodec) == "" {
		problems = append(problems, "render.software_codec is required")
	}
	if c.Render.SceneTimeoutSeconds <= 0 {
		problems = append(problems, "render.scene_timeout_seconds must be positive")
	}
	if c.Render.FinalizeTimeoutSeconds <= 0 {
		problems = append(problems, "render.finalize_timeout_seconds must be positive")
	}
	if c.Render.DefaultNarrationSecs <= 0 {
		problems = append(problems, "render.default_narration_seconds must be positive")
	}

	if c.BGM.Volume < 0 || c.BGM.Volume > 1 {
		problems = append(problems, "bgm.volume must be within [0, 1]")
	}
	if c.BGM.VoiceBoost <= 0 {
		problems = append(problems, "bgm.voice_boost must be positive")
	}

	if c.Cache.RetentionDays <= 0 {
		problems = append(problems, "cache.retention_days must be positive")
	}

	if len(problems) == 0 {
		return nil
	}
	if len(problems) == 1 {
		return errors.New(problems[0])
	}
	return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
}
