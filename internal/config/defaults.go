package config

// Default returns the baseline configuration before file and environment
// overrides are applied.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: "~/.local/share/clipforge/staging",
			OutputDir:  "~/.local/share/clipforge/output",
			CacheDir:   "~/.cache/clipforge/footage",
			LogDir:     "~/.local/share/clipforge/logs",
			AssetsDir:  "~/.local/share/clipforge/assets",
		},
		Gemini: Gemini{
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			Models:         []string{"gemini-2.5-flash", "gemini-2.0-flash"},
			RPMLimit:       10,
			TPMLimit:       250000,
			DailyLimit:     250,
			RequestTimeout: 120,
			MaxRetries:     0,
		},
		Footage: Footage{
			BaseURL:        "https://api.pexels.com/videos",
			MaxCandidates:  5,
			MinWidth:       720,
			MaxDownloadMiB: 100,
			RequestTimeout: 60,
		},
		TTS: TTS{
			Voice:          "en-US-Standard-D",
			RequestTimeout: 60,
		},
		Render: Render{
			FPS:                    30,
			Width:                  1080,
			Height:                 1920,
			PlaybackSpeed:          1.3,
			HardwareCodec:          "h264_nvenc",
			SoftwareCodec:          "libx264",
			SceneTimeoutSeconds:    300,
			FinalizeTimeoutSeconds: 900,
			ReportStillCount:       2,
			DefaultNarrationSecs:   5.0,
		},
		BGM: BGM{
			Dir:              "~/.local/share/clipforge/assets/bgm",
			Volume:           0.06,
			VoiceBoost:       1.2,
			GeneratorTimeout: 120,
		},
		Cache: Cache{
			RetentionDays: 30,
		},
		Channels: Channels{
			FallbackKeywords: map[string]string{
				"science": "science technology",
				"mystery": "dark mystery",
			},
		},
		Notifications: Notifications{
			RequestTimeout: 10,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
