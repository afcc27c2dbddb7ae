package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	CacheDir   string `toml:"cache_dir"`
	LogDir     string `toml:"log_dir"`
	AssetsDir  string `toml:"assets_dir"`
}

// Gemini contains the credential/model matrix and quota limits for the
// script-writing and relevance-classification LLM.
type Gemini struct {
	APIKeys        []string `toml:"api_keys"`
	Models         []string `toml:"models"`
	BaseURL        string   `toml:"base_url"`
	RPMLimit       int      `toml:"rpm_limit"`
	TPMLimit       int      `toml:"tpm_limit"`
	DailyLimit     int      `toml:"daily_limit"`
	RequestTimeout int      `toml:"request_timeout"`
	MaxRetries     int      `toml:"max_retries"`
}

// Footage contains configuration for the stock footage provider.
type Footage struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	MaxCandidates  int    `toml:"max_candidates"`
	MinWidth       int    `toml:"min_width"`
	MaxDownloadMiB int    `toml:"max_download_mib"`
	RequestTimeout int    `toml:"request_timeout"`
}

// TTS contains configuration for narration synthesis.
type TTS struct {
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	Voice          string `toml:"voice"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Render contains encoding and timing parameters for clip assembly.
type Render struct {
	FPS                    int     `toml:"fps"`
	Width                  int     `toml:"width"`
	Height                 int     `toml:"height"`
	PlaybackSpeed          float64 `toml:"playback_speed"`
	HardwareCodec          string  `toml:"hardware_codec"`
	SoftwareCodec          string  `toml:"software_codec"`
	SceneTimeoutSeconds    int     `toml:"scene_timeout_seconds"`
	FinalizeTimeoutSeconds int     `toml:"finalize_timeout_seconds"`
	ReportStillCount       int     `toml:"report_still_count"`
	DefaultNarrationSecs   float64 `toml:"default_narration_seconds"`
}

// BGM contains background-music mixing configuration. When the local library
// has no track for a mood and a generator endpoint is configured, a track is
// generated and stored in the library.
type BGM struct {
	Dir               string  `toml:"dir"`
	Volume            float64 `toml:"volume"`
	VoiceBoost        float64 `toml:"voice_boost"`
	GeneratorEndpoint string  `toml:"generator_endpoint"`
	GeneratorAPIKey   string  `toml:"generator_api_key"`
	GeneratorTimeout  int     `toml:"generator_timeout"`
}

// Cache contains footage cache retention configuration.
type Cache struct {
	RetentionDays int `toml:"retention_days"`
}

// Channels maps content channel names to the fallback search keyword used when
// a scene's own keyword finds nothing relevant.
type Channels struct {
	FallbackKeywords map[string]string `toml:"fallback_keywords"`
}

// Notifications configures push notifications for job lifecycle events.
// An empty topic disables delivery.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipforge.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Gemini        Gemini        `toml:"gemini"`
	Footage       Footage       `toml:"footage"`
	TTS           TTS           `toml:"tts"`
	Render        Render        `toml:"render"`
	BGM           BGM           `toml:"bgm"`
	Cache         Cache         `toml:"cache"`
	Channels      Channels      `toml:"channels"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipforge/config.toml")
}

// Load locates, parses, and validates a configuration file. Secrets may be
// supplied through the environment (optionally via a .env file) and fill any
// fields the file leaves empty. The returned config has all path fields
// expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	// Best-effort; absence of a .env file is the normal case.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnv() {
	if keys := strings.TrimSpace(os.Getenv("CLIPFORGE_GEMINI_API_KEYS")); keys != "" && len(c.Gemini.APIKeys) == 0 {
		for _, key := range strings.Split(keys, ",") {
			if key = strings.TrimSpace(key); key != "" {
				c.Gemini.APIKeys = append(c.Gemini.APIKeys, key)
			}
		}
	}
	if key := strings.TrimSpace(os.Getenv("CLIPFORGE_PEXELS_API_KEY")); key != "" && strings.TrimSpace(c.Footage.APIKey) == "" {
		c.Footage.APIKey = key
	}
	if key := strings.TrimSpace(os.Getenv("CLIPFORGE_TTS_API_KEY")); key != "" && strings.TrimSpace(c.TTS.APIKey) == "" {
		c.TTS.APIKey = key
	}
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return err
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.AssetsDir, err = expandPath(c.Paths.AssetsDir); err != nil {
		return err
	}
	if c.BGM.Dir, err = expandPath(c.BGM.Dir); err != nil {
		return err
	}

	keys := make([]string, 0, len(c.Gemini.APIKeys))
	for _, key := range c.Gemini.APIKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	c.Gemini.APIKeys = keys

	models := make([]string, 0, len(c.Gemini.Models))
	for _, model := range c.Gemini.Models {
		if model = strings.TrimSpace(model); model != "" {
			models = append(models, model)
		}
	}
	c.Gemini.Models = models

	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.OutputDir, c.Paths.CacheDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for encoding and merging.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// FallbackKeyword returns the channel-specific fallback search keyword, or an
// empty string when the channel has none configured.
func (c *Config) FallbackKeyword(channel string) string {
	if c.Channels.FallbackKeywords == nil {
		return ""
	}
	return strings.TrimSpace(c.Channels.FallbackKeywords[strings.ToLower(strings.TrimSpace(channel))])
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
