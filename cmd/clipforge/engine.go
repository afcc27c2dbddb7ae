package main

import (
	"log/slog"
	"path/filepath"
	"strings"

	"clipforge/internal/assetcache"
	"clipforge/internal/config"
	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/relevance"
	"clipforge/internal/render"
	"clipforge/internal/scheduler"
	"clipforge/internal/services/gemini"
	"clipforge/internal/services/music"
	"clipforge/internal/services/pexels"
	"clipforge/internal/services/tts"
)

// engine holds the fully wired production pipeline for one process.
type engine struct {
	cfg         *config.Config
	logger      *slog.Logger
	scheduler   *scheduler.Scheduler
	store       *jobs.Store
	assets      *assetcache.Store
	cache       *assetcache.Cache
	coordinator *render.Coordinator
	notify      notifications.Service
}

func newEngine(cfg *config.Config) (*engine, error) {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}

	sched := newScheduler(cfg, logger)
	classifier := relevance.NewLLMClassifier(sched, logger)
	provider := pexels.NewClient(pexels.Config{
		APIKey:         cfg.Footage.APIKey,
		BaseURL:        cfg.Footage.BaseURL,
		TimeoutSeconds: cfg.Footage.RequestTimeout,
	})

	assets, err := assetcache.OpenStore(filepath.Join(cfg.Paths.CacheDir, "assets.db"))
	if err != nil {
		return nil, err
	}
	cache := assetcache.New(cfg.Paths.CacheDir, assets, provider, classifier, assetcache.Options{
		MaxCandidates: cfg.Footage.MaxCandidates,
		MinWidth:      cfg.Footage.MinWidth,
		MaxBytes:      int64(cfg.Footage.MaxDownloadMiB) << 20,
		RetentionDays: cfg.Cache.RetentionDays,
	}, logger)

	encoder := render.NewFFmpegRunner(cfg.FFmpegBinary(), logger)
	codec := render.NewSelector(cfg.Render.HardwareCodec, cfg.Render.SoftwareCodec)
	synth := tts.NewClient(tts.Config{
		Endpoint:       cfg.TTS.Endpoint,
		APIKey:         cfg.TTS.APIKey,
		Voice:          cfg.TTS.Voice,
		TimeoutSeconds: cfg.TTS.RequestTimeout,
	})

	var generator music.Generator
	if strings.TrimSpace(cfg.BGM.GeneratorEndpoint) != "" {
		generator = music.NewClient(music.Config{
			Endpoint:       cfg.BGM.GeneratorEndpoint,
			APIKey:         cfg.BGM.GeneratorAPIKey,
			TimeoutSeconds: cfg.BGM.GeneratorTimeout,
		})
	}
	bgm := render.NewBGMPicker(cfg.BGM.Dir, generator, logger)

	assembler := render.NewAssembler(cfg, cache, synth, encoder, codec, logger)
	coordinator := render.NewCoordinator(cfg, assembler, encoder, codec, bgm, logger)

	store, err := jobs.Open(cfg)
	if err != nil {
		_ = assets.Close()
		return nil, err
	}

	return &engine{
		cfg:         cfg,
		logger:      logger,
		scheduler:   sched,
		store:       store,
		assets:      assets,
		cache:       cache,
		coordinator: coordinator,
		notify:      notifications.NewService(cfg),
	}, nil
}

func newScheduler(cfg *config.Config, logger *slog.Logger) *scheduler.Scheduler {
	pairs := scheduler.BuildMatrix(cfg.Gemini.APIKeys, cfg.Gemini.Models)
	client := gemini.NewClient(gemini.Config{
		BaseURL:        cfg.Gemini.BaseURL,
		TimeoutSeconds: cfg.Gemini.RequestTimeout,
	})
	limits := scheduler.Limits{
		RPM:   cfg.Gemini.RPMLimit,
		TPM:   cfg.Gemini.TPMLimit,
		Daily: cfg.Gemini.DailyLimit,
	}
	return scheduler.New(pairs, limits, scheduler.ClientInvoker{Client: client}, cfg.Gemini.MaxRetries, logger)
}

func (e *engine) Close() error {
	var firstErr error
	if err := e.store.Close(); err != nil {
		firstErr = err
	}
	if err := e.assets.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
