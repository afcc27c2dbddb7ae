package assetcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"clipforge/internal/fileutil"
	"clipforge/internal/logging"
	"clipforge/internal/relevance"
	"clipforge/internal/services"
	"clipforge/internal/services/pexels"
)

// Provider is the slice of the footage API the cache consumes.
type Provider interface {
	Search(ctx context.Context, keyword string, perPage int) ([]pexels.Candidate, error)
	Download(ctx context.Context, rendition pexels.Rendition, destPath string, maxBytes int64) error
}

// Options bound the provider search and download behavior.
type Options struct {
	MaxCandidates int
	MinWidth      int
	MaxBytes      int64
	RetentionDays int
}

// Cache resolves keywords to local footage files.
type Cache struct {
	dir        string
	store      *Store
	provider   Provider
	classifier relevance.Classifier
	opts       Options
	logger     *slog.Logger
	clock      func() time.Time
}

// New constructs a cache rooted at dir with metadata in store.
func New(dir string, store *Store, provider Provider, classifier relevance.Classifier, opts Options, logger *slog.Logger) *Cache {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 5
	}
	if opts.MinWidth <= 0 {
		opts.MinWidth = 720
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	return &Cache{
		dir:        dir,
		store:      store,
		provider:   provider,
		classifier: classifier,
		opts:       opts,
		logger:     logging.NewComponentLogger(logger, "assetcache"),
		clock:      time.Now,
	}
}

// WithClock overrides the time source (useful for tests).
func (c *Cache) WithClock(clock func() time.Time) *Cache {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// Resolve returns a usable local media file for keyword at destPath,
// preferring a verified cached file over a fresh provider query. It returns a
// services.ErrNotFound-tagged error when no relevant candidate exists.
func (c *Cache) Resolve(ctx context.Context, keyword, videoContext, destPath string) error {
	if hit, err := c.resolveCached(ctx, keyword, videoContext, destPath); err != nil {
		return err
	} else if hit {
		return nil
	}
	return c.resolveFresh(ctx, keyword, videoContext, destPath)
}

// resolveCached walks existing records for the keyword. Records whose backing
// file vanished are purged on the spot; surviving records are re-classified
// against the current context before being accepted.
func (c *Cache) resolveCached(ctx context.Context, keyword, videoContext, destPath string) (bool, error) {
	records, err := c.store.ByKeyword(ctx, keyword)
	if err != nil {
		return false, fmt.Errorf("cache lookup: %w", err)
	}

	for _, record := range records {
		if _, err := os.Stat(record.FilePath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// A record must never outlive its backing file.
				if delErr := c.store.Delete(ctx, record.AssetID); delErr != nil {
					c.logger.Warn("failed to purge stale cache record",
						logging.String(logging.FieldEventType, "cache_purge_failed"),
						logging.Int64("asset_id", record.AssetID),
						logging.Error(delErr))
				}
				continue
			}
			return false, fmt.Errorf("stat cached file: %w", err)
		}

		relevant, err := c.classifier.Relevant(ctx, record.ThumbnailURL, keyword, videoContext)
		if err != nil || !relevant {
			if err != nil {
				c.logger.Debug("classifier error on cached record, skipping",
					logging.String(logging.FieldKeyword, keyword),
					logging.Int64("asset_id", record.AssetID),
					logging.Error(err))
			}
			continue
		}

		if err := fileutil.CopyFile(record.FilePath, destPath); err != nil {
			return false, fmt.Errorf("copy cached file: %w", err)
		}
		if err := c.store.Touch(ctx, record.AssetID, c.clock()); err != nil {
			c.logger.Warn("failed to touch cache record",
				logging.String(logging.FieldEventType, "cache_touch_failed"),
				logging.Int64("asset_id", record.AssetID),
				logging.Error(err))
		}
		c.logger.Debug("cache hit",
			logging.String(logging.FieldEventType, "cache_hit"),
			logging.String(logging.FieldKeyword, keyword),
			logging.Int64("asset_id", record.AssetID))
		return true, nil
	}
	return false, nil
}

// resolveFresh queries the provider and downloads the first relevant candidate.
func (c *Cache) resolveFresh(ctx context.Context, keyword, videoContext, destPath string) error {
	candidates, err := c.provider.Search(ctx, keyword, c.opts.MaxCandidates)
	if err != nil {
		return services.Wrap(services.ErrRetryable, "assetcache", "search", keyword, err)
	}

	for _, candidate := range candidates {
		relevant, err := c.classifier.Relevant(ctx, candidate.ThumbnailURL(), keyword, videoContext)
		if err != nil {
			// Classifier errors demote the candidate, not the whole search.
			c.logger.Debug("classifier error on candidate, skipping",
				logging.String(logging.FieldKeyword, keyword),
				logging.Int64("asset_id", candidate.ID),
				logging.Error(err))
			continue
		}
		if !relevant {
			continue
		}

		rendition, ok := candidate.BestRendition(c.opts.MinWidth)
		if !ok {
			c.logger.Debug("no eligible rendition for candidate",
				logging.String(logging.FieldKeyword, keyword),
				logging.Int64("asset_id", candidate.ID))
			continue
		}

		if err := c.provider.Download(ctx, rendition, destPath, c.opts.MaxBytes); err != nil {
			return services.Wrap(services.ErrRetryable, "assetcache", "download", keyword, err)
		}

		c.persist(ctx, keyword, candidate, rendition, destPath)
		return nil
	}

	return services.Wrap(services.ErrNotFound, "assetcache", "resolve", "no relevant footage for "+strconv.Quote(keyword), nil)
}

// persist copies the download into the content-addressed cache and records
// metadata. Failures here are logged and swallowed: caching is an
// optimization, never a correctness requirement for the caller.
func (c *Cache) persist(ctx context.Context, keyword string, candidate pexels.Candidate, rendition pexels.Rendition, downloadedPath string) {
	keywordDir := filepath.Join(c.dir, keywordHash(keyword))
	if err := os.MkdirAll(keywordDir, 0o755); err != nil {
		c.logger.Warn("cache persist failed",
			logging.String(logging.FieldEventType, "cache_persist_failed"),
			logging.String(logging.FieldKeyword, keyword),
			logging.Error(err))
		return
	}

	cachePath := filepath.Join(keywordDir, strconv.FormatInt(candidate.ID, 10)+filepath.Ext(downloadedPath))
	if err := fileutil.CopyFile(downloadedPath, cachePath); err != nil {
		c.logger.Warn("cache persist failed",
			logging.String(logging.FieldEventType, "cache_persist_failed"),
			logging.String(logging.FieldKeyword, keyword),
			logging.Error(err))
		return
	}

	inserted, err := c.store.InsertIfAbsent(ctx, Asset{
		AssetID:      candidate.ID,
		Keyword:      keyword,
		FilePath:     cachePath,
		ThumbnailURL: candidate.ThumbnailURL(),
		Width:        rendition.Width,
		Height:       rendition.Height,
		LastUsedAt:   c.clock(),
		UseCount:     1,
	})
	if err != nil {
		c.logger.Warn("cache metadata insert failed",
			logging.String(logging.FieldEventType, "cache_persist_failed"),
			logging.String(logging.FieldKeyword, keyword),
			logging.Error(err))
		return
	}
	if inserted {
		c.logger.Debug("cached new asset",
			logging.String(logging.FieldEventType, "cache_insert"),
			logging.String(logging.FieldKeyword, keyword),
			logging.Int64("asset_id", candidate.ID))
	}
}

// Sweep deletes every record (and backing file) whose last use predates the
// retention threshold. Records with already-missing files are removed anyway.
// It returns the number of records evicted.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	cutoff := c.clock().AddDate(0, 0, -c.opts.RetentionDays)
	stale, err := c.store.OlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep query: %w", err)
	}

	evicted := 0
	for _, record := range stale {
		if err := os.Remove(record.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("failed to delete cached file",
				logging.String(logging.FieldEventType, "cache_evict_failed"),
				logging.Int64("asset_id", record.AssetID),
				logging.String("path", record.FilePath),
				logging.Error(err))
			continue
		}
		if err := c.store.Delete(ctx, record.AssetID); err != nil {
			c.logger.Warn("failed to delete cache record",
				logging.String(logging.FieldEventType, "cache_evict_failed"),
				logging.Int64("asset_id", record.AssetID),
				logging.Error(err))
			continue
		}
		evicted++
	}

	if evicted > 0 {
		c.logger.Info("cache sweep complete",
			logging.String(logging.FieldEventType, "cache_sweep"),
			logging.Int("evicted", evicted),
			logging.Duration("retention", time.Duration(c.opts.RetentionDays)*24*time.Hour))
	}
	return evicted, nil
}

func keywordHash(keyword string) string {
	sum := sha256.Sum256([]byte(keyword))
	return hex.EncodeToString(sum[:8])
}
