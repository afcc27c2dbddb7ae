package assetcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Asset is the metadata record for one cached footage file.
type Asset struct {
	AssetID      int64
	Keyword      string
	FilePath     string
	ThumbnailURL string
	Width        int
	Height       int
	LastUsedAt   time.Time
	UseCount     int
}

// Store manages cache metadata persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS cached_assets (
    asset_id      INTEGER PRIMARY KEY,
    keyword       TEXT NOT NULL,
    file_path     TEXT NOT NULL,
    thumbnail_url TEXT NOT NULL DEFAULT '',
    width         INTEGER NOT NULL DEFAULT 0,
    height        INTEGER NOT NULL DEFAULT 0,
    last_used_at  TEXT NOT NULL,
    use_count     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cached_assets_keyword ON cached_assets(keyword);
CREATE INDEX IF NOT EXISTS idx_cached_assets_last_used ON cached_assets(last_used_at);
`

// OpenStore initializes or connects to the cache metadata database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertIfAbsent records metadata for a downloaded asset. The insert is
// idempotent on asset id so concurrent identical-keyword downloads never
// create duplicate records; it reports whether a row was actually added.
func (s *Store) InsertIfAbsent(ctx context.Context, asset Asset) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO cached_assets (
            asset_id, keyword, file_path, thumbnail_url, width, height, last_used_at, use_count
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.AssetID,
		asset.Keyword,
		asset.FilePath,
		asset.ThumbnailURL,
		asset.Width,
		asset.Height,
		asset.LastUsedAt.UTC().Format(time.RFC3339Nano),
		asset.UseCount,
	)
	if err != nil {
		return false, fmt.Errorf("insert cached asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ByKeyword returns all records for a keyword, most recently used first.
func (s *Store) ByKeyword(ctx context.Context, keyword string) ([]Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+assetColumns+` FROM cached_assets WHERE keyword = ? ORDER BY last_used_at DESC`,
		keyword,
	)
	if err != nil {
		return nil, fmt.Errorf("query by keyword: %w", err)
	}
	defer rows.Close()
	return scanAssets(rows)
}

// Touch bumps the usage counter and last-used timestamp on a cache hit.
func (s *Store) Touch(ctx context.Context, assetID int64, now time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE cached_assets SET use_count = use_count + 1, last_used_at = ? WHERE asset_id = ?`,
		now.UTC().Format(time.RFC3339Nano),
		assetID,
	)
	if err != nil {
		return fmt.Errorf("touch cached asset: %w", err)
	}
	return nil
}

// Delete removes a metadata record.
func (s *Store) Delete(ctx context.Context, assetID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_assets WHERE asset_id = ?`, assetID); err != nil {
		return fmt.Errorf("delete cached asset: %w", err)
	}
	return nil
}

// OlderThan returns records whose last use predates the cutoff.
func (s *Store) OlderThan(ctx context.Context, cutoff time.Time) ([]Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+assetColumns+` FROM cached_assets WHERE last_used_at < ? ORDER BY last_used_at`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query stale assets: %w", err)
	}
	defer rows.Close()
	return scanAssets(rows)
}

// Count returns the number of metadata records.
func (s *Store) Count(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM cached_assets`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count cached assets: %w", err)
	}
	return count, nil
}

const assetColumns = "asset_id, keyword, file_path, thumbnail_url, width, height, last_used_at, use_count"

func scanAssets(rows *sql.Rows) ([]Asset, error) {
	var assets []Asset
	for rows.Next() {
		var (
			asset       Asset
			lastUsedRaw string
		)
		if err := rows.Scan(
			&asset.AssetID,
			&asset.Keyword,
			&asset.FilePath,
			&asset.ThumbnailURL,
			&asset.Width,
			&asset.Height,
			&lastUsedRaw,
			&asset.UseCount,
		); err != nil {
			return nil, err
		}
		if parsed, err := time.Parse(time.RFC3339Nano, lastUsedRaw); err == nil {
			asset.LastUsedAt = parsed
		} else {
			return nil, errors.New("parse last_used_at: " + err.Error())
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}
