package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"loft/internal/asset"
	"loft/internal/fileutil"
)

// NewAsset carries the fields of an asset about to be persisted.
type NewAsset struct {
	// ID is optional. When empty a fresh UUID is assigned. Callers that
	// derive storage keys from the asset id supply it up front.
	ID               string
	URL              string
	MediaType        asset.MediaType
	SizeBytes        int64
	OriginalFilename string
	Width            int
	Height           int
	DurationSeconds  float64
	ThumbnailURL     string
	Fingerprint      string
}

const assetColumns = `id, url, media_type, size_bytes, original_filename,
	width, height, duration_seconds, thumbnail_url, fingerprint,
	created_at, last_used_at, usage_count`

// InsertAsset persists a new asset row. A fingerprint collision returns
// ErrFingerprintExists so the caller can reuse the existing row instead.
func (s *Store) InsertAsset(ctx context.Context, rec NewAsset) (*asset.Descriptor, error) {
	if rec.Fingerprint != "" {
		if existing, err := s.FindByFingerprint(ctx, rec.Fingerprint); err == nil && existing != nil {
			return existing, ErrFingerprintExists
		}
	}

	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := nowTimestamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (
			id, url, media_type, size_bytes, original_filename,
			width, height, duration_seconds, thumbnail_url, fingerprint,
			created_at, usage_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		id,
		rec.URL,
		string(rec.MediaType),
		rec.SizeBytes,
		fileutil.NormalizeFilename(rec.OriginalFilename),
		rec.Width,
		rec.Height,
		rec.DurationSeconds,
		rec.ThumbnailURL,
		nullableString(rec.Fingerprint),
		now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "idx_assets_fingerprint") {
			if existing, findErr := s.FindByFingerprint(ctx, rec.Fingerprint); findErr == nil && existing != nil {
				return existing, ErrFingerprintExists
			}
		}
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	return s.GetAsset(ctx, id)
}

// GetAsset returns the asset with the given id.
func (s *Store) GetAsset(ctx context.Context, id string) (*asset.Descriptor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	return scanAsset(row)
}

// FindByFingerprint returns the asset with the exact content digest, or nil.
func (s *Store) FindByFingerprint(ctx context.Context, digest string) (*asset.Descriptor, error) {
	if strings.TrimSpace(digest) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE fingerprint = ?`, digest)
	desc, err := scanAsset(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return desc, err
}

// FindByFilename returns the most recent asset with the exact normalized
// original filename, or nil. A heuristic: collisions are possible, so callers
// must treat matches as suggestions.
func (s *Store) FindByFilename(ctx context.Context, filename string) (*asset.Descriptor, error) {
	normalized := fileutil.NormalizeFilename(filename)
	if normalized == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE original_filename = ?
		 ORDER BY created_at DESC LIMIT 1`, normalized)
	desc, err := scanAsset(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return desc, err
}

// ListAssets returns assets ordered newest first.
func (s *Store) ListAssets(ctx context.Context, limit int) ([]asset.Descriptor, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []asset.Descriptor
	for rows.Next() {
		desc, err := scanAssetRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *desc)
	}
	return out, rows.Err()
}

// CountAssets returns the total number of persisted assets.
func (s *Store) CountAssets(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM assets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count assets: %w", err)
	}
	return count, nil
}

// DeleteAsset removes an asset row; its usage records cascade.
func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row *sql.Row) (*asset.Descriptor, error) {
	desc, err := scanAssetRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return desc, err
}

func scanAssetRow(r rowScanner) (*asset.Descriptor, error) {
	var (
		desc        asset.Descriptor
		mediaType   string
		fingerprint sql.NullString
		createdAt   sql.NullString
		lastUsedAt  sql.NullString
	)
	err := r.Scan(
		&desc.ID,
		&desc.URL,
		&mediaType,
		&desc.SizeBytes,
		&desc.OriginalFilename,
		&desc.Width,
		&desc.Height,
		&desc.DurationSeconds,
		&desc.ThumbnailURL,
		&fingerprint,
		&createdAt,
		&lastUsedAt,
		&desc.UsageCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	desc.MediaType = asset.MediaType(mediaType)
	desc.Fingerprint = fingerprint.String
	desc.CreatedAt = parseTimestamp(createdAt)
	desc.LastUsedAt = parseTimestamp(lastUsedAt)
	return &desc, nil
}
