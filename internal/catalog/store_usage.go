package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"loft/internal/asset"
)

// Attach records a (property, zone, step) location using the asset and bumps
// the usage count in the same transaction. Attaching an already-recorded
// tuple is idempotent: the count is not bumped twice.
func (s *Store) Attach(ctx context.Context, assetID string, loc asset.UsageLocation) (*asset.Descriptor, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := assetExists(ctx, tx, assetID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO usage_records (asset_id, property_id, zone_id, step_id, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			assetID, loc.PropertyID, loc.ZoneID, loc.StepID, nowTimestamp())
		if err != nil {
			return fmt.Errorf("insert usage record: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if inserted == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE assets SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
			nowTimestamp(), assetID)
		if err != nil {
			return fmt.Errorf("bump usage count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetAsset(ctx, assetID)
}

// Detach removes a usage record and decrements the usage count in the same
// transaction. Detaching an unknown tuple is a no-op.
func (s *Store) Detach(ctx context.Context, assetID string, loc asset.UsageLocation) (*asset.Descriptor, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := assetExists(ctx, tx, assetID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM usage_records
			 WHERE asset_id = ? AND property_id = ? AND zone_id = ? AND step_id = ?`,
			assetID, loc.PropertyID, loc.ZoneID, loc.StepID)
		if err != nil {
			return fmt.Errorf("delete usage record: %w", err)
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if deleted == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE assets SET usage_count = MAX(usage_count - 1, 0) WHERE id = ?`, assetID)
		if err != nil {
			return fmt.Errorf("drop usage count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetAsset(ctx, assetID)
}

// UsageLocations returns every live location referencing the asset.
func (s *Store) UsageLocations(ctx context.Context, assetID string) ([]asset.UsageLocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT property_id, zone_id, step_id FROM usage_records
		 WHERE asset_id = ? ORDER BY created_at`, assetID)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var out []asset.UsageLocation
	for rows.Next() {
		var loc asset.UsageLocation
		if err := rows.Scan(&loc.PropertyID, &loc.ZoneID, &loc.StepID); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// DeletionReportEntry pairs an asset id with its live usage locations.
type DeletionReportEntry struct {
	AssetID string
	Known   bool
	Usage   []asset.UsageLocation
}

// DeletionReport answers, for each asset id, the locations still referencing
// it so deletion flows can block or warn on assets in use.
func (s *Store) DeletionReport(ctx context.Context, assetIDs []string) ([]DeletionReportEntry, error) {
	entries := make([]DeletionReportEntry, 0, len(assetIDs))
	for _, id := range assetIDs {
		entry := DeletionReportEntry{AssetID: id}
		if _, err := s.GetAsset(ctx, id); err == nil {
			entry.Known = true
			usage, err := s.UsageLocations(ctx, id)
			if err != nil {
				return nil, err
			}
			entry.Usage = usage
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// VerifyUsageInvariant checks usage_count == COUNT(usage_records) for every
// asset, returning ids that diverge. Used by health checks and tests.
func (s *Store) VerifyUsageInvariant(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id FROM assets a
		 WHERE a.usage_count != (SELECT COUNT(1) FROM usage_records u WHERE u.asset_id = a.id)`)
	if err != nil {
		return nil, fmt.Errorf("verify usage invariant: %w", err)
	}
	defer rows.Close()

	var broken []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		broken = append(broken, id)
	}
	return broken, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func assetExists(ctx context.Context, tx *sql.Tx, assetID string) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM assets WHERE id = ?", assetID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}
