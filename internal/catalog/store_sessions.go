package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is one chunked upload in flight.
type Session struct {
	ID          string
	Filename    string
	ContentType string
	TotalSize   int64
	ChunkSize   int64
	TotalChunks int
	// Force carries the client's upload-anyway decision into finalization,
	// where it suppresses the dedup check on the assembled payload.
	Force     bool
	received  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Received reports how many chunks have arrived.
func (s *Session) Received() int {
	return strings.Count(s.received, "1")
}

// HasChunk reports whether the chunk at index has arrived.
func (s *Session) HasChunk(index int) bool {
	return index >= 0 && index < len(s.received) && s.received[index] == '1'
}

// Complete reports whether every chunk has arrived.
func (s *Session) Complete() bool {
	return s.Received() == s.TotalChunks
}

// CreateSession opens a chunked upload session.
func (s *Store) CreateSession(ctx context.Context, filename, contentType string, totalSize, chunkSize int64, totalChunks int, force bool) (*Session, error) {
	id := uuid.NewString()
	now := nowTimestamp()
	mask := strings.Repeat("0", totalChunks)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upload_sessions (
			id, filename, content_type, total_size, chunk_size, total_chunks,
			received_mask, force, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, filename, contentType, totalSize, chunkSize, totalChunks, mask, force, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s.GetSession(ctx, id)
}

// GetSession returns the session with the given id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, content_type, total_size, chunk_size, total_chunks,
		        received_mask, force, created_at, updated_at
		 FROM upload_sessions WHERE id = ?`, id)

	var (
		sess      Session
		createdAt sql.NullString
		updatedAt sql.NullString
	)
	err := row.Scan(
		&sess.ID, &sess.Filename, &sess.ContentType,
		&sess.TotalSize, &sess.ChunkSize, &sess.TotalChunks,
		&sess.received, &sess.Force, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.CreatedAt = parseTimestamp(createdAt)
	sess.UpdatedAt = parseTimestamp(updatedAt)
	return &sess, nil
}

// MarkChunk records receipt of one chunk and returns the updated session.
// Marking an already received chunk is idempotent (the retry case).
func (s *Store) MarkChunk(ctx context.Context, id string, index int) (*Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= sess.TotalChunks {
		return nil, fmt.Errorf("chunk index %d out of range [0,%d)", index, sess.TotalChunks)
	}
	if sess.HasChunk(index) {
		return sess, nil
	}
	mask := []byte(sess.received)
	mask[index] = '1'
	_, err = s.db.ExecContext(ctx,
		`UPDATE upload_sessions SET received_mask = ?, updated_at = ? WHERE id = ?`,
		string(mask), nowTimestamp(), id)
	if err != nil {
		return nil, fmt.Errorf("mark chunk: %w", err)
	}
	return s.GetSession(ctx, id)
}

// DeleteSession removes a session row.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM upload_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ExpiredSessions returns ids of sessions idle since before the cutoff.
func (s *Store) ExpiredSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM upload_sessions WHERE updated_at < ?",
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
