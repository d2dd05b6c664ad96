package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Upload statuses stored in uploads.status.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// ErrUploadNotFound is returned when an upload id has no row.
var ErrUploadNotFound = errors.New("upload not found")

// Upload is one stored log file.
type Upload struct {
	ID        uuid.UUID
	FileName  string
	Data      []byte
	Status    string
	CreatedAt time.Time
}

// UploadStore provides access to the uploads table.
type UploadStore struct {
	pool *pgxpool.Pool
}

// NewUploadStore creates a new upload store.
func NewUploadStore(pool *pgxpool.Pool) *UploadStore {
	return &UploadStore{pool: pool}
}

// Insert stores a new pending upload and returns its id.
func (s *UploadStore) Insert(ctx context.Context, fileName string, data []byte) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO uploads (id, file_name, data, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, fileName, data, StatusPending, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert upload: %w", err)
	}
	return id, nil
}

// Get retrieves an upload including its raw bytes.
func (s *UploadStore) Get(ctx context.Context, id uuid.UUID) (*Upload, error) {
	u := &Upload{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT file_name, data, status, created_at
		FROM uploads
		WHERE id = $1
	`, id).Scan(&u.FileName, &u.Data, &u.Status, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return u, nil
}

// UploadStatus is the processing state of an upload, without its bytes.
type UploadStatus struct {
	Status         string
	FailureKind    string
	FailureMessage string
}

// GetStatus returns the processing state of an upload.
func (s *UploadStore) GetStatus(ctx context.Context, id uuid.UUID) (*UploadStatus, error) {
	st := &UploadStatus{}
	err := s.pool.QueryRow(ctx, `
		SELECT status, COALESCE(failure_kind, ''), COALESCE(failure_message, '')
		FROM uploads
		WHERE id = $1
	`, id).Scan(&st.Status, &st.FailureKind, &st.FailureMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload status: %w", err)
	}
	return st, nil
}

// Exists checks if an upload exists in the database.
func (s *UploadStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM uploads WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// MarkFailed records a permanent processing failure for an upload.
func (s *UploadStore) MarkFailed(ctx context.Context, id uuid.UUID, kind, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE uploads
		SET status = $2, failure_kind = $3, failure_message = $4, processed_at = $5
		WHERE id = $1
	`, id, StatusFailed, kind, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark upload failed: %w", err)
	}
	return nil
}
