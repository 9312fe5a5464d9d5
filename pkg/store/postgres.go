package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tripforge/tripforge/pkg/models"
)

// PostgresStore persists itineraries as JSONB documents. The version column
// is duplicated out of the document so the optimistic check runs as a plain
// conditional UPDATE instead of a JSON comparison.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle. The caller
// owns the handle's lifecycle and migrations.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, it *models.Itinerary) error {
	now := time.Now()
	it.Version = 1
	it.CreatedAt = now
	it.UpdatedAt = now

	doc, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("failed to marshal itinerary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO itineraries (id, version, user_id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		it.ID, it.Version, it.UserID, doc, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert itinerary: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Itinerary, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM itineraries WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query itinerary: %w", err)
	}
	var it models.Itinerary
	if err := json.Unmarshal(doc, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal itinerary: %w", err)
	}
	return &it, nil
}

func (s *PostgresStore) Update(ctx context.Context, it *models.Itinerary, expectedVersion int) error {
	newVersion := expectedVersion + 1
	now := time.Now()

	// Marshal with the new version already applied so the document and the
	// version column never disagree.
	prevVersion, prevUpdated := it.Version, it.UpdatedAt
	it.Version = newVersion
	it.UpdatedAt = now
	doc, err := json.Marshal(it)
	if err != nil {
		it.Version, it.UpdatedAt = prevVersion, prevUpdated
		return fmt.Errorf("failed to marshal itinerary: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE itineraries
		SET version = $1, doc = $2, updated_at = $3
		WHERE id = $4 AND version = $5`,
		newVersion, doc, now, it.ID, expectedVersion)
	if err != nil {
		it.Version, it.UpdatedAt = prevVersion, prevUpdated
		return fmt.Errorf("failed to update itinerary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		it.Version, it.UpdatedAt = prevVersion, prevUpdated
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		it.Version, it.UpdatedAt = prevVersion, prevUpdated
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM itineraries WHERE id = $1)`, it.ID).Scan(&exists); err == nil && !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) SaveRevision(ctx context.Context, it *models.Itinerary) error {
	doc, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("failed to marshal revision: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO itinerary_revisions (itinerary_id, version, doc, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (itinerary_id, version) DO NOTHING`,
		it.ID, it.Version, doc, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert revision: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRevisions(ctx context.Context, id string) ([]RevisionMeta, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, created_at FROM itinerary_revisions
		WHERE itinerary_id = $1 ORDER BY version ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	var out []RevisionMeta
	for rows.Next() {
		var m RevisionMeta
		if err := rows.Scan(&m.Version, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRevision(ctx context.Context, id string, version int) (*models.Itinerary, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM itinerary_revisions
		WHERE itinerary_id = $1 AND version = $2`, id, version).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query revision: %w", err)
	}
	var it models.Itinerary
	if err := json.Unmarshal(doc, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revision: %w", err)
	}
	return &it, nil
}
