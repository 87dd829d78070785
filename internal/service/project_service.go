// internal/service/project_service.go
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"timeline-editor/internal/models"
	"timeline-editor/internal/project"
)

// Sentinel errors: callers use errors.Is() instead of string matching
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrSchemaMissing   = errors.New("editor_projects table does not exist")
	ErrNoDatabase      = errors.New("persistence is not configured")
)

const defaultTimeout = 5 * time.Second

const schema = `
	CREATE TABLE IF NOT EXISTS editor_projects (
		project_id UUID PRIMARY KEY,
		name       TEXT        NOT NULL,
		document   JSONB       NOT NULL,
		version    INTEGER     NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// ProjectSummary is one row of the project list, without the document body.
type ProjectSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProjectService stores whole project documents as JSONB. Editor state
// (playhead, selection, zoom) is never written.
type ProjectService struct {
	DB      *sql.DB
	Timeout time.Duration
}

func (s *ProjectService) bound(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if s == nil || s.DB == nil {
		return nil, nil, ErrNoDatabase
	}
	t := s.Timeout
	if t <= 0 {
		t = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, t)
	return ctx, cancel, nil
}

// EnsureSchema creates the table on first boot.
func (s *ProjectService) EnsureSchema(ctx context.Context) error {
	ctx, cancel, err := s.bound(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, err = s.DB.ExecContext(ctx, schema)
	return dbError(err)
}

// Save upserts the document and bumps its version. The returned version
// counts how many times the project has been saved.
func (s *ProjectService) Save(ctx context.Context, doc models.Project) (int, error) {
	ctx, cancel, err := s.bound(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	body, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode project: %w", err)
	}

	query := `
		INSERT INTO editor_projects (project_id, name, document)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id) DO UPDATE
		SET name       = EXCLUDED.name,
		    document   = EXCLUDED.document,
		    version    = editor_projects.version + 1,
		    updated_at = NOW()
		RETURNING version
	`

	var version int
	if err := s.DB.QueryRowContext(ctx, query, doc.ID, doc.Name, body).Scan(&version); err != nil {
		return 0, dbError(err)
	}
	return version, nil
}

// Load rebuilds the stored project. A document that no longer passes the
// model's checks is reported as project.ErrInvalidDocument.
func (s *ProjectService) Load(ctx context.Context, id uuid.UUID, opts ...project.Option) (*project.Model, int, error) {
	ctx, cancel, err := s.bound(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer cancel()

	query := `
		SELECT document, version
		FROM editor_projects
		WHERE project_id = $1
	`

	var (
		body    []byte
		version int
	)
	err = s.DB.QueryRowContext(ctx, query, id).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrProjectNotFound
	}
	if err != nil {
		return nil, 0, dbError(err)
	}

	var doc models.Project
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", project.ErrInvalidDocument, err)
	}
	m, err := project.FromDocument(doc, opts...)
	if err != nil {
		return nil, 0, err
	}
	return m, version, nil
}

// List returns the most recently updated projects first.
func (s *ProjectService) List(ctx context.Context, limit int) ([]ProjectSummary, error) {
	ctx, cancel, err := s.bound(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT project_id, name, version, created_at, updated_at
		FROM editor_projects
		ORDER BY updated_at DESC
		LIMIT $1
	`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := []ProjectSummary{}
	for rows.Next() {
		var p ProjectSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete permanently removes a project.
func (s *ProjectService) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel, err := s.bound(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	result, err := s.DB.ExecContext(ctx,
		`DELETE FROM editor_projects WHERE project_id = $1`, id)
	if err != nil {
		return dbError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// dbError maps postgres failures callers can act on.
func dbError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, pqErr.Message)
	}
	return err
}
