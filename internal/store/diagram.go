package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/diagramlab/apiserver/types"
)

const diagramColumns = `id, short_id, type, name, content, tags, is_template, created_by, created_at, updated_at`

// DiagramRepository handles persistence for diagrams and their version
// history.
type DiagramRepository struct {
	db *sql.DB
}

func NewDiagramRepository(db *sql.DB) *DiagramRepository {
	return &DiagramRepository{db: db}
}

func (r *DiagramRepository) Get(ctx context.Context, id string) (types.Diagram, error) {
	const query = `
		SELECT ` + diagramColumns + `
		FROM diagrams
		WHERE id = $1`
	return r.scanDiagram(r.db.QueryRowContext(ctx, query, id))
}

func (r *DiagramRepository) GetByShortID(ctx context.Context, shortID string) (types.Diagram, error) {
	const query = `
		SELECT ` + diagramColumns + `
		FROM diagrams
		WHERE short_id = $1`
	return r.scanDiagram(r.db.QueryRowContext(ctx, query, shortID))
}

func (r *DiagramRepository) ListByOwner(ctx context.Context, ownerID int) ([]types.Diagram, error) {
	const query = `
		SELECT ` + diagramColumns + `
		FROM diagrams
		WHERE created_by = $1
		ORDER BY updated_at DESC`
	return r.queryDiagrams(ctx, query, ownerID)
}

func (r *DiagramRepository) ListAll(ctx context.Context) ([]types.Diagram, error) {
	const query = `
		SELECT ` + diagramColumns + `
		FROM diagrams
		ORDER BY updated_at DESC`
	return r.queryDiagrams(ctx, query)
}

// Create inserts the diagram as-is. A short-ID collision with a
// concurrent creator surfaces as ErrConflict; the caller re-allocates
// and retries.
func (r *DiagramRepository) Create(ctx context.Context, diagram types.Diagram) (types.Diagram, error) {
	now := time.Now()
	diagram.CreatedAt = now
	diagram.UpdatedAt = now

	tagsJSON, err := json.Marshal(diagram.Tags)
	if err != nil {
		return types.Diagram{}, err
	}

	const query = `
		INSERT INTO diagrams (id, short_id, type, name, content, tags, is_template, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		diagram.ID,
		diagram.ShortID,
		diagram.Type,
		diagram.Name,
		nullRawMessage(diagram.Content),
		tagsJSON,
		diagram.IsTemplate,
		diagram.CreatedBy,
		diagram.CreatedAt,
		diagram.UpdatedAt,
	); err != nil {
		return types.Diagram{}, translateConflict(err)
	}
	return diagram, nil
}

func (r *DiagramRepository) Update(ctx context.Context, diagram types.Diagram) (types.Diagram, error) {
	diagram.UpdatedAt = time.Now()

	tagsJSON, err := json.Marshal(diagram.Tags)
	if err != nil {
		return types.Diagram{}, err
	}

	const query = `
		UPDATE diagrams
		SET name = $1,
			content = $2,
			tags = $3,
			is_template = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		diagram.Name,
		nullRawMessage(diagram.Content),
		tagsJSON,
		diagram.IsTemplate,
		diagram.UpdatedAt,
		diagram.ID,
	)
	if err != nil {
		return types.Diagram{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Diagram{}, err
	}
	if affected == 0 {
		return types.Diagram{}, ErrNotFound
	}
	return diagram, nil
}

func (r *DiagramRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM diagrams WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MaxShortSeq returns the highest allocated short-ID sequence number, or
// 0 when no diagrams exist. The read is not atomic with a subsequent
// insert; the short_id uniqueness constraint guarantees correctness.
func (r *DiagramRepository) MaxShortSeq(ctx context.Context) (int, error) {
	const query = `
		SELECT COALESCE(MAX(split_part(short_id, '-', 2)::int), 0)
		FROM diagrams`
	var max int
	if err := r.db.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

// NamesByOwner returns the owner's diagram names that equal base or
// carry a " (N)" suffix on it, for duplicate-name disambiguation.
func (r *DiagramRepository) NamesByOwner(ctx context.Context, ownerID int, base string) ([]string, error) {
	const query = `
		SELECT name
		FROM diagrams
		WHERE created_by = $1
			AND (name = $2 OR name LIKE $2 || ' (%')`
	rows, err := r.db.QueryContext(ctx, query, ownerID, base)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// MaxVersion returns the highest version number saved for a diagram, or
// 0 when it has no versions yet.
func (r *DiagramRepository) MaxVersion(ctx context.Context, diagramID string) (int, error) {
	const query = `
		SELECT COALESCE(MAX(version_number), 0)
		FROM diagram_versions
		WHERE diagram_id = $1`
	var max int
	if err := r.db.QueryRowContext(ctx, query, diagramID).Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

// InsertVersion appends a version row. A version-number collision with a
// concurrent saver surfaces as ErrConflict; the caller re-allocates and
// retries.
func (r *DiagramRepository) InsertVersion(ctx context.Context, version types.DiagramVersion) (types.DiagramVersion, error) {
	version.CreatedAt = time.Now()

	const query = `
		INSERT INTO diagram_versions (diagram_id, version_number, content, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		version.DiagramID,
		version.VersionNumber,
		nullRawMessage(version.Content),
		version.CreatedBy,
		version.CreatedAt,
	); err != nil {
		return types.DiagramVersion{}, translateConflict(err)
	}
	return version, nil
}

// ListVersions returns a diagram's version history, oldest first.
func (r *DiagramRepository) ListVersions(ctx context.Context, diagramID string) ([]types.DiagramVersion, error) {
	const query = `
		SELECT diagram_id, version_number, content, created_by, created_at
		FROM diagram_versions
		WHERE diagram_id = $1
		ORDER BY version_number`
	rows, err := r.db.QueryContext(ctx, query, diagramID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []types.DiagramVersion
	for rows.Next() {
		var version types.DiagramVersion
		var content []byte
		if err := rows.Scan(
			&version.DiagramID,
			&version.VersionNumber,
			&content,
			&version.CreatedBy,
			&version.CreatedAt,
		); err != nil {
			return nil, err
		}
		version.Content = content
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (r *DiagramRepository) queryDiagrams(ctx context.Context, query string, args ...any) ([]types.Diagram, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var diagrams []types.Diagram
	for rows.Next() {
		diagram, err := r.scanDiagram(rows)
		if err != nil {
			return nil, err
		}
		diagrams = append(diagrams, diagram)
	}
	return diagrams, rows.Err()
}

func (r *DiagramRepository) scanDiagram(row rowScanner) (types.Diagram, error) {
	var diagram types.Diagram
	var content, tagsJSON []byte
	err := row.Scan(
		&diagram.ID,
		&diagram.ShortID,
		&diagram.Type,
		&diagram.Name,
		&content,
		&tagsJSON,
		&diagram.IsTemplate,
		&diagram.CreatedBy,
		&diagram.CreatedAt,
		&diagram.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Diagram{}, ErrNotFound
		}
		return types.Diagram{}, err
	}
	diagram.Content = content
	_ = json.Unmarshal(tagsJSON, &diagram.Tags)
	return diagram, nil
}

func nullRawMessage(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
