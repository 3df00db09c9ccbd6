package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sceneColumns = "id, project_id, scene_number, title, synopsis, validation_status, production_json, created_at, updated_at"

// NewScene inserts a scene awaiting validation.
func (s *Store) NewScene(ctx context.Context, projectID string, sceneNumber int, title, synopsis, productionJSON string) (*Scene, error) {
	now := timestamp(time.Now())
	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO scenes (id, project_id, scene_number, title, synopsis, validation_status, production_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		projectID,
		sceneNumber,
		nullableString(title),
		nullableString(synopsis),
		ScenePending,
		nullableString(productionJSON),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert scene: %w", err)
	}

	return s.GetScene(ctx, id)
}

// GetScene fetches a scene by identifier. Returns nil when absent.
func (s *Store) GetScene(ctx context.Context, id string) (*Scene, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, id)
	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return scene, nil
}

// UpdateScene persists changes to an existing scene.
func (s *Store) UpdateScene(ctx context.Context, scene *Scene) error {
	if scene == nil {
		return errors.New("scene is nil")
	}
	scene.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE scenes
         SET scene_number = ?, title = ?, synopsis = ?, validation_status = ?, production_json = ?, updated_at = ?
         WHERE id = ?`,
		scene.SceneNumber,
		nullableString(scene.Title),
		nullableString(scene.Synopsis),
		scene.ValidationStatus,
		nullableString(scene.ProductionJSON),
		timestamp(scene.UpdatedAt),
		scene.ID,
	)
	if err != nil {
		return fmt.Errorf("update scene: %w", err)
	}
	return nil
}

// ScenesByProject returns the project's scenes in scene-number order.
func (s *Store) ScenesByProject(ctx context.Context, projectID string) ([]*Scene, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE project_id = ? ORDER BY scene_number`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer rows.Close()

	var scenes []*Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

func scanScene(scanner rowScanner) (*Scene, error) {
	var (
		id          string
		projectID   string
		sceneNumber int
		title       sql.NullString
		synopsis    sql.NullString
		statusStr   string
		production  sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&projectID,
		&sceneNumber,
		&title,
		&synopsis,
		&statusStr,
		&production,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	scene := &Scene{
		ID:               id,
		ProjectID:        projectID,
		SceneNumber:      sceneNumber,
		Title:            title.String,
		Synopsis:         synopsis.String,
		ValidationStatus: ValidationStatus(statusStr),
		ProductionJSON:   production.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		scene.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		scene.UpdatedAt = updated
	}
	return scene, nil
}
