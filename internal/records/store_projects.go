package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const projectColumns = "id, title, logline, source_text, status, scene_order_json, auto_mode, error_message, created_at, updated_at"

// NewProject inserts a project in the parsing stage.
func (s *Store) NewProject(ctx context.Context, title, logline, sourceText string, autoMode bool) (*Project, error) {
	now := timestamp(time.Now())
	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO projects (id, title, logline, source_text, status, scene_order_json, auto_mode, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		title,
		nullableString(logline),
		nullableString(sourceText),
		ProjectParsing,
		nil,
		boolToInt(autoMode),
		nil,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	return s.GetProject(ctx, id)
}

// GetProject fetches a project by identifier. Returns nil when absent.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// UpdateProject persists changes to an existing project.
func (s *Store) UpdateProject(ctx context.Context, project *Project) error {
	if project == nil {
		return errors.New("project is nil")
	}
	project.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE projects
         SET title = ?, logline = ?, source_text = ?, status = ?, scene_order_json = ?,
             auto_mode = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		project.Title,
		nullableString(project.Logline),
		nullableString(project.SourceText),
		project.Status,
		nullableString(project.SceneOrderJSON),
		boolToInt(project.AutoMode),
		nullableString(project.ErrorMessage),
		timestamp(project.UpdatedAt),
		project.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// ListProjects returns projects ordered by creation time. Failed projects are
// excluded unless includeFailed is set.
func (s *Store) ListProjects(ctx context.Context, includeFailed bool) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	if !includeFailed {
		query += ` WHERE status != '` + string(ProjectFailed) + `'`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project; children cascade.
func (s *Store) DeleteProject(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanProject(scanner rowScanner) (*Project, error) {
	var (
		id         string
		title      string
		logline    sql.NullString
		sourceText sql.NullString
		statusStr  string
		sceneOrder sql.NullString
		autoMode   sql.NullInt64
		errMessage sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&logline,
		&sourceText,
		&statusStr,
		&sceneOrder,
		&autoMode,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	project := &Project{
		ID:             id,
		Title:          title,
		Logline:        logline.String,
		SourceText:     sourceText.String,
		Status:         ProjectStatus(statusStr),
		SceneOrderJSON: sceneOrder.String,
		AutoMode:       autoMode.Valid && autoMode.Int64 != 0,
		ErrorMessage:   errMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		project.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		project.UpdatedAt = updated
	}
	return project, nil
}
