package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const shotColumns = "id, project_id, scene_id, shot_number, source_variant_id, prompt, status, video_url, duration_seconds, error_message, created_at, updated_at"

// NewShot inserts a video job in generating status.
func (s *Store) NewShot(ctx context.Context, shot *Shot) (*Shot, error) {
	if shot == nil {
		return nil, errors.New("shot is nil")
	}
	now := timestamp(time.Now())
	id := uuid.NewString()
	status := shot.Status
	if status == "" {
		status = ShotGenerating
	}
	number := shot.ShotNumber
	if number <= 0 {
		number = 1
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO shots (id, project_id, scene_id, shot_number, source_variant_id, prompt, status, video_url, duration_seconds, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		shot.ProjectID,
		shot.SceneID,
		number,
		nullableString(shot.SourceVariantID),
		nullableString(shot.Prompt),
		status,
		nullableString(shot.VideoURL),
		shot.DurationSeconds,
		nullableString(shot.ErrorMessage),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert shot: %w", err)
	}

	return s.GetShot(ctx, id)
}

// GetShot fetches a shot by identifier. Returns nil when absent.
func (s *Store) GetShot(ctx context.Context, id string) (*Shot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shotColumns+` FROM shots WHERE id = ?`, id)
	shot, err := scanShot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shot: %w", err)
	}
	return shot, nil
}

// UpdateShot persists changes to an existing shot.
func (s *Store) UpdateShot(ctx context.Context, shot *Shot) error {
	if shot == nil {
		return errors.New("shot is nil")
	}
	shot.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE shots
         SET shot_number = ?, source_variant_id = ?, prompt = ?, status = ?, video_url = ?,
             duration_seconds = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		shot.ShotNumber,
		nullableString(shot.SourceVariantID),
		nullableString(shot.Prompt),
		shot.Status,
		nullableString(shot.VideoURL),
		shot.DurationSeconds,
		nullableString(shot.ErrorMessage),
		timestamp(shot.UpdatedAt),
		shot.ID,
	)
	if err != nil {
		return fmt.Errorf("update shot: %w", err)
	}
	return nil
}

// ShotsByScene returns a scene's shots in shot-number order.
func (s *Store) ShotsByScene(ctx context.Context, sceneID string) ([]*Shot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shotColumns+` FROM shots WHERE scene_id = ? ORDER BY shot_number`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("query shots: %w", err)
	}
	defer rows.Close()
	return collectShots(rows)
}

// ShotsByProject returns every shot for the project.
func (s *Store) ShotsByProject(ctx context.Context, projectID string) ([]*Shot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shotColumns+` FROM shots WHERE project_id = ? ORDER BY scene_id, shot_number`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query project shots: %w", err)
	}
	defer rows.Close()
	return collectShots(rows)
}

// CountGeneratingShots returns the number of video jobs currently in flight.
// This derived count is the admission queue's sole shared resource.
func (s *Store) CountGeneratingShots(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM shots WHERE status = ?`, ShotGenerating)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count generating shots: %w", err)
	}
	return count, nil
}

// DeleteShot removes a shot outright, freeing its admission slot.
func (s *Store) DeleteShot(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shots WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete shot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func collectShots(rows *sql.Rows) ([]*Shot, error) {
	var shots []*Shot
	for rows.Next() {
		shot, err := scanShot(rows)
		if err != nil {
			return nil, err
		}
		shots = append(shots, shot)
	}
	return shots, rows.Err()
}

func scanShot(scanner rowScanner) (*Shot, error) {
	var (
		id            string
		projectID     string
		sceneID       string
		shotNumber    int
		sourceVariant sql.NullString
		prompt        sql.NullString
		statusStr     string
		videoURL      sql.NullString
		duration      sql.NullFloat64
		errMessage    sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&projectID,
		&sceneID,
		&shotNumber,
		&sourceVariant,
		&prompt,
		&statusStr,
		&videoURL,
		&duration,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	shot := &Shot{
		ID:              id,
		ProjectID:       projectID,
		SceneID:         sceneID,
		ShotNumber:      shotNumber,
		SourceVariantID: sourceVariant.String,
		Prompt:          prompt.String,
		Status:          ShotStatus(statusStr),
		VideoURL:        videoURL.String,
		DurationSeconds: duration.Float64,
		ErrorMessage:    errMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		shot.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		shot.UpdatedAt = updated
	}
	return shot, nil
}
