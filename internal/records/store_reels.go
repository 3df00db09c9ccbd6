package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const reelColumns = "id, project_id, status, video_url, transient_url, published_url, published_id, segment_count, error_message, created_at, updated_at"

// ReelByProject fetches the project's single reel record. Returns nil when no
// assembly has been attempted yet.
func (s *Store) ReelByProject(ctx context.Context, projectID string) (*FinalReel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reelColumns+` FROM final_reels WHERE project_id = ?`, projectID)
	reel, err := scanReel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reel: %w", err)
	}
	return reel, nil
}

// EnsureReel creates the project's reel record in assembling status, or resets
// the existing one. The project_id UNIQUE constraint guarantees at most one
// reel per project; repeated assemblies update the same row.
func (s *Store) EnsureReel(ctx context.Context, projectID string, segmentCount int) (*FinalReel, error) {
	existing, err := s.ReelByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	now := timestamp(time.Now())
	if existing != nil {
		_, err := s.db.ExecContext(ctx,
			`UPDATE final_reels
             SET status = ?, video_url = NULL, transient_url = NULL, published_url = NULL,
                 published_id = NULL, segment_count = ?, error_message = NULL, updated_at = ?
             WHERE id = ?`,
			ReelAssembling, segmentCount, now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("reset reel: %w", err)
		}
		return s.ReelByProject(ctx, projectID)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO final_reels (id, project_id, status, video_url, transient_url, published_url, published_id, segment_count, error_message, created_at, updated_at)
         VALUES (?, ?, ?, NULL, NULL, NULL, NULL, ?, NULL, ?, ?)`,
		id, projectID, ReelAssembling, segmentCount, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert reel: %w", err)
	}
	return s.ReelByProject(ctx, projectID)
}

// UpdateReel persists changes to an existing reel.
func (s *Store) UpdateReel(ctx context.Context, reel *FinalReel) error {
	if reel == nil {
		return errors.New("reel is nil")
	}
	reel.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE final_reels
         SET status = ?, video_url = ?, transient_url = ?, published_url = ?, published_id = ?,
             segment_count = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		reel.Status,
		nullableString(reel.VideoURL),
		nullableString(reel.TransientURL),
		nullableString(reel.PublishedURL),
		nullableString(reel.PublishedID),
		reel.SegmentCount,
		nullableString(reel.ErrorMessage),
		timestamp(reel.UpdatedAt),
		reel.ID,
	)
	if err != nil {
		return fmt.Errorf("update reel: %w", err)
	}
	return nil
}

func scanReel(scanner rowScanner) (*FinalReel, error) {
	var (
		id           string
		projectID    string
		statusStr    string
		videoURL     sql.NullString
		transientURL sql.NullString
		publishedURL sql.NullString
		publishedID  sql.NullString
		segmentCount int
		errMessage   sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&projectID,
		&statusStr,
		&videoURL,
		&transientURL,
		&publishedURL,
		&publishedID,
		&segmentCount,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	reel := &FinalReel{
		ID:           id,
		ProjectID:    projectID,
		Status:       ReelStatus(statusStr),
		VideoURL:     videoURL.String,
		TransientURL: transientURL.String,
		PublishedURL: publishedURL.String,
		PublishedID:  publishedID.String,
		SegmentCount: segmentCount,
		ErrorMessage: errMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		reel.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		reel.UpdatedAt = updated
	}
	return reel, nil
}
