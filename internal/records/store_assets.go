package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const assetColumns = "id, project_id, kind, name, description, image_status, image_url, error_message, created_at, updated_at"

// NewAsset inserts a bible asset with a pending image.
func (s *Store) NewAsset(ctx context.Context, projectID string, kind AssetKind, name, description string) (*BibleAsset, error) {
	now := timestamp(time.Now())
	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO bible_assets (id, project_id, kind, name, description, image_status, image_url, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		projectID,
		kind,
		name,
		nullableString(description),
		ImagePending,
		nil,
		nil,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert asset: %w", err)
	}

	return s.GetAsset(ctx, id)
}

// GetAsset fetches a bible asset by identifier. Returns nil when absent.
func (s *Store) GetAsset(ctx context.Context, id string) (*BibleAsset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM bible_assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// UpdateAsset persists changes to an existing bible asset.
func (s *Store) UpdateAsset(ctx context.Context, asset *BibleAsset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	asset.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE bible_assets
         SET name = ?, description = ?, image_status = ?, image_url = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		asset.Name,
		nullableString(asset.Description),
		asset.ImageStatus,
		nullableString(asset.ImageURL),
		nullableString(asset.ErrorMessage),
		timestamp(asset.UpdatedAt),
		asset.ID,
	)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	return nil
}

// AssetsByProject returns the project's bible assets, optionally filtered by kind.
func (s *Store) AssetsByProject(ctx context.Context, projectID string, kinds ...AssetKind) ([]*BibleAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM bible_assets WHERE project_id = ?`
	args := []any{projectID}
	if len(kinds) > 0 {
		query += ` AND kind IN (` + makePlaceholders(len(kinds)) + `)`
		for _, kind := range kinds {
			args = append(args, kind)
		}
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []*BibleAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// DeleteAsset removes an asset and its variants.
func (s *Store) DeleteAsset(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete asset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE parent_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete asset variants: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bible_assets WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete asset: %w", err)
	}
	return affected > 0, nil
}

func scanAsset(scanner rowScanner) (*BibleAsset, error) {
	var (
		id          string
		projectID   string
		kindStr     string
		name        string
		description sql.NullString
		statusStr   string
		imageURL    sql.NullString
		errMessage  sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&projectID,
		&kindStr,
		&name,
		&description,
		&statusStr,
		&imageURL,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	asset := &BibleAsset{
		ID:           id,
		ProjectID:    projectID,
		Kind:         AssetKind(kindStr),
		Name:         name,
		Description:  description.String,
		ImageStatus:  ImageStatus(statusStr),
		ImageURL:     imageURL.String,
		ErrorMessage: errMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		asset.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		asset.UpdatedAt = updated
	}
	return asset, nil
}
