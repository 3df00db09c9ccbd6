package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const variantColumns = "id, project_id, parent_kind, parent_id, shot_type, model, status, generation_order, is_selected, prompt, image_url, source_url, parent_image_url, error_message, created_at, updated_at"

// NewVariant inserts a generation attempt. The per-parent generation_order is
// assigned inside the insert transaction so concurrent fan-out submissions
// never collide.
func (s *Store) NewVariant(ctx context.Context, v *Variant) (*Variant, error) {
	if v == nil {
		return nil, errors.New("variant is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert variant: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var order int
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(generation_order), 0) + 1 FROM variants WHERE parent_id = ? AND shot_type = ?`,
		v.ParentID, v.ShotType)
	if err := row.Scan(&order); err != nil {
		return nil, fmt.Errorf("next generation order: %w", err)
	}

	id := uuid.NewString()
	now := timestamp(time.Now())
	status := v.Status
	if status == "" {
		status = VariantPending
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO variants (id, project_id, parent_kind, parent_id, shot_type, model, status, generation_order,
            is_selected, prompt, image_url, source_url, parent_image_url, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		v.ProjectID,
		v.ParentKind,
		v.ParentID,
		v.ShotType,
		v.Model,
		status,
		order,
		boolToInt(v.IsSelected),
		nullableString(v.Prompt),
		nullableString(v.ImageURL),
		nullableString(v.SourceURL),
		nullableString(v.ParentImageURL),
		nullableString(v.ErrorMessage),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert variant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert variant: %w", err)
	}

	return s.GetVariant(ctx, id)
}

// GetVariant fetches a variant by identifier. Returns nil when absent.
func (s *Store) GetVariant(ctx context.Context, id string) (*Variant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM variants WHERE id = ?`, id)
	variant, err := scanVariant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get variant: %w", err)
	}
	return variant, nil
}

// UpdateVariant persists changes to an existing variant.
func (s *Store) UpdateVariant(ctx context.Context, v *Variant) error {
	if v == nil {
		return errors.New("variant is nil")
	}
	v.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE variants
         SET model = ?, status = ?, is_selected = ?, prompt = ?, image_url = ?, source_url = ?,
             parent_image_url = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		v.Model,
		v.Status,
		boolToInt(v.IsSelected),
		nullableString(v.Prompt),
		nullableString(v.ImageURL),
		nullableString(v.SourceURL),
		nullableString(v.ParentImageURL),
		nullableString(v.ErrorMessage),
		timestamp(v.UpdatedAt),
		v.ID,
	)
	if err != nil {
		return fmt.Errorf("update variant: %w", err)
	}
	return nil
}

// VariantsByParent returns all variants for a parent in generation order. An
// empty shotType lists every shot type; selection-invariant operations always
// pass the exact shot type.
func (s *Store) VariantsByParent(ctx context.Context, parentID, shotType string) ([]*Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE parent_id = ? ORDER BY generation_order`
	args := []any{parentID}
	if shotType != "" {
		query = `SELECT ` + variantColumns + ` FROM variants WHERE parent_id = ? AND shot_type = ? ORDER BY generation_order`
		args = append(args, shotType)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	var variants []*Variant
	for rows.Next() {
		variant, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, variant)
	}
	return variants, rows.Err()
}

// SelectVariant marks the target selected and clears every sibling sharing the
// same (parent, shot type) in one transaction, so the at-most-one-selected
// invariant holds no matter how callbacks interleave. Previously selected
// siblings are demoted to ready. Returns nil when the variant does not exist.
func (s *Store) SelectVariant(ctx context.Context, id string) (*Variant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin select variant: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM variants WHERE id = ?`, id)
	target, err := scanVariant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load variant: %w", err)
	}

	now := timestamp(time.Now())
	_, err = tx.ExecContext(ctx,
		`UPDATE variants
         SET is_selected = 0,
             status = CASE WHEN status = ? THEN ? ELSE status END,
             updated_at = ?
         WHERE parent_id = ? AND shot_type = ? AND id != ?`,
		VariantSelected, VariantReady, now, target.ParentID, target.ShotType, id)
	if err != nil {
		return nil, fmt.Errorf("clear siblings: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE variants SET is_selected = 1, status = ?, updated_at = ? WHERE id = ?`,
		VariantSelected, now, id)
	if err != nil {
		return nil, fmt.Errorf("mark selected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit select variant: %w", err)
	}

	return s.GetVariant(ctx, id)
}

// SelectedVariants returns every selected variant for a parent and shot type.
// More than one result indicates a duplicate-selection anomaly.
func (s *Store) SelectedVariants(ctx context.Context, parentID, shotType string) ([]*Variant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM variants
         WHERE parent_id = ? AND shot_type = ? AND is_selected = 1
         ORDER BY updated_at DESC`,
		parentID, shotType)
	if err != nil {
		return nil, fmt.Errorf("query selected variants: %w", err)
	}
	defer rows.Close()

	var variants []*Variant
	for rows.Next() {
		variant, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, variant)
	}
	return variants, rows.Err()
}

// FixDuplicateSelections keeps the most-recently-updated selected variant for
// the parent and clears the rest, returning the number repaired.
func (s *Store) FixDuplicateSelections(ctx context.Context, parentID, shotType string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin fix duplicates: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM variants
         WHERE parent_id = ? AND shot_type = ? AND is_selected = 1
         ORDER BY updated_at DESC, generation_order DESC`,
		parentID, shotType)
	if err != nil {
		return 0, fmt.Errorf("query duplicates: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(ids) <= 1 {
		return 0, nil
	}

	now := timestamp(time.Now())
	cleared := ids[1:]
	args := make([]any, 0, len(cleared)+3)
	args = append(args, VariantReady, now)
	for _, id := range cleared {
		args = append(args, id)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE variants SET is_selected = 0, status = ?, updated_at = ? WHERE id IN (`+makePlaceholders(len(cleared))+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("clear duplicates: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit fix duplicates: %w", err)
	}
	return len(cleared), nil
}

// DeleteVariant removes a variant by identifier.
func (s *Store) DeleteVariant(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM variants WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete variant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanVariant(scanner rowScanner) (*Variant, error) {
	var (
		id          string
		projectID   string
		parentKind  string
		parentID    string
		shotType    string
		model       string
		statusStr   string
		order       int
		isSelected  sql.NullInt64
		prompt      sql.NullString
		imageURL    sql.NullString
		sourceURL   sql.NullString
		parentImage sql.NullString
		errMessage  sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&projectID,
		&parentKind,
		&parentID,
		&shotType,
		&model,
		&statusStr,
		&order,
		&isSelected,
		&prompt,
		&imageURL,
		&sourceURL,
		&parentImage,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	variant := &Variant{
		ID:              id,
		ProjectID:       projectID,
		ParentKind:      ParentKind(parentKind),
		ParentID:        parentID,
		ShotType:        shotType,
		Model:           model,
		Status:          VariantStatus(statusStr),
		GenerationOrder: order,
		IsSelected:      isSelected.Valid && isSelected.Int64 != 0,
		Prompt:          prompt.String,
		ImageURL:        imageURL.String,
		SourceURL:       sourceURL.String,
		ParentImageURL:  parentImage.String,
		ErrorMessage:    errMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		variant.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		variant.UpdatedAt = updated
	}
	return variant, nil
}
