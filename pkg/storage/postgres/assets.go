package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// Assets

func (s *Store) CreateAsset(ctx context.Context, asset *storage.Asset) error {
	query := `
		INSERT INTO assets (tag, name, asset_type, location_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $5)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		asset.Tag, asset.Name, asset.AssetType, nullInt64(asset.LocationID), time.Now().UTC(),
	).Scan(&asset.ID, &asset.CreatedAt, &asset.UpdatedAt)

	if isUniqueViolation(err) {
		return apperr.Conflict("asset with tag %s already exists", asset.Tag)
	}
	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	asset.Active = true
	return nil
}

func (s *Store) GetAsset(ctx context.Context, id int64) (*storage.Asset, error) {
	query := `
		SELECT id, tag, name, asset_type, location_id, is_active, created_at, updated_at
		FROM assets WHERE id = $1
	`

	var (
		a          storage.Asset
		locationID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Tag, &a.Name, &a.AssetType, &locationID, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "asset %d not found", id)
	}
	a.LocationID = int64Ptr(locationID)
	return &a, nil
}

func (s *Store) ListAssets(ctx context.Context, locationID int64, activeOnly bool) ([]*storage.Asset, error) {
	query := `
		SELECT id, tag, name, asset_type, location_id, is_active, created_at, updated_at
		FROM assets
		WHERE ($1 = 0 OR location_id = $1)
		  AND (NOT $2 OR is_active)
		ORDER BY tag
	`

	rows, err := s.db.QueryContext(ctx, query, locationID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*storage.Asset
	for rows.Next() {
		var (
			a     storage.Asset
			locID sql.NullInt64
		)
		err := rows.Scan(&a.ID, &a.Tag, &a.Name, &a.AssetType, &locID, &a.Active, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		a.LocationID = int64Ptr(locID)
		assets = append(assets, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return assets, nil
}

func (s *Store) UpdateAsset(ctx context.Context, asset *storage.Asset) error {
	query := `
		UPDATE assets
		SET tag = $2, name = $3, asset_type = $4, location_id = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		asset.ID, asset.Tag, asset.Name, asset.AssetType, nullInt64(asset.LocationID), time.Now().UTC())
	if isUniqueViolation(err) {
		return apperr.Conflict("asset with tag %s already exists", asset.Tag)
	}
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("asset %d not found", asset.ID)
	}
	return nil
}

func (s *Store) SetAssetActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE assets SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set asset active: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("asset %d not found", id)
	}
	return nil
}

// Locations

func (s *Store) CreateLocation(ctx context.Context, location *storage.Location) error {
	query := `
		INSERT INTO locations (name, site, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		location.Name, location.Site, time.Now().UTC(),
	).Scan(&location.ID, &location.CreatedAt, &location.UpdatedAt)

	if isUniqueViolation(err) {
		return apperr.Conflict("location %s at site %s already exists", location.Name, location.Site)
	}
	if err != nil {
		return fmt.Errorf("failed to create location: %w", err)
	}
	return nil
}

func (s *Store) GetLocation(ctx context.Context, id int64) (*storage.Location, error) {
	var l storage.Location
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, site, created_at, updated_at FROM locations WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.Site, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "location %d not found", id)
	}
	return &l, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]*storage.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, site, created_at, updated_at FROM locations ORDER BY site, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []*storage.Location
	for rows.Next() {
		var l storage.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Site, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	return locations, nil
}

func (s *Store) UpdateLocation(ctx context.Context, location *storage.Location) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE locations SET name = $2, site = $3, updated_at = $4 WHERE id = $1`,
		location.ID, location.Name, location.Site, time.Now().UTC())
	if isUniqueViolation(err) {
		return apperr.Conflict("location %s at site %s already exists", location.Name, location.Site)
	}
	if err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("location %d not found", location.ID)
	}
	return nil
}

// DeleteLocation removes a location. Locations still referenced by assets
// or inspections come back as a conflict via the foreign-key violation.
func (s *Store) DeleteLocation(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperr.Conflict("location %d is still in use", id)
		}
		return fmt.Errorf("failed to delete location: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("location %d not found", id)
	}
	return nil
}

// Form templates

func (s *Store) CreateTemplate(ctx context.Context, template *storage.FormTemplate) error {
	query := `
		INSERT INTO form_templates (name, inspection_type, schema, version, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, created_at, updated_at
	`

	if template.Version <= 0 {
		template.Version = 1
	}
	err := s.db.QueryRowContext(ctx, query,
		template.Name, template.InspectionType, []byte(template.Schema),
		template.Version, template.Active, time.Now().UTC(),
	).Scan(&template.ID, &template.CreatedAt, &template.UpdatedAt)

	if isUniqueViolation(err) {
		return apperr.Conflict("template version %d for %s already exists",
			template.Version, template.InspectionType)
	}
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id int64) (*storage.FormTemplate, error) {
	query := `
		SELECT id, name, inspection_type, schema, version, is_active, created_at, updated_at
		FROM form_templates WHERE id = $1
	`

	var t storage.FormTemplate
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.InspectionType, &t.Schema, &t.Version, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "template %d not found", id)
	}
	return &t, nil
}

// GetActiveTemplate returns the newest active template for an inspection type.
func (s *Store) GetActiveTemplate(ctx context.Context, inspectionType string) (*storage.FormTemplate, error) {
	query := `
		SELECT id, name, inspection_type, schema, version, is_active, created_at, updated_at
		FROM form_templates
		WHERE inspection_type = $1 AND is_active
		ORDER BY version DESC
		LIMIT 1
	`

	var t storage.FormTemplate
	err := s.db.QueryRowContext(ctx, query, inspectionType).Scan(
		&t.ID, &t.Name, &t.InspectionType, &t.Schema, &t.Version, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "no active template for %s", inspectionType)
	}
	return &t, nil
}

func (s *Store) ListTemplates(ctx context.Context, inspectionType string) ([]*storage.FormTemplate, error) {
	query := `
		SELECT id, name, inspection_type, schema, version, is_active, created_at, updated_at
		FROM form_templates
		WHERE ($1 = '' OR inspection_type = $1)
		ORDER BY inspection_type, version DESC
	`

	rows, err := s.db.QueryContext(ctx, query, inspectionType)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*storage.FormTemplate
	for rows.Next() {
		var t storage.FormTemplate
		err := rows.Scan(&t.ID, &t.Name, &t.InspectionType, &t.Schema, &t.Version,
			&t.Active, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}
	return templates, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, template *storage.FormTemplate) error {
	query := `
		UPDATE form_templates
		SET name = $2, schema = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		template.ID, template.Name, []byte(template.Schema), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("template %d not found", template.ID)
	}
	return nil
}

func (s *Store) SetTemplateActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE form_templates SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set template active: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("template %d not found", id)
	}
	return nil
}
