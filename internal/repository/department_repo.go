package repository

import (
	"context"
	"fmt"
	"time"

	"rbac-auth/internal/database"
	"rbac-auth/internal/model"
)

type DepartmentRepository struct {
	db *database.DB
}

func NewDepartmentRepository(db *database.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

func (r *DepartmentRepository) FindByID(ctx context.Context, id int64) (*model.Department, error) {
	var d model.Department
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id, name, description, is_active, created_at, updated_at
		FROM departments WHERE id = $1`), id).
		Scan(&d.ID, &d.Name, &d.Description, &d.IsActive,
			nullableTime(&d.CreatedAt), nullableTime(&d.UpdatedAt))
	if err != nil {
		return nil, translate(err, "find department")
	}
	return &d, nil
}

func (r *DepartmentRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT COUNT(*) FROM departments WHERE id = $1`), id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check department exists: %w", err)
	}
	return count > 0, nil
}

func (r *DepartmentRepository) Upsert(ctx context.Context, d *model.Department) error {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO departments (name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name) DO UPDATE SET
			description = excluded.description,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at`),
		d.Name, nullable(d.Description), d.IsActive, now)

	if err := row.Scan(&d.ID, nullableTime(&d.CreatedAt), nullableTime(&d.UpdatedAt)); err != nil {
		return translate(err, "upsert department")
	}
	return nil
}
