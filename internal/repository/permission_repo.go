package repository

import (
	"context"
	"time"

	"rbac-auth/internal/database"
	"rbac-auth/internal/model"
)

type PermissionRepository struct {
	db *database.DB
}

func NewPermissionRepository(db *database.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) FindByName(ctx context.Context, name string) (*model.Permission, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id, name, module, description, created_at, updated_at
		FROM permissions WHERE name = $1`), name)

	p, err := scanPermission(row)
	if err != nil {
		return nil, translate(err, "find permission by name")
	}
	return p, nil
}

// Upsert inserts the permission or refreshes module and description of an
// existing permission with the same name.
func (r *PermissionRepository) Upsert(ctx context.Context, p *model.Permission) error {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO permissions (name, module, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name) DO UPDATE SET
			module = excluded.module,
			description = excluded.description,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at`),
		p.Name, nullable(p.Module), nullable(p.Description), now)

	if err := row.Scan(&p.ID, nullableTime(&p.CreatedAt), nullableTime(&p.UpdatedAt)); err != nil {
		return translate(err, "upsert permission")
	}
	return nil
}

func (r *PermissionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM permissions WHERE id = $1`), id)
	if err != nil {
		return translate(err, "delete permission")
	}
	return expectAffected(res, "delete permission")
}
