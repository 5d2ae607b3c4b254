package repository

import (
	"context"
	"fmt"
	"time"

	"rbac-auth/internal/database"
	"rbac-auth/internal/model"
)

const roleColumns = `id, name, description, created_at, updated_at`

type RoleRepository struct {
	db *database.DB
}

func NewRoleRepository(db *database.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) FindByID(ctx context.Context, id int64, withPermissions bool) (*model.Role, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+roleColumns+` FROM roles WHERE id = $1`), id)
	role, err := scanRole(row)
	if err != nil {
		return nil, translate(err, "find role by id")
	}

	return r.withPermissions(ctx, role, withPermissions)
}

// FindByName matches the role name exactly.
func (r *RoleRepository) FindByName(ctx context.Context, name string, withPermissions bool) (*model.Role, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+roleColumns+` FROM roles WHERE name = $1`), name)
	role, err := scanRole(row)
	if err != nil {
		return nil, translate(err, "find role by name")
	}

	return r.withPermissions(ctx, role, withPermissions)
}

// List returns every role, ordered by name, with its permissions resolved.
func (r *RoleRepository) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := []model.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	rows.Close()

	for i := range roles {
		perms, err := r.Permissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}

	return roles, nil
}

// Permissions returns the permissions granted to a role ordered by name. The
// result is never nil.
func (r *RoleRepository) Permissions(ctx context.Context, roleID int64) ([]model.Permission, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT p.id, p.name, p.module, p.description, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.name`), roleID)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	defer rows.Close()

	perms := []model.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, *p)
	}

	return perms, rows.Err()
}

// Upsert inserts the role or refreshes the description of an existing role
// with the same name. role.ID and timestamps are filled in.
func (r *RoleRepository) Upsert(ctx context.Context, role *model.Role) error {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (name) DO UPDATE SET description = excluded.description, updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at`),
		role.Name, nullable(role.Description), now)

	if err := row.Scan(&role.ID, nullableTime(&role.CreatedAt), nullableTime(&role.UpdatedAt)); err != nil {
		return translate(err, "upsert role")
	}
	return nil
}

// Grant attaches a permission to a role. Granting twice is a no-op.
func (r *RoleRepository) Grant(ctx context.Context, roleID int64, permissionID int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO role_permissions (role_id, permission_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, permission_id) DO NOTHING`),
		roleID, permissionID, time.Now().UTC())
	if err != nil {
		return translate(err, "grant permission")
	}
	return nil
}

func (r *RoleRepository) Revoke(ctx context.Context, roleID int64, permissionID int64) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`),
		roleID, permissionID)
	if err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}
	return nil
}

// Delete removes a role; its grants are removed by the cascade. A role still
// assigned to users cannot be deleted.
func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM roles WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return expectAffected(res, "delete role")
}

func (r *RoleRepository) withPermissions(ctx context.Context, role *model.Role, load bool) (*model.Role, error) {
	if !load {
		return role, nil
	}

	perms, err := r.Permissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return role, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*model.Role, error) {
	var role model.Role
	err := row.Scan(&role.ID, &role.Name, &role.Description,
		nullableTime(&role.CreatedAt), nullableTime(&role.UpdatedAt))
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func scanPermission(row rowScanner) (*model.Permission, error) {
	var p model.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Module, &p.Description,
		nullableTime(&p.CreatedAt), nullableTime(&p.UpdatedAt))
	if err != nil {
		return nil, err
	}
	return &p, nil
}
