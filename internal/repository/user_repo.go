package repository

import (
	"context"
	"fmt"
	"time"

	"rbac-auth/internal/database"
	"rbac-auth/internal/model"
)

const userColumns = `id, username, password_hash, full_name, email, role_id, department_id, is_active,
	last_login, created_by_user_id, updated_by_user_id, created_at, updated_at`

type UserRepository struct {
	db          *database.DB
	roles       *RoleRepository
	departments *DepartmentRepository
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{
		db:          db,
		roles:       NewRoleRepository(db),
		departments: NewDepartmentRepository(db),
	}
}

// FindByID loads a user and the relations selected by include.
func (r *UserRepository) FindByID(ctx context.Context, id int64, include model.Include) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = $1`), id)
	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err, "find user by id")
	}

	return r.resolve(ctx, u, include)
}

// FindByUsername matches the stored username exactly; no case folding is
// applied.
func (r *UserRepository) FindByUsername(ctx context.Context, username string, include model.Include) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = $1`), username)
	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err, "find user by username")
	}

	return r.resolve(ctx, u, include)
}

func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username string, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT COUNT(*) FROM users
		WHERE username = $1 OR (email IS NOT NULL AND email = $2)`),
		username, email).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check username or email exists: %w", err)
	}
	return count > 0, nil
}

// Create inserts u in its own transaction and fills in the generated id and
// timestamps. A unique violation on username or email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, u *model.User) (err error) {
	if u.PasswordHash == "" {
		return fmt.Errorf("create user: password hash is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	err = tx.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO users (username, password_hash, full_name, email, role_id, department_id, is_active,
		                   created_by_user_id, updated_by_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $9)
		RETURNING id`),
		u.Username, u.PasswordHash, nullable(u.FullName), nullable(u.Email), u.RoleID, nullable(u.DepartmentID),
		u.IsActive, nullable(u.CreatedByUserID), now,
	).Scan(&u.ID)
	if err != nil {
		return translate(err, "create user")
	}

	if err = tx.Commit(); err != nil {
		return translate(err, "commit create user")
	}

	u.UpdatedByUserID = u.CreatedByUserID
	u.CreatedAt = &now
	u.UpdatedAt = &now
	return nil
}

// UpdateLastLogin records a successful login. updated_at moves with it.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	at = at.UTC()
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`), id, at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return expectAffected(res, "update last login")
}

// SetActive flips the active flag. updatedBy may be nil for system changes.
func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool, updatedBy *int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users SET is_active = $2, updated_by_user_id = $3, updated_at = $4
		WHERE id = $1`),
		id, active, nullable(updatedBy), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return expectAffected(res, "set user active")
}

func (r *UserRepository) resolve(ctx context.Context, u *model.User, include model.Include) (*model.User, error) {
	if include.Role || include.Permissions {
		role, err := r.roles.FindByID(ctx, u.RoleID, include.Permissions)
		if err != nil {
			return nil, fmt.Errorf("load role of user %d: %w", u.ID, err)
		}
		u.Role = role
	}

	if include.Department && u.DepartmentID != nil {
		dept, err := r.departments.FindByID(ctx, *u.DepartmentID)
		if err != nil {
			return nil, fmt.Errorf("load department of user %d: %w", u.ID, err)
		}
		u.Department = dept
	}

	return u, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.Email, &u.RoleID,
		&u.DepartmentID, &u.IsActive, nullableTime(&u.LastLogin), &u.CreatedByUserID,
		&u.UpdatedByUserID, nullableTime(&u.CreatedAt), nullableTime(&u.UpdatedAt))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectAffected(res rowsAffecter, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
