// Package seed loads the role, permission and department catalogue from YAML
// and applies it to the store. Applying is additive and idempotent: entries are
// upserted by name and grants are added, never revoked.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"rbac-auth/internal/model"
)

type Catalogue struct {
	Permissions []PermissionSpec `yaml:"permissions"`
	Roles       []RoleSpec       `yaml:"roles"`
	Departments []DepartmentSpec `yaml:"departments"`
}

type PermissionSpec struct {
	Name        string `yaml:"name"`
	Module      string `yaml:"module"`
	Description string `yaml:"description"`
}

type RoleSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type DepartmentSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Active      *bool  `yaml:"active"`
}

type RoleStore interface {
	Upsert(ctx context.Context, role *model.Role) error
	Grant(ctx context.Context, roleID int64, permissionID int64) error
}

type PermissionStore interface {
	Upsert(ctx context.Context, p *model.Permission) error
}

type DepartmentStore interface {
	Upsert(ctx context.Context, d *model.Department) error
}

type Stores struct {
	Roles       RoleStore
	Permissions PermissionStore
	Departments DepartmentStore
}

type Result struct {
	Permissions int
	Roles       int
	Grants      int
	Departments int
}

// Load reads and validates a catalogue file. A missing file is reported with
// an error wrapping os.ErrNotExist so callers can treat it as optional.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	return cat, nil
}

func Parse(data []byte) (*Catalogue, error) {
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalogue) Validate() error {
	var problems []string

	permissions := map[string]bool{}
	for i, p := range c.Permissions {
		name := strings.TrimSpace(p.Name)
		switch {
		case name == "":
			problems = append(problems, fmt.Sprintf("permissions[%d]: name is required", i))
		case permissions[name]:
			problems = append(problems, fmt.Sprintf("permission %q declared twice", name))
		}
		permissions[name] = true
	}

	roles := map[string]bool{}
	for i, r := range c.Roles {
		name := strings.TrimSpace(r.Name)
		switch {
		case name == "":
			problems = append(problems, fmt.Sprintf("roles[%d]: name is required", i))
		case roles[name]:
			problems = append(problems, fmt.Sprintf("role %q declared twice", name))
		}
		roles[name] = true

		for _, perm := range r.Permissions {
			if !permissions[strings.TrimSpace(perm)] {
				problems = append(problems, fmt.Sprintf("role %q grants undeclared permission %q", name, perm))
			}
		}
	}

	departments := map[string]bool{}
	for i, d := range c.Departments {
		name := strings.TrimSpace(d.Name)
		switch {
		case name == "":
			problems = append(problems, fmt.Sprintf("departments[%d]: name is required", i))
		case departments[name]:
			problems = append(problems, fmt.Sprintf("department %q declared twice", name))
		}
		departments[name] = true
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (c *Catalogue) HasRole(name string) bool {
	for _, r := range c.Roles {
		if strings.TrimSpace(r.Name) == name {
			return true
		}
	}
	return false
}

func Apply(ctx context.Context, cat *Catalogue, stores Stores) (Result, error) {
	var res Result

	permissionIDs := make(map[string]int64, len(cat.Permissions))
	for _, spec := range cat.Permissions {
		p := &model.Permission{
			Name:        strings.TrimSpace(spec.Name),
			Module:      optional(spec.Module),
			Description: optional(spec.Description),
		}
		if err := stores.Permissions.Upsert(ctx, p); err != nil {
			return res, fmt.Errorf("seed permission %q: %w", p.Name, err)
		}
		permissionIDs[p.Name] = p.ID
		res.Permissions++
	}

	for _, spec := range cat.Roles {
		role := &model.Role{
			Name:        strings.TrimSpace(spec.Name),
			Description: optional(spec.Description),
		}
		if err := stores.Roles.Upsert(ctx, role); err != nil {
			return res, fmt.Errorf("seed role %q: %w", role.Name, err)
		}
		res.Roles++

		for _, name := range spec.Permissions {
			name = strings.TrimSpace(name)
			if err := stores.Roles.Grant(ctx, role.ID, permissionIDs[name]); err != nil {
				return res, fmt.Errorf("grant %q to role %q: %w", name, role.Name, err)
			}
			res.Grants++
		}
	}

	for _, spec := range cat.Departments {
		d := &model.Department{
			Name:        strings.TrimSpace(spec.Name),
			Description: optional(spec.Description),
			IsActive:    spec.Active == nil || *spec.Active,
		}
		if err := stores.Departments.Upsert(ctx, d); err != nil {
			return res, fmt.Errorf("seed department %q: %w", d.Name, err)
		}
		res.Departments++
	}

	slog.Info("rbac catalogue applied",
		"permissions", res.Permissions,
		"roles", res.Roles,
		"grants", res.Grants,
		"departments", res.Departments,
	)
	return res, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
