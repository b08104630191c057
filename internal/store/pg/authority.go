package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/ids"
)

func (s *Store) CreateRole(ctx context.Context, role auth.Role) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	var created auth.Role
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning id, name, description, created_at, updated_at
	`, ids.New(), role.Name, role.Description)
	if err := row.Scan(&created.ID, &created.Name, &created.Description, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return auth.Role{}, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) GetRole(ctx context.Context, id string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	var r auth.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles where id = $1
	`, id).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return auth.Role{}, notFoundIfNoRows(err)
	}
	return r, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Role
	for rows.Next() {
		var r auth.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// DeleteRole removes the role and its permission links. users.role_id
// restricts the delete while any user still references the role.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return mapDeleteErr(err)
	}
	return requireAffected(res)
}

const permissionColumns = `id, name, description, resource_type, action, created_at`

func scanPermission(row rowScanner) (auth.Permission, error) {
	var p auth.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &p.CreatedAt)
	return p, err
}

func (s *Store) CreatePermission(ctx context.Context, p auth.Permission) (auth.Permission, error) {
	if s.db == nil {
		return auth.Permission{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, description, resource_type, action)
		values ($1, $2, $3, $4, $5)
		returning `+permissionColumns,
		ids.New(), p.Name, p.Description, string(p.Resource), string(p.Action))
	created, err := scanPermission(row)
	if err != nil {
		return auth.Permission{}, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) GetPermission(ctx context.Context, id string) (auth.Permission, error) {
	if s.db == nil {
		return auth.Permission{}, errNoDB
	}
	p, err := scanPermission(s.db.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where id = $1`, id))
	if err != nil {
		return auth.Permission{}, notFoundIfNoRows(err)
	}
	return p, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+permissionColumns+` from permissions order by name`)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func (s *Store) DeletePermission(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return mapDeleteErr(err)
	}
	return requireAffected(res)
}

// AttachPermissions links permissions to a role inside one transaction.
// Existing links are left untouched.
func (s *Store) AttachPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return s.withRole(ctx, roleID, func(tx *sql.Tx) error {
		for _, permID := range permissionIDs {
			if _, err := tx.ExecContext(ctx, `
				insert into role_permissions (role_id, permission_id)
				values ($1, $2)
				on conflict (role_id, permission_id) do nothing
			`, roleID, permID); err != nil {
				if err := mapWriteErr(err); err == auth.ErrNotFound {
					return fmt.Errorf("%w: permission %s", auth.ErrNotFound, permID)
				}
				return err
			}
		}
		return nil
	})
}

func (s *Store) DetachPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return s.withRole(ctx, roleID, func(tx *sql.Tx) error {
		for _, permID := range permissionIDs {
			if _, err := tx.ExecContext(ctx, `
				delete from role_permissions where role_id = $1 and permission_id = $2
			`, roleID, permID); err != nil {
				return err
			}
		}
		return nil
	})
}

// PurgePermission locks the permission row so no concurrent attach can add a
// link between the detach and the delete.
func (s *Store) PurgePermission(ctx context.Context, permissionID string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from permissions where id = $1 for update`, permissionID).Scan(&exists); err != nil {
		return notFoundIfNoRows(err)
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where permission_id = $1`, permissionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from permissions where id = $1`, permissionID); err != nil {
		return mapDeleteErr(err)
	}
	return tx.Commit()
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		return nil, notFoundIfNoRows(err)
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.resource_type, p.action, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func (s *Store) withRole(ctx context.Context, roleID string, fn func(tx *sql.Tx) error) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1 for update`, roleID).Scan(&exists); err != nil {
		return notFoundIfNoRows(err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func collectPermissions(rows *sql.Rows) ([]auth.Permission, error) {
	defer rows.Close()
	var result []auth.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
