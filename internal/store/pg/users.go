package pg

import (
	"context"
	"database/sql"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/ids"
)

const userColumns = `id, username, password_hash, role_id, active, blocked, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u      auth.User
		roleID sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &roleID, &u.Active, &u.Blocked, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	u.RoleID = roleID.String
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, password_hash, role_id, active, blocked)
		values ($1, $2, $3, $4, $5, $6)
		returning `+userColumns,
		u.ID, u.Username, u.PasswordHash, nullIfEmpty(u.RoleID), u.Active, u.Blocked)
	created, err := scanUser(row)
	if err != nil {
		return auth.User{}, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if err != nil {
		return auth.User{}, notFoundIfNoRows(err)
	}
	return u, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username = $1`, username))
	if err != nil {
		return auth.User{}, notFoundIfNoRows(err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) SetUserRole(ctx context.Context, userID, roleID string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		update users set role_id = $2, updated_at = now()
		where id = $1
		returning `+userColumns, userID, roleID)
	u, err := scanUser(row)
	if err != nil {
		return auth.User{}, mapWriteErr(notFoundIfNoRows(err))
	}
	return u, nil
}

func (s *Store) SetUserStatus(ctx context.Context, userID string, status auth.UserStatus) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		update users
		set active = coalesce($2, active),
		    blocked = coalesce($3, blocked),
		    updated_at = now()
		where id = $1
		returning `+userColumns, userID, nullBool(status.Active), nullBool(status.Blocked))
	u, err := scanUser(row)
	if err != nil {
		return auth.User{}, notFoundIfNoRows(err)
	}
	return u, nil
}

func (s *Store) CountUsersWithRole(ctx context.Context, roleID string) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users where role_id = $1`, roleID).Scan(&n)
	return n, err
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
