package pg

import (
	"context"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

func (s *Store) AddOwner(ctx context.Context, rt auth.ResourceType, resourceID, userID string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into resource_owners (resource_type, resource_id, user_id)
		values ($1, $2, $3)
		on conflict do nothing
	`, string(rt), resourceID, userID)
	return mapWriteErr(err)
}

func (s *Store) RemoveOwner(ctx context.Context, rt auth.ResourceType, resourceID, userID string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		delete from resource_owners
		where resource_type = $1 and resource_id = $2 and user_id = $3
	`, string(rt), resourceID, userID)
	return err
}

func (s *Store) RemoveResource(ctx context.Context, rt auth.ResourceType, resourceID string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		delete from resource_owners where resource_type = $1 and resource_id = $2
	`, string(rt), resourceID)
	return err
}

func (s *Store) IsOwner(ctx context.Context, rt auth.ResourceType, resourceID, userID string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var owned bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from resource_owners
			where resource_type = $1 and resource_id = $2 and user_id = $3
		)
	`, string(rt), resourceID, userID).Scan(&owned)
	return owned, err
}

func (s *Store) Owners(ctx context.Context, rt auth.ResourceType, resourceID string) ([]string, error) {
	return s.column(ctx, `
		select user_id from resource_owners
		where resource_type = $1 and resource_id = $2
		order by user_id
	`, string(rt), resourceID)
}

func (s *Store) OwnedBy(ctx context.Context, rt auth.ResourceType, userID string) ([]string, error) {
	return s.column(ctx, `
		select resource_id from resource_owners
		where resource_type = $1 and user_id = $2
		order by resource_id
	`, string(rt), userID)
}

func (s *Store) column(ctx context.Context, query string, args ...any) ([]string, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
