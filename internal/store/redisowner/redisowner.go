// Package redisowner keeps the live ownership index in Redis sets. Two sets
// are maintained per assignment so both lookup directions are O(1):
//
//	owners:{TYPE}:{resourceID} -> user ids
//	owned:{TYPE}:{userID}      -> resource ids
package redisowner

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

var _ auth.OwnershipStore = (*Store)(nil)

const maxWatchRetries = 5

type Store struct {
	client *redis.Client
	prefix string

	// afterRead runs between the watched read and the write; tests only.
	afterRead func()
}

type Option func(*Store)

// WithKeyPrefix namespaces every key, e.g. per deployment.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func New(client *redis.Client, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) ownersKey(rt auth.ResourceType, resourceID string) string {
	return fmt.Sprintf("%sowners:%s:%s", s.prefix, rt, resourceID)
}

func (s *Store) ownedKey(rt auth.ResourceType, userID string) string {
	return fmt.Sprintf("%sowned:%s:%s", s.prefix, rt, userID)
}

func (s *Store) AddOwner(ctx context.Context, rt auth.ResourceType, resourceID, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.ownersKey(rt, resourceID), userID)
		pipe.SAdd(ctx, s.ownedKey(rt, userID), resourceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add owner: %w", err)
	}
	return nil
}

func (s *Store) RemoveOwner(ctx context.Context, rt auth.ResourceType, resourceID, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, s.ownersKey(rt, resourceID), userID)
		pipe.SRem(ctx, s.ownedKey(rt, userID), resourceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove owner: %w", err)
	}
	return nil
}

// RemoveResource drops the resource's owner set and its entry in every
// owner's reverse set. The owner set is watched so an owner added between the
// read and the write forces a retry instead of leaving a stale reverse entry.
func (s *Store) RemoveResource(ctx context.Context, rt auth.ResourceType, resourceID string) error {
	key := s.ownersKey(rt, resourceID)
	txf := func(tx *redis.Tx) error {
		members, err := tx.SMembers(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("load owners: %w", err)
		}
		if s.afterRead != nil {
			s.afterRead()
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, userID := range members {
				pipe.SRem(ctx, s.ownedKey(rt, userID), resourceID)
			}
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}
	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("remove resource: %w", err)
		}
	}
	return fmt.Errorf("remove resource %s: owners kept changing", key)
}

func (s *Store) IsOwner(ctx context.Context, rt auth.ResourceType, resourceID, userID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.ownersKey(rt, resourceID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("check owner: %w", err)
	}
	return ok, nil
}

func (s *Store) Owners(ctx context.Context, rt auth.ResourceType, resourceID string) ([]string, error) {
	return s.members(ctx, s.ownersKey(rt, resourceID))
}

func (s *Store) OwnedBy(ctx context.Context, rt auth.ResourceType, userID string) ([]string, error) {
	return s.members(ctx, s.ownedKey(rt, userID))
}

func (s *Store) members(ctx context.Context, key string) ([]string, error) {
	out, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", key, err)
	}
	sort.Strings(out)
	return out, nil
}

// Ping reports whether Redis is reachable; used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
