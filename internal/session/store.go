package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store persists flow snapshots so a flow survives a restart or moves
// between API instances with its pinned prices intact.
type Store interface {
	Save(ctx context.Context, s State, ttl time.Duration) error
	// Load returns ErrFlowNotFound when the flow is unknown or expired.
	Load(ctx context.Context, id uuid.UUID) (State, error)
	// Delete returns ErrFlowNotFound when there was nothing to delete.
	Delete(ctx context.Context, id uuid.UUID) error
}

// RedisStore keeps each flow as a JSON value under "flow:<id>".
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func flowKey(id uuid.UUID) string {
	return "flow:" + id.String()
}

func (s *RedisStore) Save(ctx context.Context, st State, ttl time.Duration) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	return s.client.Set(ctx, flowKey(st.ID), b, ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, id uuid.UUID) (State, error) {
	b, err := s.client.Get(ctx, flowKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrFlowNotFound
		}
		return State{}, fmt.Errorf("load flow: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("decode flow: %w", err)
	}
	if st.Prices == nil {
		st.Prices = make(map[string]int64)
	}
	return st, nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.client.Del(ctx, flowKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if n == 0 {
		return ErrFlowNotFound
	}
	return nil
}
