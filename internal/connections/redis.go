package connections

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps one hash per user partition: field = integration id,
// value = JSON connection record. HSET/HDEL are atomic per key, which gives
// us the per-partition write serialization the contract requires.
type redisStore struct {
	cli *redis.Client
}

func NewRedis(cli *redis.Client) Store {
	return &redisStore{cli: cli}
}

func partitionKey(userID string) string { return "hublink:connections:" + userID }

func (s *redisStore) Save(ctx context.Context, userID string, conn Connection) error {
	b, err := json.Marshal(conn)
	if err != nil {
		return err
	}
	return s.cli.HSet(ctx, partitionKey(userID), conn.IntegrationID, b).Err()
}

func (s *redisStore) Get(ctx context.Context, userID, integrationID string) (Connection, error) {
	b, err := s.cli.HGet(ctx, partitionKey(userID), integrationID).Bytes()
	if err == redis.Nil {
		return Connection{}, ErrNotFound
	}
	if err != nil {
		return Connection{}, err
	}
	var c Connection
	if err := json.Unmarshal(b, &c); err != nil {
		return Connection{}, fmt.Errorf("connections: corrupt record for %s/%s: %w", userID, integrationID, err)
	}
	return c, nil
}

func (s *redisStore) List(ctx context.Context, userID string) ([]Connection, error) {
	vals, err := s.cli.HGetAll(ctx, partitionKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Connection, 0, len(vals))
	for id, raw := range vals {
		var c Connection
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("connections: corrupt record for %s/%s: %w", userID, id, err)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntegrationID < out[j].IntegrationID })
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, userID, integrationID string) error {
	n, err := s.cli.HDel(ctx, partitionKey(userID), integrationID).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
