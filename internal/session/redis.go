package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps results as redis hashes that expire after the TTL.
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, namespace: namespace, ttl: ttl}
}

func createKey(namespace, sessionID string) string {
	return fmt.Sprintf("%s:result:%s", namespace, sessionID)
}

func (s *RedisStore) Get(sessionID string) (*Result, error) {
	ctx := context.Background()
	fields, err := s.client.HGetAll(ctx, createKey(s.namespace, sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("could not read result: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	result := &Result{PNG: []byte(fields["png"])}
	ints := map[string]*int{
		"width":        &result.Width,
		"height":       &result.Height,
		"facesSwapped": &result.FacesSwapped,
		"sourceFaces":  &result.SourceFaces,
		"targetFaces":  &result.TargetFaces,
	}
	for name, target := range ints {
		if *target, err = strconv.Atoi(fields[name]); err != nil {
			return nil, fmt.Errorf("corrupt result field %s: %w", name, err)
		}
	}
	createdAt, err := strconv.ParseInt(fields["createdAt"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt result field createdAt: %w", err)
	}
	result.CreatedAt = time.Unix(0, createdAt)
	return result, nil
}

func (s *RedisStore) Put(sessionID string, result *Result) error {
	ctx := context.Background()
	key := createKey(s.namespace, sessionID)
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"png", result.PNG,
			"width", result.Width,
			"height", result.Height,
			"facesSwapped", result.FacesSwapped,
			"sourceFaces", result.SourceFaces,
			"targetFaces", result.TargetFaces,
			"createdAt", createdAt.UnixNano(),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Clear(sessionID string) error {
	ctx := context.Background()
	return s.client.Del(ctx, createKey(s.namespace, sessionID)).Err()
}

func (s *RedisStore) Ping() error {
	return s.client.Ping(context.Background()).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
