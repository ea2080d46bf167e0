package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	sessionKeyPrefix = "clipmix:session:"
	batchKeyPrefix   = "clipmix:batch:"

	// optimistic update retries before giving up on a hot key
	maxUpdateRetries = 10
)

// RedisStore keeps sessions and batches as JSON values with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

// NewRedisStoreFromClient shares an existing connection (e.g. the queue's).
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func sessionKey(id uuid.UUID) string { return sessionKeyPrefix + id.String() }
func batchKey(id uuid.UUID) string   { return batchKeyPrefix + id.String() }

func (s *RedisStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var sess models.Session
	if err := s.get(ctx, s.client, sessionKey(id), &sess); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) SaveSession(ctx context.Context, sess *models.Session) error {
	sess.UpdatedAt = time.Now()
	return s.set(ctx, sessionKey(sess.ID), sess)
}

func (s *RedisStore) UpdateSession(ctx context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error) {
	var sess models.Session
	err := s.update(ctx, sessionKey(id), func(tx *redis.Tx) (interface{}, error) {
		sess = models.Session{}
		if err := s.get(ctx, tx, sessionKey(id), &sess); err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
			}
			return nil, err
		}
		if err := fn(&sess); err != nil {
			return nil, err
		}
		sess.UpdatedAt = time.Now()
		return &sess, nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisStore) GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var b models.Batch
	if err := s.get(ctx, s.client, batchKey(id), &b); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
		}
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}
	return &b, nil
}

func (s *RedisStore) SaveBatch(ctx context.Context, b *models.Batch) error {
	return s.set(ctx, batchKey(b.ID), b)
}

func (s *RedisStore) UpdateBatch(ctx context.Context, id uuid.UUID, fn func(*models.Batch) error) (*models.Batch, error) {
	var b models.Batch
	err := s.update(ctx, batchKey(id), func(tx *redis.Tx) (interface{}, error) {
		b = models.Batch{}
		if err := s.get(ctx, tx, batchKey(id), &b); err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
			}
			return nil, err
		}
		if err := fn(&b); err != nil {
			return nil, err
		}
		return &b, nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// update runs read-modify-write under WATCH, retrying when another writer
// touched the key between the read and the EXEC.
func (s *RedisStore) update(ctx context.Context, key string, modify func(tx *redis.Tx) (interface{}, error)) error {
	txf := func(tx *redis.Tx) error {
		value, err := modify(tx)
		if err != nil {
			return err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			log.Printf("[Session] Concurrent write on %s, retrying (attempt %d)", key, attempt+1)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to update %s: too many concurrent writers", key)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, key string, v interface{}) error {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) set(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
