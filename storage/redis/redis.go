// Package redis provides a Redis-backed storage repository so several console
// instances can share one profile's session.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kodj/kodjadmin/storage"
)

const defaultOpTimeout = 5 * time.Second

// Config contains configuration options for the Redis repository.
type Config struct {
	// Client is the Redis client instance.
	Client *goredis.Client

	// KeyPrefix is prepended to every namespace hash.
	// Default: "kodjadmin:"
	KeyPrefix string

	// OpTimeout bounds every Redis round trip.
	// Default: 5s
	OpTimeout time.Duration
}

// Store implements storage.Repository with one Redis hash per namespace.
type Store struct {
	client    *goredis.Client
	keyPrefix string
	timeout   time.Duration
}

var _ storage.Repository = (*Store)(nil)

// New creates a new Redis-backed repository.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "kodjadmin:"
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = defaultOpTimeout
	}
	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
		timeout:   config.OpTimeout,
	}, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) hashKey(namespace string) string {
	return s.keyPrefix + "ns:" + namespace
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) Put(namespace, key string, envelope *storage.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.HSet(ctx, s.hashKey(namespace), key, data).Err(); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *Store) Get(namespace, key string) (*storage.Envelope, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	data, err := s.client.HGet(ctx, s.hashKey(namespace), key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%s/%s: %w", namespace, key, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", namespace, key, err)
	}
	var envelope storage.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &envelope, nil
}

func (s *Store) Delete(namespace, key string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.HDel(ctx, s.hashKey(namespace), key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *Store) List(namespace string) ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	keys, err := s.client.HKeys(ctx, s.hashKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", namespace, err)
	}
	sort.Strings(keys)
	return keys, nil
}

type redisBatchTx struct {
	pipe    goredis.Pipeliner
	ctx     context.Context
	hashKey string
}

func (tx *redisBatchTx) Put(key string, envelope *storage.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	tx.pipe.HSet(tx.ctx, tx.hashKey, key, data)
	return nil
}

func (tx *redisBatchTx) Delete(key string) error {
	tx.pipe.HDel(tx.ctx, tx.hashKey, key)
	return nil
}

// Batch queues the writes made by fn into a MULTI/EXEC block. Nothing is sent
// when fn returns an error.
func (s *Store) Batch(namespace string, fn func(tx storage.BatchTx) error) error {
	ctx, cancel := s.ctx()
	defer cancel()
	pipe := s.client.TxPipeline()
	if err := fn(&redisBatchTx{pipe: pipe, ctx: ctx, hashKey: s.hashKey(namespace)}); err != nil {
		pipe.Discard()
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to commit batch for %s: %w", namespace, err)
	}
	return nil
}
