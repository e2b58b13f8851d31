// Package redis implements the instance store, log store and distributed locker on Redis,
// so several engine replicas can share conversations.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "flujos:"

// InstanceStore implements ports.InstanceStore using Redis.
//
// Each instance is a JSON string. A global ZSET and one ZSET per conversation,
// both scored by creation time, index the instances for List.
type InstanceStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the stores.
type Option func(*options)

type options struct {
	prefix string
	ttl    time.Duration
}

// WithTTL sets how long terminal instances (completada, cancelada, error) are kept.
// Active and transferred instances never expire. Zero keeps everything.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

func buildOptions(opts []Option) options {
	o := options{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient opens a client for address.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// NewInstanceStore creates an instance store from an existing client.
func NewInstanceStore(client *backend.Client, opts ...Option) *InstanceStore {
	o := buildOptions(opts)
	return &InstanceStore{client: client, prefix: o.prefix, ttl: o.ttl}
}

func (s *InstanceStore) key(id string) string {
	return s.prefix + "instance:" + id
}

func (s *InstanceStore) indexKey() string {
	return s.prefix + "instances"
}

func (s *InstanceStore) conversationKey(canal domain.Canal, usuario string) string {
	return s.prefix + "conversation:" + domain.ConversationKey(canal, usuario)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Save persists the instance inside a WATCH transaction so a concurrent writer
// with the same base version makes one of them fail with domain.ErrVersionConflict.
func (s *InstanceStore) Save(ctx context.Context, inst *domain.Instance) error {
	key := s.key(inst.ID)
	next := inst.Clone()

	txf := func(tx *backend.Tx) error {
		current := 0
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var prev domain.Instance
			if err := json.Unmarshal(raw, &prev); err != nil {
				return fmt.Errorf("failed to unmarshal stored instance: %w", err)
			}
			current = prev.Version
		case !errors.Is(err, backend.Nil):
			return fmt.Errorf("failed to get from redis: %w", err)
		}
		if inst.Version != current {
			return fmt.Errorf("%w: instance %s is at version %d, got %d", domain.ErrVersionConflict, inst.ID, current, inst.Version)
		}

		next.Version = current + 1
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal instance: %w", err)
		}
		ttl := time.Duration(0)
		if next.Estado.Terminal() {
			ttl = s.ttl
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			member := backend.Z{Score: score(next.CreadoEn), Member: next.ID}
			pipe.ZAdd(ctx, s.indexKey(), member)
			pipe.ZAdd(ctx, s.conversationKey(next.Canal, next.IdentificadorUsuario), member)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, backend.TxFailedErr) {
		return fmt.Errorf("%w: instance %s changed during save", domain.ErrVersionConflict, inst.ID)
	}
	if err != nil {
		return err
	}
	inst.Version = next.Version
	return nil
}

// Get loads one instance.
func (s *InstanceStore) Get(ctx context.Context, id string) (*domain.Instance, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	var inst domain.Instance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}
	return &inst, nil
}

// List walks the conversation index when the filter names one, the global index otherwise.
// Index members whose instance expired are pruned lazily.
func (s *InstanceStore) List(ctx context.Context, filter ports.InstanceFilter) ([]*domain.Instance, error) {
	index := s.indexKey()
	if filter.Canal != "" && filter.IdentificadorUsuario != "" {
		index = s.conversationKey(filter.Canal, filter.IdentificadorUsuario)
	}
	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Instance{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load instances: %w", err)
	}

	out := make([]*domain.Instance, 0, len(values))
	var expired []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var inst domain.Instance
		if err := json.Unmarshal([]byte(str), &inst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal instance %s: %w", ids[i], err)
		}
		if filter.Match(&inst) {
			out = append(out, &inst)
		}
	}
	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, index, expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired instances: %w", err)
		}
	}
	ports.SortInstances(out)
	return filter.ApplyLimit(out), nil
}

// LogStore implements ports.LogStore with one Redis list per instance.
type LogStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// NewLogStore creates a log store from an existing client. WithTTL bounds the
// lifetime of each trace from its last append.
func NewLogStore(client *backend.Client, opts ...Option) *LogStore {
	o := buildOptions(opts)
	return &LogStore{client: client, prefix: o.prefix, ttl: o.ttl}
}

func (s *LogStore) key(id string) string {
	return s.prefix + "log:" + id
}

// Append pushes entries in order in a single round trip.
func (s *LogStore) Append(ctx context.Context, entries ...domain.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	touched := make(map[string]bool)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal log entry: %w", err)
		}
		k := s.key(e.ConversacionID)
		pipe.RPush(ctx, k, data)
		touched[k] = true
	}
	if s.ttl > 0 {
		for k := range touched {
			pipe.Expire(ctx, k, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append log entries: %w", err)
	}
	return nil
}

// List returns the trace of one instance in append order.
func (s *LogStore) List(ctx context.Context, conversacionID string) ([]domain.LogEntry, error) {
	raw, err := s.client.LRange(ctx, s.key(conversacionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	out := make([]domain.LogEntry, 0, len(raw))
	for _, r := range raw {
		var e domain.LogEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
