package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/relevar/relevar/internal/domain"
)

// Compile-time check: Redis implements Store.
var _ Store = (*Redis)(nil)

// DefaultKeyPrefix namespaces every key the Redis backend writes.
const DefaultKeyPrefix = "relevar:"

// scanChunk bounds how many hashes one DoMulti round-trip fetches.
const scanChunk = 100

// RedisConfig holds connection parameters for the Redis backend.
type RedisConfig struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Redis stores one hash per item plus membership sets per tenant scope, so
// scoped scans never walk the whole keyspace.
type Redis struct {
	client rueidis.Client
	prefix string
}

// NewRedis creates a Redis-backed store via rueidis.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultKeyPrefix
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Redis{client: client, prefix: cfg.Prefix}, nil
}

func (s *Redis) itemKey(id string) string     { return s.prefix + "item:" + id }
func (s *Redis) scopeKey(sc string) string    { return s.prefix + "scope:" + sc }
func (s *Redis) allKey() string               { return s.prefix + "items" }
func (s *Redis) b() rueidis.Builder           { return s.client.B() }
func (s *Redis) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Redis) Put(ctx context.Context, it *domain.Item) error {
	fields, err := encodeFields(it)
	if err != nil {
		return &Error{Op: OpPut, Err: err}
	}

	hset := s.b().Hset().Key(s.itemKey(it.ID)).FieldValue()
	for k, v := range fields {
		hset = hset.FieldValue(k, v)
	}
	cmds := []rueidis.Completed{
		hset.Build(),
		s.b().Sadd().Key(s.scopeKey(it.TenantScope)).Member(it.ID).Build(),
		s.b().Sadd().Key(s.allKey()).Member(it.ID).Build(),
	}
	for _, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return &Error{Op: OpPut, Err: fmt.Errorf("item %s: %w", it.ID, err)}
		}
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, id string) (*domain.Item, error) {
	m, err := s.do(ctx, s.b().Hgetall().Key(s.itemKey(id)).Build()).AsStrMap()
	if err != nil {
		return nil, &Error{Op: OpGet, Err: err}
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	it, err := decodeFields(id, m)
	if err != nil {
		return nil, &Error{Op: OpGet, Err: err}
	}
	return it, nil
}

func (s *Redis) GetMulti(ctx context.Context, ids []string) ([]*domain.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(ids))
	for i, id := range ids {
		cmds[i] = s.b().Hgetall().Key(s.itemKey(id)).Build()
	}

	out := make([]*domain.Item, len(ids))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, &Error{Op: OpGet, Err: fmt.Errorf("item %s: %w", ids[i], err)}
		}
		if len(m) == 0 {
			continue
		}
		it, err := decodeFields(ids[i], m)
		if err != nil {
			return nil, &Error{Op: OpGet, Err: err}
		}
		out[i] = it
	}
	return out, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	it, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	cmds := []rueidis.Completed{
		s.b().Del().Key(s.itemKey(id)).Build(),
		s.b().Srem().Key(s.scopeKey(it.TenantScope)).Member(id).Build(),
		s.b().Srem().Key(s.allKey()).Member(id).Build(),
	}
	for _, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return &Error{Op: OpDelete, Err: fmt.Errorf("item %s: %w", id, err)}
		}
	}
	return nil
}

func (s *Redis) Scan(ctx context.Context, scope string, fn func(it *domain.Item) error) error {
	key := s.allKey()
	if scope != "" {
		key = s.scopeKey(scope)
	}
	ids, err := s.do(ctx, s.b().Smembers().Key(key).Build()).AsStrSlice()
	if err != nil {
		return &Error{Op: OpScan, Err: err}
	}

	for start := 0; start < len(ids); start += scanChunk {
		end := start + scanChunk
		if end > len(ids) {
			end = len(ids)
		}
		items, err := s.GetMulti(ctx, ids[start:end])
		if err != nil {
			return &Error{Op: OpScan, Err: err}
		}
		for _, it := range items {
			if it == nil {
				continue
			}
			if err := fn(it); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Redis) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return &Error{Op: OpPing, Err: err}
	}
	return nil
}

// WaitForReady polls Ping until the backend responds or timeout expires.
func (s *Redis) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for store: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

func (s *Redis) Close() error {
	s.client.Close()
	return nil
}
