// Package redis provides a Redis-backed OrderStore so a generated order set
// survives supervisor restarts and is visible to companion tooling.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/exolab/vrsupervisor/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.OrderStore using Redis.
//
// Layout per order: the immutable definition lives as a JSON blob, the usage
// counter as its own integer key so MarkUsed can rely on INCR atomicity, and
// the last-used stamp as a timestamp key. An ID set indexes the current
// order set.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix for all order data.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "vrsupervisor:orders:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) idsKey() string                 { return s.prefix + "ids" }
func (s *Store) defKey(orderID string) string   { return s.prefix + "def:" + orderID }
func (s *Store) usageKey(orderID string) string { return s.prefix + "usage:" + orderID }
func (s *Store) usedKey(orderID string) string  { return s.prefix + "lastused:" + orderID }

// List returns all orders sorted by ID.
func (s *Store) List(ctx context.Context) ([]domain.Order, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list order ids: %w", err)
	}
	sort.Strings(ids)

	result := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		order, err := s.Get(ctx, id)
		if err != nil {
			// A ReplaceSet may have raced us; skip ids that vanished.
			if err == domain.ErrOrderNotFound {
				continue
			}
			return nil, err
		}
		result = append(result, order)
	}
	return result, nil
}

// Get returns one order with its usage bookkeeping.
func (s *Store) Get(ctx context.Context, orderID string) (domain.Order, error) {
	raw, err := s.client.Get(ctx, s.defKey(orderID)).Result()
	if err != nil {
		if err == backend.Nil {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}

	var order domain.Order
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return domain.Order{}, fmt.Errorf("failed to unmarshal order %s: %w", orderID, err)
	}

	usage, err := s.client.Get(ctx, s.usageKey(orderID)).Int()
	if err != nil && err != backend.Nil {
		return domain.Order{}, fmt.Errorf("failed to get usage for %s: %w", orderID, err)
	}
	order.UsageCount = usage

	if stamp, err := s.client.Get(ctx, s.usedKey(orderID)).Result(); err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, stamp); perr == nil {
			order.LastUsed = &t
		}
	} else if err != backend.Nil {
		return domain.Order{}, fmt.Errorf("failed to get last-used for %s: %w", orderID, err)
	}

	return order, nil
}

// MarkUsed increments the usage counter via INCR, so concurrent supervisors
// cannot lose increments, and stamps the last use.
func (s *Store) MarkUsed(ctx context.Context, orderID string) (domain.Order, error) {
	exists, err := s.client.Exists(ctx, s.defKey(orderID)).Result()
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to check order %s: %w", orderID, err)
	}
	if exists == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	now := time.Now().UTC()
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, s.usageKey(orderID))
	pipe.Set(ctx, s.usedKey(orderID), now.Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("failed to mark order %s used: %w", orderID, err)
	}

	return s.Get(ctx, orderID)
}

// ResetAllUsage zeroes every counter and clears the last-used stamps.
func (s *Store) ResetAllUsage(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list order ids: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Set(ctx, s.usageKey(id), 0, 0)
		pipe.Del(ctx, s.usedKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset usage counters: %w", err)
	}
	return nil
}

// ReplaceSet swaps the entire order set inside one MULTI/EXEC transaction so
// readers never observe a partially-replaced set.
func (s *Store) ReplaceSet(ctx context.Context, orders []domain.Order) error {
	oldIDs, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list previous order ids: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range oldIDs {
		pipe.Del(ctx, s.defKey(id), s.usageKey(id), s.usedKey(id))
	}
	pipe.Del(ctx, s.idsKey())

	for _, order := range orders {
		def := order
		def.UsageCount = 0
		def.LastUsed = nil
		data, err := json.Marshal(def)
		if err != nil {
			return fmt.Errorf("failed to marshal order %s: %w", order.ID, err)
		}
		pipe.Set(ctx, s.defKey(order.ID), data, 0)
		pipe.Set(ctx, s.usageKey(order.ID), 0, 0)
		pipe.SAdd(ctx, s.idsKey(), order.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to replace order set: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
