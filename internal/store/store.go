// Package store implements the shared match-record store on Redis. One JSON
// record per match id, mutated only through optimistic compare-and-update
// transactions, with change notification over pub/sub.
package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pokeguess/duel/internal/domain"
	"github.com/pokeguess/duel/internal/errors"
	"github.com/pokeguess/duel/internal/telemetry"
)

// ErrAborted is returned from a transaction function to decline the update.
// The store leaves the record untouched; callers treat it as success-as-no-op.
var ErrAborted = stderrors.New("store: transaction aborted")

// maxTxAttempts bounds optimistic retries under write conflicts. Two writers
// per match means contention is shallow; hitting this limit is an outage.
const maxTxAttempts = 100

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func New(c Config) *Store {
	return &Store{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

// Read returns the current record, or nil if the key is absent. A record that
// no longer parses is treated as absent rather than propagated.
func (s *Store) Read(ctx context.Context, id string) (*domain.Match, error) {
	b, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.CodeStoreUnavailable, errors.WithCause(fmt.Errorf("store: read %s: %w", id, err)))
	}

	return s.decode(ctx, id, b), nil
}

// Write unconditionally replaces the record and notifies subscribers.
func (s *Store) Write(ctx context.Context, m *domain.Match) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", m.ID, err)
	}

	if err := s.redis.Set(ctx, s.key(m.ID), b, 0).Err(); err != nil {
		return errors.New(errors.CodeStoreUnavailable, errors.WithCause(fmt.Errorf("store: write %s: %w", m.ID, err)))
	}

	s.notify(ctx, m.ID, b)
	return nil
}

// Remove deletes the record. Removing an absent key is harmless; subscribers
// receive a null frame either way.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return errors.New(errors.CodeStoreUnavailable, errors.WithCause(fmt.Errorf("store: remove %s: %w", id, err)))
	}

	s.notify(ctx, id, []byte("null"))
	return nil
}

// Transact applies fn atomically to the current record. fn receives nil when
// the key is absent and must return the updated record, or an error to leave
// the record untouched (ErrAborted for the intentional no-op). The update is
// retried on write conflicts until it commits or fn aborts.
//
// fn may run more than once and must not carry side effects; anything that
// talks to the network belongs after the commit.
func (s *Store) Transact(ctx context.Context, id string, fn func(m *domain.Match) (*domain.Match, error)) (*domain.Match, error) {
	key := s.key(id)

	var (
		out       *domain.Match
		committed []byte
	)

	txf := func(tx *redis.Tx) error {
		var cur *domain.Match
		b, err := tx.Get(ctx, key).Bytes()
		switch {
		case stderrors.Is(err, redis.Nil):
			cur = nil
		case err != nil:
			return fmt.Errorf("read: %w", err)
		default:
			cur = s.decode(ctx, id, b)
		}

		next, err := fn(cur)
		if err != nil {
			out = cur
			return err
		}

		committed, err = json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, committed, 0)
			return nil
		})
		out = next
		return err
	}

	for i := 0; i < maxTxAttempts; i++ {
		err := s.redis.Watch(ctx, txf, key)
		switch {
		case stderrors.Is(err, redis.TxFailedErr):
			telemetry.StoreTxConflicts.Inc()
			continue
		case stderrors.Is(err, ErrAborted):
			return out, ErrAborted
		case err != nil:
			return nil, errors.New(errors.CodeStoreUnavailable, errors.WithCause(fmt.Errorf("store: transact %s: %w", id, err)))
		}

		s.notify(ctx, id, committed)
		return out, nil
	}

	return nil, errors.New(errors.CodeStoreUnavailable,
		errors.WithMessagef("store: transact %s: gave up after %d conflicting attempts", id, maxTxAttempts))
}

// Subscribe delivers every future version of the record until cancel is
// called or ctx ends. A nil match signals deletion.
func (s *Store) Subscribe(ctx context.Context, id string) (<-chan *domain.Match, func()) {
	sub := s.redis.Subscribe(ctx, s.channel(id))
	ch := make(chan *domain.Match)

	go func() {
		defer close(ch)

		for msg := range sub.Channel() {
			m := s.decode(ctx, id, []byte(msg.Payload))

			select {
			case ch <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, func() { _ = sub.Close() }
}

func (s *Store) notify(ctx context.Context, id string, payload []byte) {
	if err := s.redis.Publish(ctx, s.channel(id), payload).Err(); err != nil {
		slog.ErrorContext(ctx, "store: notify subscribers failed", "match", id, "error", err)
	}
}

// decode parses a record, mapping corrupt payloads and null frames to nil.
func (s *Store) decode(ctx context.Context, id string, b []byte) *domain.Match {
	var m *domain.Match
	if err := json.Unmarshal(b, &m); err != nil {
		slog.ErrorContext(ctx, "store: unparseable record treated as absent", "match", id, "error", err)
		return nil
	}

	return m
}

func (s *Store) key(id string) string {
	return fmt.Sprintf("%s:match:%s", s.prefix, id)
}

func (s *Store) channel(id string) string {
	return fmt.Sprintf("%s:match:%s:changes", s.prefix, id)
}
