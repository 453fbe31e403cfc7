package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/pokeguess/duel/internal/domain"
	"github.com/pokeguess/duel/internal/store"
)

func makeStore(t *testing.T) *store.Store {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(context.Background()).Err(), "should be able to ping redis")

	return store.New(store.Config{Redis: rc, Prefix: "test"})
}

func sampleMatch(id string) *domain.Match {
	return &domain.Match{
		ID:           id,
		Status:       domain.StatusWaiting,
		CurrentRound: 1,
		SlotA:        domain.Participant{Name: "ash"},
		Quiz: domain.QuizSet{
			Correct: domain.QuizItem{ID: 25, Label: "pikachu"},
			Options: []string{"pikachu", "bulbasaur", "charmander", "squirtle"},
		},
	}
}

func TestStore_ReadAbsent(t *testing.T) {
	s := makeStore(t)

	m, err := s.Read(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestStore_WriteRead(t *testing.T) {
	s := makeStore(t)
	want := sampleMatch("m1")

	require.NoError(t, s.Write(context.Background(), want))

	got, err := s.Read(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestStore_Remove(t *testing.T) {
	s := makeStore(t)
	require.NoError(t, s.Write(context.Background(), sampleMatch("m1")))

	require.NoError(t, s.Remove(context.Background(), "m1"))

	got, err := s.Read(context.Background(), "m1")
	require.NoError(t, err)
	require.Nil(t, got)

	// Removing again is harmless.
	require.NoError(t, s.Remove(context.Background(), "m1"))
}

func TestStore_Transact(t *testing.T) {
	tests := map[string]struct {
		seed   *domain.Match
		fn     func(m *domain.Match) (*domain.Match, error)
		assert func(t *testing.T, s *store.Store, out *domain.Match, err error)
	}{
		"commits the returned record": {
			seed: sampleMatch("m1"),
			fn: func(m *domain.Match) (*domain.Match, error) {
				m.SlotA.Score = 100
				return m, nil
			},
			assert: func(t *testing.T, s *store.Store, out *domain.Match, err error) {
				require.NoError(t, err)
				require.Equal(t, 100, out.SlotA.Score)

				got, readErr := s.Read(context.Background(), "m1")
				require.NoError(t, readErr)
				require.Equal(t, out, got)
			},
		},

		"abort leaves the record untouched and returns the current state": {
			seed: sampleMatch("m1"),
			fn: func(m *domain.Match) (*domain.Match, error) {
				return nil, store.ErrAborted
			},
			assert: func(t *testing.T, s *store.Store, out *domain.Match, err error) {
				require.ErrorIs(t, err, store.ErrAborted)
				require.Equal(t, sampleMatch("m1"), out)

				got, readErr := s.Read(context.Background(), "m1")
				require.NoError(t, readErr)
				require.Equal(t, sampleMatch("m1"), got)
			},
		},

		"fn sees nil for an absent key": {
			fn: func(m *domain.Match) (*domain.Match, error) {
				if m != nil {
					return m, nil
				}
				return nil, store.ErrAborted
			},
			assert: func(t *testing.T, s *store.Store, out *domain.Match, err error) {
				require.ErrorIs(t, err, store.ErrAborted)
				require.Nil(t, out)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			s := makeStore(t)
			if tt.seed != nil {
				require.NoError(t, s.Write(context.Background(), tt.seed))
			}

			out, err := s.Transact(context.Background(), "m1", tt.fn)
			tt.assert(t, s, out, err)
		})
	}
}

func TestStore_Transact_NoLostUpdates(t *testing.T) {
	s := makeStore(t)
	require.NoError(t, s.Write(context.Background(), sampleMatch("m1")))

	const writers = 20

	var eg errgroup.Group
	for i := 0; i < writers; i++ {
		eg.Go(func() error {
			_, err := s.Transact(context.Background(), "m1", func(m *domain.Match) (*domain.Match, error) {
				m.SlotA.Score++
				return m, nil
			})
			return err
		})
	}
	require.NoError(t, eg.Wait())

	got, err := s.Read(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, writers, got.SlotA.Score, "every increment must survive concurrent commits")
}

func TestStore_Subscribe(t *testing.T) {
	s := makeStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, stop := s.Subscribe(ctx, "m1")
	defer stop()

	// go-redis confirms subscriptions asynchronously; give it a beat so the
	// first write is not published before the subscriber is registered.
	time.Sleep(50 * time.Millisecond)

	want := sampleMatch("m1")
	require.NoError(t, s.Write(ctx, want))

	select {
	case got := <-ch:
		require.Equal(t, want, got)
	case <-ctx.Done():
		t.Fatal("no update delivered")
	}

	require.NoError(t, s.Remove(ctx, "m1"))

	select {
	case got := <-ch:
		require.Nil(t, got, "deletion is delivered as a nil match")
	case <-ctx.Done():
		t.Fatal("no deletion frame delivered")
	}
}

func TestStore_ReadCorruptRecord(t *testing.T) {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	s := store.New(store.Config{Redis: rc, Prefix: "test"})

	require.NoError(t, rc.Set(context.Background(), "test:match:m1", "{not json", 0).Err())

	got, err := s.Read(context.Background(), "m1")
	require.NoError(t, err)
	require.Nil(t, got, "a record that no longer parses is treated as absent")
}
