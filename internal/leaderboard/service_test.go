package leaderboard_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pokeguess/duel/internal/domain"
	"github.com/pokeguess/duel/internal/event"
	"github.com/pokeguess/duel/internal/leaderboard"
)

func makeService(t *testing.T) *leaderboard.Service {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(context.Background()).Err(), "should be able to ping redis")

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	return leaderboard.NewService(leaderboard.Config{EventBus: eb, Redis: rc, Prefix: "test"})
}

func finished(id, a, b string, scoreA, scoreB int) domain.Match {
	return domain.Match{
		ID:     id,
		Status: domain.StatusFinished,
		SlotA:  domain.Participant{Name: a, Score: scoreA},
		SlotB:  domain.Participant{Name: b, Score: scoreB},
		FinalScores: &domain.FinalScores{
			SlotA: scoreA,
			SlotB: scoreB,
		},
	}
}

func TestService_RecordFinish(t *testing.T) {
	tests := map[string]struct {
		matches []domain.Match
		want    []domain.RankingEntry
	}{
		"winner gets one win": {
			matches: []domain.Match{
				finished("m1", "ash", "gary", 500, 300),
			},
			want: []domain.RankingEntry{
				{Player: "ash", Wins: 1},
			},
		},

		"wins accumulate and rank descending": {
			matches: []domain.Match{
				finished("m1", "ash", "gary", 500, 300),
				finished("m2", "gary", "ash", 400, 200),
				finished("m3", "gary", "misty", 300, 100),
			},
			want: []domain.RankingEntry{
				{Player: "gary", Wins: 2},
				{Player: "ash", Wins: 1},
			},
		},

		"a draw credits nobody": {
			matches: []domain.Match{
				finished("m1", "ash", "gary", 300, 300),
			},
			want: []domain.RankingEntry{},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			s := makeService(t)

			for _, m := range tt.matches {
				require.NoError(t, s.RecordFinish(context.Background(), m))
			}

			got, err := s.GetRankings(context.Background(), leaderboard.GetRankingsRequest{})
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestService_RecordFinish_RequiresFinalScores(t *testing.T) {
	s := makeService(t)

	err := s.RecordFinish(context.Background(), domain.Match{ID: "m1", Status: domain.StatusFinished})
	require.Error(t, err)
}

func TestService_GetRankings_Limit(t *testing.T) {
	s := makeService(t)

	require.NoError(t, s.RecordFinish(context.Background(), finished("m1", "ash", "gary", 500, 0)))
	require.NoError(t, s.RecordFinish(context.Background(), finished("m2", "misty", "gary", 500, 0)))

	got, err := s.GetRankings(context.Background(), leaderboard.GetRankingsRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
