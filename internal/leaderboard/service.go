// Package leaderboard keeps a career-wins ranking across matches in a Redis
// sorted set. A drawn match credits nobody.
package leaderboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pokeguess/duel/internal/domain"
	"github.com/pokeguess/duel/internal/errors"
	"github.com/pokeguess/duel/internal/event"
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	c.EventBus.Subscribe(domain.EventNameMatchFinished, func(ctx context.Context, e event.Event) error {
		return s.RecordFinish(ctx, e.(domain.EventMatchFinished).Match)
	})

	return s
}

// RecordFinish credits the winning participant with one career win.
func (s *Service) RecordFinish(ctx context.Context, m domain.Match) error {
	if m.FinalScores == nil {
		return fmt.Errorf("leaderboard: match %s finished without final scores", m.ID)
	}

	result := domain.MatchResult{
		SlotA:  m.SlotA.Name,
		SlotB:  m.SlotB.Name,
		ScoreA: m.FinalScores.SlotA,
		ScoreB: m.FinalScores.SlotB,
	}

	winner := result.Winner()
	if winner == "" {
		return nil
	}

	if err := s.redis.ZIncrBy(ctx, s.winsKey(), 1, winner).Err(); err != nil {
		return fmt.Errorf("leaderboard: record win for %q: %w", winner, err)
	}

	return nil
}

type GetRankingsRequest struct {
	Limit int
}

const defaultRankingsLimit = 10

// GetRankings returns the top players by career wins, descending.
func (s *Service) GetRankings(ctx context.Context, req GetRankingsRequest) ([]domain.RankingEntry, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultRankingsLimit
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.winsKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, errors.New(errors.CodeStoreUnavailable,
			errors.WithCause(fmt.Errorf("leaderboard: get rankings: %w", err)))
	}

	entries := make([]domain.RankingEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.RankingEntry{
			Player: z.Member.(string),
			Wins:   z.Score,
		})
	}

	return entries, nil
}

func (s *Service) winsKey() string {
	return fmt.Sprintf("%s:wins", s.prefix)
}
