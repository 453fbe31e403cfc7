// Package history archives finished matches to Postgres. The archive is
// derived state: the live match record exists only in the shared store, and a
// failed insert never blocks match progression.
package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pokeguess/duel/internal/domain"
	"github.com/pokeguess/duel/internal/event"
)

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{db: c.DB}

	c.EventBus.Subscribe(domain.EventNameMatchFinished, func(ctx context.Context, e event.Event) error {
		return s.RecordResult(ctx, e.(domain.EventMatchFinished).Match)
	})

	return s
}

// RecordResult inserts one finished match. The match.finished event fires
// once per match, the conflict clause just absorbs redelivery.
func (s *Service) RecordResult(ctx context.Context, m domain.Match) error {
	if m.FinalScores == nil {
		return fmt.Errorf("history: match %s finished without final scores", m.ID)
	}

	const stmt = `
INSERT INTO match_results (match_id, slot_a, slot_b, score_a, score_b, finish_time)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (match_id) DO NOTHING;`

	if _, err := s.db.Exec(ctx, stmt, m.ID, m.SlotA.Name, m.SlotB.Name, m.FinalScores.SlotA, m.FinalScores.SlotB); err != nil {
		return fmt.Errorf("history: insert result for %s: %w", m.ID, err)
	}

	return nil
}

type ListResultsRequest struct {
	Limit int
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListResults returns the most recently finished matches.
func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) ([]domain.MatchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	const stmt = `
SELECT match_id, slot_a, slot_b, score_a, score_b, finish_time
FROM match_results
ORDER BY finish_time DESC
LIMIT $1;`

	rows, err := s.db.Query(ctx, stmt, limit)
	if err != nil {
		return nil, err
	}

	results, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.MatchResult, error) {
		var res domain.MatchResult
		if err := r.Scan(&res.MatchID, &res.SlotA, &res.SlotB, &res.ScoreA, &res.ScoreB, &res.FinishTime); err != nil {
			return domain.MatchResult{}, err
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}
