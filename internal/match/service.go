// Package match implements the match coordinator: lifecycle, round
// progression, answer submission, timeout-driven resolution and scoring.
//
// Every mutation of shared match state runs as one optimistic transaction
// against the store, re-deriving its decision from the value handed to the
// transaction function. Content for the next round is fetched only after the
// resolving transaction commits and attached in a second, guarded write.
package match

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pokeguess/duel/internal/domain"
	"github.com/pokeguess/duel/internal/errors"
	"github.com/pokeguess/duel/internal/event"
	"github.com/pokeguess/duel/internal/store"
	"github.com/pokeguess/duel/internal/telemetry"
)

// ContentProvider supplies one round's worth of quiz content. A failed fetch
// yields the Unknown sentinel set, never an error.
type ContentProvider interface {
	FetchQuizSet(ctx context.Context, count int) domain.QuizSet
}

type Config struct {
	EventBus *event.Bus
	Store    *store.Store
	Content  ContentProvider
	Clock    clockwork.Clock
}

type Service struct {
	eb      *event.Bus
	store   *store.Store
	content ContentProvider
	clock   clockwork.Clock
}

func NewService(c Config) *Service {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}

	return &Service{
		eb:      c.EventBus,
		store:   c.Store,
		content: c.Content,
		clock:   c.Clock,
	}
}

type CreateMatchRequest struct {
	// Creator is the display identity filling slotA.
	Creator string
}

// CreateMatch generates a fresh match id, fetches the first round's quiz set
// and writes the initial waiting record.
func (s *Service) CreateMatch(ctx context.Context, req CreateMatchRequest) (*domain.Match, error) {
	if req.Creator == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("creator identity is required"))
	}

	m := &domain.Match{
		ID:           uuid.NewString(),
		Status:       domain.StatusWaiting,
		CurrentRound: 1,
		Quiz:         s.content.FetchQuizSet(ctx, domain.OptionCount),
		SlotA:        domain.Participant{Name: req.Creator},
	}

	if err := s.store.Write(ctx, m); err != nil {
		return nil, err
	}

	telemetry.MatchesCreated.Inc()
	s.eb.Publish(ctx, domain.EventMatchUpdated{Match: *m})

	return m, nil
}

type JoinMatchRequest struct {
	MatchID string
	Joiner  string
}

// JoinMatch fills slotB and starts round one. The waiting/empty-slot check
// runs inside the transaction, so two simultaneous joiners cannot both win.
func (s *Service) JoinMatch(ctx context.Context, req JoinMatchRequest) (*domain.Match, error) {
	if req.Joiner == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("joiner identity is required"))
	}

	m, err := s.store.Transact(ctx, req.MatchID, func(cur *domain.Match) (*domain.Match, error) {
		if cur == nil || cur.Status != domain.StatusWaiting || cur.SlotB.Name != "" {
			return nil, store.ErrAborted
		}

		now := s.clock.Now()
		cur.SlotB.Name = req.Joiner
		cur.Status = domain.StatusReady
		cur.RoundStartTime = &now
		return cur, nil
	})
	if stderrors.Is(err, store.ErrAborted) {
		return nil, errors.New(errors.CodeMatchUnavailable,
			errors.WithMessagef("match %s is not open for joining", req.MatchID))
	}
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventMatchUpdated{Match: *m})

	return m, nil
}

type SubmitAnswerRequest struct {
	MatchID string
	Slot    domain.Slot
	Answer  string
}

type SubmitAnswerResponse struct {
	Match *domain.Match
	// Applied is false when the submission was a no-op: duplicate, late, or
	// the round had already moved on.
	Applied bool
}

// SubmitAnswer records one slot's answer for the active round and, when it is
// the second answer in, resolves the round in the same transaction. Duplicate
// submissions are silently ignored.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if !req.Slot.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown slot %q", req.Slot))
	}
	if req.Answer == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("answer label is required"))
	}

	m, err := s.store.Transact(ctx, req.MatchID, func(cur *domain.Match) (*domain.Match, error) {
		if cur == nil || cur.Status != domain.StatusReady {
			return nil, store.ErrAborted
		}

		p := cur.Participant(req.Slot)
		if p.Answered() {
			return nil, store.ErrAborted
		}

		now := s.clock.Now()
		p.Answer = req.Answer
		p.Latency = now.Sub(*cur.RoundStartTime)

		if cur.BothAnswered() {
			s.resolveRound(cur, now)
		}
		return cur, nil
	})
	if stderrors.Is(err, store.ErrAborted) {
		if m == nil {
			return nil, errors.New(errors.CodeMatchUnavailable,
				errors.WithMessagef("match %s no longer exists", req.MatchID))
		}
		return &SubmitAnswerResponse{Match: m}, nil
	}
	if err != nil {
		return nil, err
	}

	return &SubmitAnswerResponse{Match: s.afterCommit(ctx, m), Applied: true}, nil
}

type ForceResolveRequest struct {
	MatchID string
	Slot    domain.Slot
	// Round is the round index the caller observed expiring. A force for a
	// round that has already advanced is a no-op.
	Round int
}

type ForceResolveResponse struct {
	Match   *domain.Match
	Applied bool
}

// ForceResolve closes the round for a slot that never answered: the empty
// answer is necessarily incorrect and the round resolves immediately with the
// other slot's state as it stands. Both sessions and the server watchdog may
// call this for the same expiry; every call past the first aborts.
func (s *Service) ForceResolve(ctx context.Context, req ForceResolveRequest) (*ForceResolveResponse, error) {
	if !req.Slot.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown slot %q", req.Slot))
	}

	m, err := s.store.Transact(ctx, req.MatchID, func(cur *domain.Match) (*domain.Match, error) {
		if cur == nil || cur.Status != domain.StatusReady || cur.CurrentRound != req.Round {
			return nil, store.ErrAborted
		}

		p := cur.Participant(req.Slot)
		if p.Answered() {
			// A genuine answer beat the timeout; the other slot's force
			// handles the expiry.
			return nil, store.ErrAborted
		}

		now := s.clock.Now()
		p.Latency = now.Sub(*cur.RoundStartTime)
		s.resolveRound(cur, now)
		return cur, nil
	})
	if stderrors.Is(err, store.ErrAborted) {
		if m == nil {
			return nil, errors.New(errors.CodeMatchUnavailable,
				errors.WithMessagef("match %s no longer exists", req.MatchID))
		}
		return &ForceResolveResponse{Match: m}, nil
	}
	if err != nil {
		return nil, err
	}

	telemetry.ForcedResolves.Inc()

	return &ForceResolveResponse{Match: s.afterCommit(ctx, m), Applied: true}, nil
}

// GetMatch is a point read, used by sessions resuming after a reconnect.
func (s *Service) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	m, err := s.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New(errors.CodeMatchUnavailable, errors.WithMessagef("match %s not found", id))
	}

	return m, nil
}

// Watch streams every future version of the match record; a nil match
// signals deletion.
func (s *Service) Watch(ctx context.Context, id string) (<-chan *domain.Match, func()) {
	return s.store.Subscribe(ctx, id)
}

// resolveRound runs inside a transaction function: score both answers, then
// either finish the match or advance to the next round's transient nextRound
// state. Content is attached after commit, never here.
func (s *Service) resolveRound(m *domain.Match, now time.Time) {
	if m.CorrectAnswer(m.SlotA.Answer) {
		m.SlotA.Score += domain.ScoreAward
	}
	if m.CorrectAnswer(m.SlotB.Answer) {
		m.SlotB.Score += domain.ScoreAward
	}

	if m.CurrentRound >= domain.MaxRounds {
		m.Status = domain.StatusFinished
		m.FinalScores = &domain.FinalScores{SlotA: m.SlotA.Score, SlotB: m.SlotB.Score}
		return
	}

	m.CurrentRound++
	m.SlotA.Answer, m.SlotB.Answer = "", ""
	m.SlotA.Latency, m.SlotB.Latency = 0, 0
	m.RoundStartTime = &now
	m.Status = domain.StatusNextRound
}

// afterCommit handles the non-transactional tail of a committed mutation:
// publish the new version, attach content when a round just advanced, and
// start the deletion countdown when the match finished.
func (s *Service) afterCommit(ctx context.Context, m *domain.Match) *domain.Match {
	s.eb.Publish(ctx, domain.EventMatchUpdated{Match: *m})

	switch m.Status {
	case domain.StatusNextRound:
		telemetry.RoundsResolved.Inc()
		m = s.attachNextRound(ctx, m)
	case domain.StatusFinished:
		telemetry.RoundsResolved.Inc()
		s.eb.Publish(ctx, domain.EventMatchFinished{Match: *m})
		s.scheduleRemoval(m.ID)
	}

	return m
}

// attachNextRound is phase two of round advancement: fetch fresh content
// outside any transaction, then attach it only if the match still sits in the
// nextRound state for the same round. A stale attach is dropped.
func (s *Service) attachNextRound(ctx context.Context, m *domain.Match) *domain.Match {
	quiz := s.content.FetchQuizSet(ctx, domain.OptionCount)
	round := m.CurrentRound

	attached, err := s.store.Transact(ctx, m.ID, func(cur *domain.Match) (*domain.Match, error) {
		if cur == nil || cur.Status != domain.StatusNextRound || cur.CurrentRound != round {
			return nil, store.ErrAborted
		}

		now := s.clock.Now()
		cur.Quiz = quiz
		cur.Status = domain.StatusReady
		cur.RoundStartTime = &now
		return cur, nil
	})
	if stderrors.Is(err, store.ErrAborted) {
		return m
	}
	if err != nil {
		slog.ErrorContext(ctx, "match: attach next round failed", "match", m.ID, "round", round, "error", err)
		return m
	}

	s.eb.Publish(ctx, domain.EventMatchUpdated{Match: *attached})

	return attached
}

// scheduleRemoval deletes the finished record after the grace interval.
// Deleting an already-deleted record is harmless.
func (s *Service) scheduleRemoval(id string) {
	go func() {
		<-s.clock.After(domain.DeleteGrace)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.store.Remove(ctx, id); err != nil {
			slog.ErrorContext(ctx, "match: remove finished match failed", "match", id, "error", err)
		}
	}()
}
