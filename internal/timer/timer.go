// Package timer derives round deadlines from the authoritative round start
// timestamp and force-resolves rounds whose budget ran out.
package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pokeguess/duel/internal/domain"
	"github.com/pokeguess/duel/internal/errors"
	"github.com/pokeguess/duel/internal/event"
	"github.com/pokeguess/duel/internal/match"
)

// Remaining returns how much of the round budget is left. Zero for matches
// with no live round.
func Remaining(m *domain.Match, now time.Time) time.Duration {
	if m == nil || m.Status != domain.StatusReady || m.RoundStartTime == nil {
		return 0
	}

	r := domain.RoundDuration - now.Sub(*m.RoundStartTime)
	if r < 0 {
		return 0
	}
	return r
}

// defaultSlack is how long past the deadline the watchdog waits before
// forcing, leaving the sessions' own expiry calls room to land first.
const defaultSlack = 2 * time.Second

// Resolver is the slice of the coordinator the watchdog drives.
type Resolver interface {
	ForceResolve(ctx context.Context, req match.ForceResolveRequest) (*match.ForceResolveResponse, error)
}

type Config struct {
	EventBus *event.Bus
	Resolver Resolver
	Clock    clockwork.Clock
	Slack    time.Duration
}

// Watchdog arms one timer per live round and force-resolves unanswered slots
// at expiry. It is a safety net behind the sessions' own timers: a match both
// participants abandoned still terminates. Double-firing against a round the
// sessions already resolved is harmless, the coordinator's transaction aborts.
type Watchdog struct {
	resolver Resolver
	clock    clockwork.Clock
	slack    time.Duration

	mu     sync.Mutex
	timers map[string]clockwork.Timer
	rounds map[string]int
}

func NewWatchdog(c Config) *Watchdog {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Slack == 0 {
		c.Slack = defaultSlack
	}

	w := &Watchdog{
		resolver: c.Resolver,
		clock:    c.Clock,
		slack:    c.Slack,
		timers:   make(map[string]clockwork.Timer),
		rounds:   make(map[string]int),
	}

	c.EventBus.Subscribe(domain.EventNameMatchUpdated, func(ctx context.Context, e event.Event) error {
		w.observe(e.(domain.EventMatchUpdated).Match)
		return nil
	})

	return w
}

// observe re-arms the match's timer from the record version just published.
func (w *Watchdog) observe(m domain.Match) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if m.Status == domain.StatusFinished {
		w.disarmLocked(m.ID)
		return
	}
	if m.Status != domain.StatusReady || m.RoundStartTime == nil {
		return
	}

	// Already armed for this round; re-arming would just reset the deadline.
	if r, ok := w.rounds[m.ID]; ok && r == m.CurrentRound {
		return
	}

	w.disarmLocked(m.ID)

	d := m.RoundStartTime.Add(domain.RoundDuration + w.slack).Sub(w.clock.Now())
	if d < 0 {
		d = 0
	}

	id, round := m.ID, m.CurrentRound
	w.rounds[id] = round
	w.timers[id] = w.clock.AfterFunc(d, func() {
		w.fire(id, round)
	})
}

// fire forces resolution for whichever slot never answered. The first applied
// force resolves the whole round, so the second slot is only tried when the
// first turned out to have answered in time.
func (w *Watchdog) fire(id string, round int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, slot := range []domain.Slot{domain.SlotA, domain.SlotB} {
		resp, err := w.resolver.ForceResolve(ctx, match.ForceResolveRequest{
			MatchID: id,
			Slot:    slot,
			Round:   round,
		})
		if err != nil {
			if !errors.Is(err, errors.CodeMatchUnavailable) {
				slog.ErrorContext(ctx, "timer: force resolve failed", "match", id, "round", round, "error", err)
			}
			break
		}
		if resp.Applied {
			slog.InfoContext(ctx, "timer: round force-resolved", "match", id, "round", round, "slot", slot)
			break
		}
	}

	w.mu.Lock()
	// The resolve above may already have armed the next round's timer.
	if w.rounds[id] == round {
		delete(w.timers, id)
		delete(w.rounds, id)
	}
	w.mu.Unlock()
}

func (w *Watchdog) disarmLocked(id string) {
	if t, ok := w.timers[id]; ok {
		t.Stop()
		delete(w.timers, id)
		delete(w.rounds, id)
	}
}

// Stop disarms every timer. In-flight fires finish on their own.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id := range w.timers {
		t := w.timers[id]
		t.Stop()
		delete(w.timers, id)
		delete(w.rounds, id)
	}
}
