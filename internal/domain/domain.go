package domain

import (
	"strings"
	"time"
)

const (
	// MaxRounds is the fixed number of rounds in a match.
	MaxRounds = 5

	// RoundDuration is the wall-clock budget a round stays open for answers.
	RoundDuration = 30 * time.Second

	// DeleteGrace is how long a finished match stays readable before the
	// coordinator removes its record.
	DeleteGrace = 10 * time.Second

	// ScoreAward is added to a slot's cumulative score for a correct answer.
	ScoreAward = 100

	// OptionCount is the number of selectable labels presented each round.
	OptionCount = 4
)

// Status is the durable state of a match. StatusNextRound only exists between
// the transaction that resolves a round and the write that attaches the next
// round's quiz set; clients never need to render it distinctly.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusReady     Status = "ready"
	StatusNextRound Status = "nextRound"
	StatusFinished  Status = "finished"
)

// Slot is one of the two fixed participant positions in a match.
type Slot string

const (
	SlotA Slot = "slotA"
	SlotB Slot = "slotB"
)

func (s Slot) Valid() bool {
	return s == SlotA || s == SlotB
}

func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// QuizItem is one item returned by the content provider.
type QuizItem struct {
	ID       int    `json:"id"`
	Label    string `json:"label"`
	MediaRef string `json:"mediaRef"`
}

// QuizSet is the content of one round: the correct item plus every selectable
// label, the correct one included.
type QuizSet struct {
	Correct QuizItem `json:"correct"`
	Options []string `json:"options"`
}

// Unavailable reports whether this set is the degraded sentinel produced when
// the content provider failed. Clients show an error and the round still
// resolves normally, nobody can score.
func (q QuizSet) Unavailable() bool {
	return len(q.Options) == 0
}

// UnknownQuizSet is the sentinel set used when content could not be fetched.
func UnknownQuizSet() QuizSet {
	return QuizSet{Correct: QuizItem{Label: "Unknown"}}
}

// Participant is one slot's state. An empty Answer means "not answered this
// round"; Name is set once at join time and never changes.
type Participant struct {
	Name    string        `json:"name"`
	Answer  string        `json:"answer"`
	Score   int           `json:"score"`
	Latency time.Duration `json:"latency"`
}

func (p Participant) Answered() bool {
	return p.Answer != ""
}

// FinalScores is the immutable snapshot taken when a match finishes.
type FinalScores struct {
	SlotA int `json:"slotA"`
	SlotB int `json:"slotB"`
}

// Match is the sole aggregate root, one record per match id.
type Match struct {
	ID             string       `json:"id"`
	Status         Status       `json:"status"`
	CurrentRound   int          `json:"currentRound"`
	RoundStartTime *time.Time   `json:"roundStartTime"`
	Quiz           QuizSet      `json:"quiz"`
	SlotA          Participant  `json:"slotA"`
	SlotB          Participant  `json:"slotB"`
	FinalScores    *FinalScores `json:"finalScores,omitempty"`
}

// Participant returns a pointer into the match for the given slot.
func (m *Match) Participant(s Slot) *Participant {
	if s == SlotA {
		return &m.SlotA
	}
	return &m.SlotB
}

// BothAnswered reports whether the active round holds two answers and is
// therefore due for resolution.
func (m *Match) BothAnswered() bool {
	return m.SlotA.Answered() && m.SlotB.Answered()
}

// CorrectAnswer reports whether the label matches the round's correct item,
// case-insensitively. The empty not-answered sentinel never matches.
func (m *Match) CorrectAnswer(label string) bool {
	if label == "" {
		return false
	}
	return strings.EqualFold(label, m.Quiz.Correct.Label)
}

// MatchResult is one archived row of a finished match.
type MatchResult struct {
	MatchID    string
	SlotA      string
	SlotB      string
	ScoreA     int
	ScoreB     int
	FinishTime time.Time
}

// Winner returns the winning participant's name, or "" on a draw.
func (r MatchResult) Winner() string {
	switch {
	case r.ScoreA > r.ScoreB:
		return r.SlotA
	case r.ScoreB > r.ScoreA:
		return r.SlotB
	default:
		return ""
	}
}

// RankingEntry is one player's position in the career-wins ranking.
type RankingEntry struct {
	Player string
	Wins   float64
}
