package api

import (
	"time"

	"github.com/pokeguess/duel/internal/domain"
)

type matchResponse struct {
	Match   *domain.Match `json:"match"`
	Applied bool          `json:"applied,omitempty"`
	// RemainingMS is the live round's unspent budget, only on point reads.
	RemainingMS int64 `json:"remainingMs,omitempty"`
}

type matchResult struct {
	MatchID    string    `json:"matchId"`
	SlotA      string    `json:"slotA"`
	SlotB      string    `json:"slotB"`
	ScoreA     int       `json:"scoreA"`
	ScoreB     int       `json:"scoreB"`
	Winner     string    `json:"winner,omitempty"`
	FinishTime time.Time `json:"finishTime"`
}

type resultsResponse struct {
	Results []matchResult `json:"results"`
}

type rankingEntry struct {
	Player string `json:"player"`
	Wins   int    `json:"wins"`
}

type rankingsResponse struct {
	Rankings []rankingEntry `json:"rankings"`
}
