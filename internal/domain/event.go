package domain

const (
	EventNameMatchUpdated  = "match.updated"
	EventNameMatchFinished = "match.finished"
)

// EventMatchUpdated is published after every committed change to a match
// record, including the one that finishes it.
type EventMatchUpdated struct {
	Match Match
}

func (EventMatchUpdated) Name() string { return EventNameMatchUpdated }

// EventMatchFinished is published exactly once per match, when the final
// round resolves.
type EventMatchFinished struct {
	Match Match
}

func (EventMatchFinished) Name() string { return EventNameMatchFinished }
