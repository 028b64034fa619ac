package watcher

import (
	"time"

	"github.com/Zuo-Peng/slopwatch/internal/classifier"
	"github.com/Zuo-Peng/slopwatch/internal/ledger"
)

type State int32

const (
	Idle State = iota
	Monitoring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Monitoring:
		return "monitoring"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventPass EventKind = iota
	EventSkipped
	EventClassified
	EventAnnotateFailed
	EventRestored
	EventState
	EventCredential
)

func (k EventKind) String() string {
	switch k {
	case EventPass:
		return "pass"
	case EventSkipped:
		return "skipped"
	case EventClassified:
		return "classified"
	case EventAnnotateFailed:
		return "annotate-failed"
	case EventRestored:
		return "restored"
	case EventState:
		return "state"
	case EventCredential:
		return "credential"
	default:
		return "unknown"
	}
}

// Skip reasons.
const (
	ReasonNoText       = "no_text"
	ReasonTooShort     = "too_short"
	ReasonNoCredential = "no_credential"
)

// Event reports one thing the watcher did. Fields not relevant to Kind are zero.
type Event struct {
	Kind    EventKind
	Time    time.Time
	PostID  ledger.PostID
	Text    string
	Verdict classifier.Verdict
	Reason  string

	// EventPass
	NewPosts   int
	LedgerSize int
	InFlight   int

	// EventState
	State State
}
