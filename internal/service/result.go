package service

import (
	"encoding/json"
	"time"

	"github.com/resident-x/go-aims/internal/domain"
)

// State is a step of a bridge run.
type State int

const (
	StateIdle State = iota
	StateFrameAcquired
	StateParsed
	StateDecoded
	StatePublishing
	StateDone
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFrameAcquired:
		return "frame_acquired"
	case StateParsed:
		return "parsed"
	case StateDecoded:
		return "decoded"
	case StatePublishing:
		return "publishing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Outcome summarizes how a run ended.
type Outcome string

const (
	// OutcomeSuccess means every message was handed to the bus.
	OutcomeSuccess Outcome = "success"
	// OutcomeAborted means no frame was obtained and nothing was published.
	OutcomeAborted Outcome = "aborted"
	// OutcomePartial means the run finished but some publishes failed.
	OutcomePartial Outcome = "partial"
)

// ExitCode maps the outcome to the process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomePartial:
		return 2
	default:
		return 1
	}
}

// Reading is the value of one metric in a run.
type Reading struct {
	Name       string       `json:"name"`
	Component  string       `json:"component"`
	StateTopic string       `json:"state_topic"`
	Value      domain.Value `json:"value"`
	Payload    string       `json:"payload"`
}

// RunResult reports one bridge run.
type RunResult struct {
	RunID     string                `json:"run_id"`
	State     State                 `json:"state"`
	Outcome   Outcome               `json:"outcome"`
	Err       error                 `json:"-"`
	Error     string                `json:"error,omitempty"`
	Raw       string                `json:"raw,omitempty"`
	Frame     *domain.InverterFrame `json:"frame,omitempty"`
	Flags     *domain.StatusFlags   `json:"flags,omitempty"`
	Readings  []Reading             `json:"readings,omitempty"`
	StartedAt time.Time             `json:"started_at"`
	Duration  time.Duration         `json:"duration_ns"`

	// Discovery documents sent, skipped as already delivered, and failed.
	DiscoverySent    int `json:"discovery_sent"`
	DiscoverySkipped int `json:"discovery_skipped"`
	DiscoveryFailed  int `json:"discovery_failed"`

	// State messages sent and failed.
	StateSent   int `json:"state_sent"`
	StateFailed int `json:"state_failed"`
}

// Failures returns the number of failed publishes.
func (r *RunResult) Failures() int {
	return r.DiscoveryFailed + r.StateFailed
}

// Published returns the number of messages handed to the bus.
func (r *RunResult) Published() int {
	return r.DiscoverySent + r.StateSent
}
