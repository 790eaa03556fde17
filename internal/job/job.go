// Package job owns the download pipeline: the per-request job state
// machine, the on-disk workspace lifecycle, and the orchestrator that
// drives a URL from validation through fetch, delivery and cleanup.
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is a job's position in the download pipeline.
type State int

const (
	StateValidating State = iota
	StateFetching
	StateReady
	StateDelivered
	StateFailed
	StateCleaned
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	case StateCleaned:
		return "cleaned"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// legalTransitions maps each state to the states it may advance to.
// Failure is reachable from every live state; Cleaned is terminal.
var legalTransitions = map[State][]State{
	StateValidating: {StateFetching, StateFailed},
	StateFetching:   {StateReady, StateFailed},
	StateReady:      {StateDelivered, StateFailed},
	StateDelivered:  {StateCleaned},
	StateFailed:     {StateCleaned},
}

// CanTransition reports whether a job may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, t := range legalTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Job is one download request moving through the pipeline.
type Job struct {
	ID        string
	ChatID    int64
	UserID    int64
	URL       string
	Dir       string // workspace directory, set once created
	Artifact  string // fetched media path, set once known
	State     State
	CreatedAt time.Time
}

// New creates a job in the validating state.
func New(chatID, userID int64, url string) *Job {
	return &Job{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		UserID:    userID,
		URL:       url,
		State:     StateValidating,
		CreatedAt: time.Now().UTC(),
	}
}

// Advance moves the job to next, rejecting illegal transitions.
func (j *Job) Advance(next State) error {
	if !j.State.CanTransition(next) {
		return fmt.Errorf("job: illegal transition %s -> %s", j.State, next)
	}
	j.State = next
	return nil
}
