package domain

import (
	"fmt"
	"time"
)

// Sync defaults.
const (
	DefaultSyncRetries      = 5
	DefaultSyncInitialDelay = 30 * time.Second
	DefaultSyncStepTimeout  = 2 * time.Minute
	DefaultSyncWorkers      = 4
)

// SyncParams is the input of one sync run, derived from a push event.
type SyncParams struct {
	ChangedFiles []string `json:"changedFiles"`
	DeletedFiles []string `json:"deletedFiles"`
	CommitSHA    string   `json:"commitSha"`
}

// Validate rejects params that cannot be processed.
func (p SyncParams) Validate() error {
	if p.CommitSHA == "" {
		return &ValidationError{Field: "commitSha", Reason: "required"}
	}
	return nil
}

// IsEmpty reports whether the run has no files.
func (p SyncParams) IsEmpty() bool {
	return len(p.ChangedFiles) == 0 && len(p.DeletedFiles) == 0
}

// StepOutcome is the result of processing one file.
type StepOutcome int

const (
	OutcomeStored StepOutcome = iota
	OutcomeDeleted
	OutcomeSkipped
	OutcomeFailedTerminal
	OutcomeFailedRetryable
)

func (o StepOutcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailedTerminal:
		return "failed-terminal"
	case OutcomeFailedRetryable:
		return "failed-retryable"
	default:
		return fmt.Sprintf("StepOutcome(%d)", int(o))
	}
}

// Failed reports whether the outcome is a failure.
func (o StepOutcome) Failed() bool {
	return o == OutcomeFailedTerminal || o == OutcomeFailedRetryable
}

// StepRecord is the final state of one file in a sync run.
type StepRecord struct {
	FilePath  string
	CommitSHA string
	Outcome   StepOutcome
	Attempts  int
	Err       error
}

// SyncReport summarises a sync run.
type SyncReport struct {
	CommitSHA string
	Steps     []StepRecord
	Duration  time.Duration
}

// Count returns how many steps ended with outcome.
func (r *SyncReport) Count(outcome StepOutcome) int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failures returns the failed steps.
func (r *SyncReport) Failures() []StepRecord {
	var out []StepRecord
	for _, s := range r.Steps {
		if s.Outcome.Failed() {
			out = append(out, s)
		}
	}
	return out
}

// Step returns the record for path.
func (r *SyncReport) Step(path string) (StepRecord, bool) {
	for _, s := range r.Steps {
		if s.FilePath == path {
			return s, true
		}
	}
	return StepRecord{}, false
}

// Summary formats the per-outcome counts.
func (r *SyncReport) Summary() string {
	return fmt.Sprintf("stored=%d deleted=%d skipped=%d failed-terminal=%d failed-retryable=%d",
		r.Count(OutcomeStored), r.Count(OutcomeDeleted), r.Count(OutcomeSkipped),
		r.Count(OutcomeFailedTerminal), r.Count(OutcomeFailedRetryable))
}
