package service

import (
	"time"
)

// Status classifies how a run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome reports a single run. Skipped runs did nothing because of
// configuration or an overlapping run; failed runs stopped at a stage error.
type Outcome struct {
	RunID      string    `json:"run_id"`
	Status     Status    `json:"status"`
	Message    string    `json:"message"`
	Offerings  int       `json:"offerings"`
	Drops      int       `json:"drops"`
	Pages      int       `json:"pages"`
	Truncated  bool      `json:"truncated"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Err        error     `json:"-"`
}

// OK reports whether the run did not fail.
func (o Outcome) OK() bool {
	return o.Status != StatusFailed
}

// ErrorText returns the failure cause, or "" when there is none.
func (o Outcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
