// Package bulkop holds the progress record for a bulk-operation action:
// a query-driven iteration that mutates many tracker items and tolerates
// per-item failure.
package bulkop

import "time"

// Status mirrors execution.Status's terminal set; a bulk operation never
// sits in PENDING/CANCELLED, only RUNNING and one of the two terminal
// states.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// ItemError records one failed item, kept in a bounded, oldest-dropped list.
type ItemError struct {
	ItemKey string
	Error   string
	Ts      time.Time
}

// MaxErrors bounds Progress.Errors; the oldest entry is dropped on overflow.
const MaxErrors = 100

// Progress is the mutable record of one bulk-operation's iteration.
type Progress struct {
	ID                  string
	RuleID              string
	Total               int
	Processed           int
	Succeeded           int
	Failed              int
	Status              Status
	StartedAt           time.Time
	EstimatedCompletion *time.Time
	Errors              []ItemError
}

// RecordSuccess marks one item as succeeded and advances Processed.
func (p *Progress) RecordSuccess() {
	p.Processed++
	p.Succeeded++
}

// RecordFailure marks one item as failed, advances Processed, and appends
// to the bounded error list, dropping the oldest entry on overflow.
func (p *Progress) RecordFailure(itemKey string, err error, ts time.Time) {
	p.Processed++
	p.Failed++
	p.Errors = append(p.Errors, ItemError{ItemKey: itemKey, Error: err.Error(), Ts: ts})
	if len(p.Errors) > MaxErrors {
		p.Errors = p.Errors[len(p.Errors)-MaxErrors:]
	}
}

// Finalize sets the terminal status: COMPLETED if no item failed, else
// FAILED (the owning ActionResult carries both counts either way).
func (p *Progress) Finalize() {
	if p.Failed == 0 {
		p.Status = StatusCompleted
	} else {
		p.Status = StatusFailed
	}
}

// UpdateEstimate recomputes EstimatedCompletion as an exponential moving
// average over observed per-item duration, extrapolated across the
// remaining items.
func (p *Progress) UpdateEstimate(now time.Time, avgItemDuration time.Duration) {
	remaining := p.Total - p.Processed
	if remaining <= 0 {
		p.EstimatedCompletion = &now
		return
	}
	eta := now.Add(time.Duration(remaining) * avgItemDuration)
	p.EstimatedCompletion = &eta
}
