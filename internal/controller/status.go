package controller

import (
	"fmt"
	"time"
)

// Enqueued is an update waiting for its index's worker.
type Enqueued struct {
	UpdateID   uint64     `json:"updateId"`
	Meta       UpdateMeta `json:"meta"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
}

// Start moves the update to Processing.
func (e Enqueued) Start(now time.Time) Processing {
	return Processing{Enqueued: e, StartedProcessingAt: now}
}

// Processing is an update being applied.
type Processing struct {
	Enqueued
	StartedProcessingAt time.Time `json:"startedProcessingAt"`
}

// Succeed moves the update to Processed.
func (p Processing) Succeed(result UpdateResult, now time.Time) Processed {
	return Processed{Processing: p, Success: result, ProcessedAt: now}
}

// Fail moves the update to Failed.
func (p Processing) Fail(cause string, now time.Time) *Failed {
	return &Failed{Processing: p, Cause: cause, FailedAt: now}
}

// Processed is an update that was applied and committed.
type Processed struct {
	Processing
	Success     UpdateResult `json:"success"`
	ProcessedAt time.Time    `json:"processedAt"`
}

// Failed is an update that could not be applied. The index kept the
// generation it had before the update.
type Failed struct {
	Processing
	Cause    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

func (f *Failed) Error() string {
	return fmt.Sprintf("update %d failed: %s", f.UpdateID, f.Cause)
}

// StatusKind is the discriminant of UpdateStatus.
type StatusKind string

const (
	StatusEnqueued   StatusKind = "enqueued"
	StatusProcessing StatusKind = "processing"
	StatusProcessed  StatusKind = "processed"
	StatusFailed     StatusKind = "failed"
)

// UpdateStatus is the lifecycle state of one update. Exactly the field
// matching Kind is set.
type UpdateStatus struct {
	Kind       StatusKind
	Enqueued   *Enqueued
	Processing *Processing
	Processed  *Processed
	Failed     *Failed
}

func NewEnqueued(e Enqueued) UpdateStatus {
	return UpdateStatus{Kind: StatusEnqueued, Enqueued: &e}
}

func NewProcessing(p Processing) UpdateStatus {
	return UpdateStatus{Kind: StatusProcessing, Processing: &p}
}

func NewProcessed(p Processed) UpdateStatus {
	return UpdateStatus{Kind: StatusProcessed, Processed: &p}
}

func NewFailed(f *Failed) UpdateStatus {
	return UpdateStatus{Kind: StatusFailed, Failed: f}
}

func (s UpdateStatus) enqueued() Enqueued {
	switch s.Kind {
	case StatusEnqueued:
		return *s.Enqueued
	case StatusProcessing:
		return s.Processing.Enqueued
	case StatusProcessed:
		return s.Processed.Enqueued
	case StatusFailed:
		return s.Failed.Enqueued
	}
	return Enqueued{}
}

func (s UpdateStatus) UpdateID() uint64 { return s.enqueued().UpdateID }

// Meta returns the queued mutation.
func (s UpdateStatus) Meta() UpdateMeta { return s.enqueued().Meta }

// Terminal reports whether the update reached Processed or Failed.
func (s UpdateStatus) Terminal() bool {
	return s.Kind == StatusProcessed || s.Kind == StatusFailed
}

func (s UpdateStatus) MarshalJSON() ([]byte, error) {
	var v any
	switch s.Kind {
	case StatusEnqueued:
		v = s.Enqueued
	case StatusProcessing:
		v = s.Processing
	case StatusProcessed:
		v = s.Processed
	case StatusFailed:
		v = s.Failed
	default:
		return nil, fmt.Errorf("unknown update status %q", s.Kind)
	}
	return tagged("status", string(s.Kind), v)
}

func (s *UpdateStatus) UnmarshalJSON(b []byte) error {
	tag, rest, err := untag(b, "status")
	if err != nil {
		return fmt.Errorf("decoding update status: %w", err)
	}
	out := UpdateStatus{Kind: StatusKind(tag)}
	switch out.Kind {
	case StatusEnqueued:
		out.Enqueued = new(Enqueued)
		err = decodeStrict(rest, out.Enqueued)
	case StatusProcessing:
		out.Processing = new(Processing)
		err = decodeStrict(rest, out.Processing)
	case StatusProcessed:
		out.Processed = new(Processed)
		err = decodeStrict(rest, out.Processed)
	case StatusFailed:
		out.Failed = new(Failed)
		err = decodeStrict(rest, out.Failed)
	default:
		err = fmt.Errorf("unknown status %q", tag)
	}
	if err != nil {
		return fmt.Errorf("decoding update status: %w", err)
	}
	*s = out
	return nil
}
