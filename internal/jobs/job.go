// Package jobs drives batches one lookup at a time on behalf of an owner and
// runs the background maintenance loops.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"consultacnpj/internal/lookup"
	"consultacnpj/internal/models"
)

// Status of a job. StatusDone is reported but never stored: it is inferred
// from an empty queue.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusDone      Status = "done"
)

// Resolver resolves one identifier. *lookup.Orchestrator satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, raw string, onRetry lookup.RetryFunc) models.LookupResult
}

// Snapshot is a consistent view of a job's counters.
type Snapshot struct {
	ID          uuid.UUID
	Status      Status
	Processed   int
	Total       int
	Queued      int
	Source      string
	Filename    *string
	RetryStatus string
}

// StepResult is returned by Step. Item is nil when nothing was processed.
type StepResult struct {
	Snapshot
	Item *models.LookupResult
}

// Job is one batch in progress.
type Job struct {
	ID        uuid.UUID
	Source    string
	Filename  *string
	CreatedAt time.Time

	// stepMu serializes steps; mu guards the fields below and is never held
	// across a lookup so that pause and cancel take effect immediately.
	stepMu sync.Mutex
	mu     sync.Mutex

	queue       []models.LookupRequest
	identifiers []string
	results     []models.LookupResult
	processed   int
	total       int
	inFlight    int
	status      Status
	retryStatus string

	pacer *rate.Limiter
}

func newJob(reqs []models.LookupRequest, source string, filename *string, pacer *rate.Limiter) *Job {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.CNPJ
	}
	return &Job{
		ID:          uuid.New(),
		Source:      source,
		Filename:    filename,
		CreatedAt:   time.Now(),
		queue:       append([]models.LookupRequest(nil), reqs...),
		identifiers: ids,
		results:     make([]models.LookupResult, 0, len(reqs)),
		total:       len(reqs),
		status:      StatusRunning,
		pacer:       pacer,
	}
}

// Step processes the head of the queue. It blocks for the whole lookup,
// including pacing, rate limit waits and retry backoff.
func (j *Job) Step(ctx context.Context, r Resolver) (StepResult, error) {
	j.stepMu.Lock()
	defer j.stepMu.Unlock()

	if snap, runnable := j.peek(); !runnable {
		return StepResult{Snapshot: snap}, nil
	}

	if err := j.pacer.Wait(ctx); err != nil {
		return StepResult{}, fmt.Errorf("failed to wait for step slot: %w", err)
	}

	req, snap, ok := j.dequeue()
	if !ok {
		return StepResult{Snapshot: snap}, nil
	}

	res := r.Resolve(ctx, req.CNPJ, func(attempt int, wait time.Duration) {
		j.setRetryStatus(fmt.Sprintf("Rate limited, retrying attempt %d in %ds", attempt, int(wait.Seconds())))
	})
	res.Tag = req.Tag

	return j.complete(res), nil
}

// peek reports whether the job has work to do.
func (j *Job) peek() (Snapshot, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := j.snapshotLocked()
	return snap, snap.Status == StatusRunning
}

func (j *Job) dequeue() (models.LookupRequest, Snapshot, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning || len(j.queue) == 0 {
		return models.LookupRequest{}, j.snapshotLocked(), false
	}
	req := j.queue[0]
	j.queue = j.queue[1:]
	j.inFlight = 1
	return req, Snapshot{}, true
}

func (j *Job) complete(res models.LookupResult) StepResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, res)
	j.processed++
	j.inFlight = 0
	j.retryStatus = ""

	snap := j.snapshotLocked()
	// The step that produced an item reports the state it ran under.
	if snap.Status == StatusDone {
		snap.Status = StatusRunning
	}
	return StepResult{Snapshot: snap, Item: &res}
}

// Pause stops further steps until Resume.
func (j *Job) Pause() Snapshot {
	return j.setStatus(StatusPaused)
}

// Resume allows steps again.
func (j *Job) Resume() Snapshot {
	return j.setStatus(StatusRunning)
}

// Cancel drops the remaining queue. Results collected so far are kept and a
// step already in flight still records its result.
func (j *Job) Cancel() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusCancelled
	j.queue = nil
	j.total = j.processed + j.inFlight
	return j.snapshotLocked()
}

func (j *Job) setStatus(s Status) Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
	return j.snapshotLocked()
}

func (j *Job) setRetryStatus(msg string) {
	j.mu.Lock()
	j.retryStatus = msg
	j.mu.Unlock()
}

// Snapshot returns the current counters.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

// Results returns a copy of the results collected so far.
func (j *Job) Results() []models.LookupResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.LookupResult(nil), j.results...)
}

// Identifiers returns the comma-joined identifiers the job started with.
func (j *Job) Identifiers() string {
	return strings.Join(j.identifiers, ",")
}

func (j *Job) snapshotLocked() Snapshot {
	status := j.status
	if status == StatusRunning && len(j.queue) == 0 && j.inFlight == 0 {
		status = StatusDone
	}
	return Snapshot{
		ID:          j.ID,
		Status:      status,
		Processed:   j.processed,
		Total:       j.total,
		Queued:      len(j.queue),
		Source:      j.Source,
		Filename:    j.Filename,
		RetryStatus: j.retryStatus,
	}
}
