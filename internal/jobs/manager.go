package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"consultacnpj/internal/batch"
	"consultacnpj/internal/models"
	"consultacnpj/internal/ratelimit"
)

var (
	// ErrNoJob is returned when the owner has no job in progress.
	ErrNoJob = errors.New("no job in progress")

	// ErrEmptyBatch is returned by Start when no valid request remains.
	ErrEmptyBatch = errors.New("batch has no valid identifiers")
)

// HistoryWriter persists finalized batches.
type HistoryWriter interface {
	SaveHistory(ctx context.Context, h *models.History) error
}

// FinalizeResult describes what Finalize stored.
type FinalizeResult struct {
	HistoryID *uuid.UUID
	Saved     int
}

// Manager holds at most one live job per owner.
type Manager struct {
	resolver  Resolver
	history   HistoryWriter
	stepDelay time.Duration
	logger    *slog.Logger

	onFinalize func()

	mu   sync.Mutex
	jobs map[string]*Job
	last map[string][]models.LookupResult
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStepDelay sets the minimum interval between two steps of the same job.
func WithStepDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.stepDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithFinalizeHook registers a callback run after each successful Finalize.
func WithFinalizeHook(fn func()) ManagerOption {
	return func(m *Manager) { m.onFinalize = fn }
}

// NewManager creates a job manager. history may be nil, in which case
// finalized results are only kept in memory.
func NewManager(resolver Resolver, history HistoryWriter, opts ...ManagerOption) *Manager {
	m := &Manager{
		resolver:  resolver,
		history:   history,
		stepDelay: time.Second,
		logger:    slog.Default(),
		jobs:      make(map[string]*Job),
		last:      make(map[string][]models.LookupResult),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start replaces the owner's job with a new one over reqs. Requests are
// deduplicated and normalized first.
func (m *Manager) Start(owner string, reqs []models.LookupRequest, source string, filename *string) (*Job, error) {
	reqs = batch.Dedupe(reqs)
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}
	if source == "" {
		source = models.SourceManual
	}

	job := newJob(reqs, source, filename, ratelimit.NewPacer(m.stepDelay))

	m.mu.Lock()
	if prev, ok := m.jobs[owner]; ok {
		prev.Cancel()
	}
	m.jobs[owner] = job
	m.mu.Unlock()

	m.logger.Info("job started", "owner", owner, "job_id", job.ID, "total", len(reqs), "source", source)
	return job, nil
}

// Job returns the owner's live job.
func (m *Manager) Job(owner string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[owner]
	if !ok {
		return nil, ErrNoJob
	}
	return job, nil
}

// Step advances the owner's job by one lookup.
func (m *Manager) Step(ctx context.Context, owner string) (StepResult, error) {
	job, err := m.Job(owner)
	if err != nil {
		return StepResult{}, err
	}
	return job.Step(ctx, m.resolver)
}

// Status returns the owner's job counters.
func (m *Manager) Status(owner string) (Snapshot, error) {
	job, err := m.Job(owner)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// Pause pauses the owner's job.
func (m *Manager) Pause(owner string) (Snapshot, error) {
	job, err := m.Job(owner)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Pause(), nil
}

// Resume resumes the owner's job.
func (m *Manager) Resume(owner string) (Snapshot, error) {
	job, err := m.Job(owner)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Resume(), nil
}

// Cancel cancels the owner's job.
func (m *Manager) Cancel(owner string) (Snapshot, error) {
	job, err := m.Job(owner)
	if err != nil {
		return Snapshot{}, err
	}
	m.logger.Info("job cancelled", "owner", owner, "job_id", job.ID)
	return job.Cancel(), nil
}

// Finalize stores the job's results as one history record when there are
// any, then discards the job. The job is kept when storing fails.
func (m *Manager) Finalize(ctx context.Context, owner string) (FinalizeResult, error) {
	job, err := m.Job(owner)
	if err != nil {
		return FinalizeResult{}, err
	}

	// Wait for a step in flight so its result is part of the snapshot, and
	// keep new steps out until the job is gone.
	job.stepMu.Lock()
	defer job.stepMu.Unlock()

	results := job.Results()
	var out FinalizeResult
	if len(results) > 0 && m.history != nil {
		h := &models.History{
			ID:        uuid.New(),
			Kind:      job.Source,
			CNPJs:     job.Identifiers(),
			Filename:  job.Filename,
			Results:   results,
			CreatedAt: time.Now().UTC(),
		}
		if err := m.history.SaveHistory(ctx, h); err != nil {
			return FinalizeResult{}, fmt.Errorf("failed to save history: %w", err)
		}
		out = FinalizeResult{HistoryID: &h.ID, Saved: len(results)}
	}

	job.Cancel()
	m.mu.Lock()
	if m.jobs[owner] == job {
		delete(m.jobs, owner)
	}
	m.last[owner] = results
	m.mu.Unlock()

	m.logger.Info("job finalized", "owner", owner, "job_id", job.ID, "saved", out.Saved)
	if m.onFinalize != nil {
		m.onFinalize()
	}
	return out, nil
}

// Discard drops the owner's job without storing anything.
func (m *Manager) Discard(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[owner]; ok {
		job.Cancel()
		delete(m.jobs, owner)
	}
}

// Results returns the live job's results, or those of the last finalized
// job when none is live.
func (m *Manager) Results(owner string) []models.LookupResult {
	m.mu.Lock()
	job, ok := m.jobs[owner]
	last := m.last[owner]
	m.mu.Unlock()
	if ok {
		return job.Results()
	}
	return append([]models.LookupResult(nil), last...)
}

// RetryStatus returns the last retry message of the owner's job.
func (m *Manager) RetryStatus(owner string) string {
	job, err := m.Job(owner)
	if err != nil {
		return ""
	}
	return job.Snapshot().RetryStatus
}

// ActiveCount returns the number of live jobs that still have work queued.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	n := 0
	for _, j := range jobs {
		if s := j.Snapshot().Status; s == StatusRunning || s == StatusPaused {
			n++
		}
	}
	return n
}
