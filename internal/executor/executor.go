// Package executor implements the bounded-concurrency runner (C5): it
// schedules analysis workflows on a fixed-size worker pool, tracks their
// lifecycle in an authoritative in-memory table, and persists every
// transition through the Job Registry. See spec §4.5.
package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sacahan/trailtag/internal/log"
	"github.com/sacahan/trailtag/internal/metrics"
	"github.com/sacahan/trailtag/internal/model"
	"golang.org/x/sync/errgroup"
)

const defaultMaxConcurrentJobs = 5

// jobRegistry is the subset of *jobs.Registry the executor needs.
type jobRegistry interface {
	Save(ctx context.Context, job model.Job)
}

// ProgressFunc is invoked from inside a Workflow to report a phase/progress
// transition, mirroring the source system's task-level callback mechanism.
type ProgressFunc func(phase model.JobPhase, progress int)

// Workflow is the three-phase analysis contract C5 schedules. Implementations
// (the Workflow Driver, C6) must honor ctx cancellation at phase boundaries
// and return the job in its final terminal state.
type Workflow func(ctx context.Context, job model.Job, report ProgressFunc) (model.Job, error)

type runningJob struct {
	job    model.Job
	cancel context.CancelFunc
}

// Executor is the bounded-concurrency runner (C5). The worker pool itself is
// an errgroup.Group with SetLimit(max_concurrent_jobs): Submit hands each job
// to a small scheduling goroutine that calls group.Go, so the blocking wait
// for a free slot happens in the background rather than in Submit's caller.
type Executor struct {
	registry jobRegistry
	group    *errgroup.Group

	mu         sync.Mutex
	running    map[string]*runningJob
	wg         sync.WaitGroup
	queueDepth int32
}

// New constructs an Executor bounded to maxConcurrentJobs simultaneous
// workflow runs. A non-positive value falls back to the spec default of 5.
func New(maxConcurrentJobs int, registry jobRegistry) *Executor {
	if maxConcurrentJobs <= 0 {
		maxConcurrentJobs = defaultMaxConcurrentJobs
	}
	group := &errgroup.Group{}
	group.SetLimit(maxConcurrentJobs)
	return &Executor{
		registry: registry,
		group:    group,
		running:  make(map[string]*runningJob),
	}
}

// Submit assigns a job_id if absent, enforces uniqueness, and schedules run
// for background execution. It returns immediately; run executes on a
// worker once a pool slot is free.
func (e *Executor) Submit(job model.Job, run Workflow) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}

	e.mu.Lock()
	if _, exists := e.running[job.JobID]; exists {
		e.mu.Unlock()
		return "", fmt.Errorf("job %s is already submitted", job.JobID)
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	e.running[job.JobID] = &runningJob{job: job, cancel: cancel}
	e.mu.Unlock()
	metrics.SetExecutorQueueDepth(int(atomic.AddInt32(&e.queueDepth, 1)))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		// group.Go blocks here, not in Submit, until a pool slot frees up.
		e.group.Go(func() error {
			e.dispatch(jobCtx, job, run)
			return nil
		})
	}()

	return job.JobID, nil
}

// dispatch runs the workflow to completion on an already-acquired pool slot,
// persisting every lifecycle transition via the job registry.
func (e *Executor) dispatch(ctx context.Context, job model.Job, run Workflow) {
	defer e.forget(job.JobID)
	metrics.SetExecutorQueueDepth(int(atomic.AddInt32(&e.queueDepth, -1)))

	logger := log.WithComponent("executor")

	if err := ctx.Err(); err != nil {
		job.Status = model.JobStatusCanceled
		job.Touch(time.Now().UTC())
		e.saveAndTrack(job)
		return
	}

	job.Status = model.JobStatusRunning
	job.Touch(time.Now().UTC())
	e.saveAndTrack(job)

	result, err := run(ctx, job, func(phase model.JobPhase, progress int) {
		if phase != job.Phase {
			metrics.RecordPhaseTransition(phase)
		}
		job.Phase = phase
		job.Progress = progress
		job.Status = model.JobStatusRunning
		job.Touch(time.Now().UTC())
		e.saveAndTrack(job)
	})

	switch {
	case ctx.Err() != nil:
		job.Status = model.JobStatusCanceled
	case err != nil:
		// Prefer whatever typed error the workflow already attached (e.g.
		// the Workflow Driver's validation-vs-exception distinction, spec
		// §4.6); fall back to a generic exception for workflows that just
		// return a bare error.
		job = result
		job.Status = model.JobStatusFailed
		if job.Error == nil {
			job.Error = &model.JobError{Type: "exception", Message: err.Error()}
		}
		logger.Error().Err(err).Str("job_id", job.JobID).Msg("workflow failed")
	default:
		job = result
	}
	job.Touch(time.Now().UTC())
	e.saveAndTrack(job)
}

// saveAndTrack updates the in-memory running-jobs snapshot (used by
// GetJobStatus/GetRunningJobs while the process runs) and persists the
// transition via the job registry, best-effort (spec §4.5: "Persistence of
// state is best-effort; the in-memory running-jobs table is authoritative").
func (e *Executor) saveAndTrack(job model.Job) {
	e.mu.Lock()
	if rj, ok := e.running[job.JobID]; ok {
		rj.job = job
	}
	e.mu.Unlock()
	e.registry.Save(context.Background(), job)
}

func (e *Executor) forget(jobID string) {
	e.mu.Lock()
	delete(e.running, jobID)
	e.mu.Unlock()
}

// GetJobStatus looks up jobID in the in-memory running set first, since it
// is authoritative while the process runs; the caller falls back to the
// job registry for jobs that have already finished dispatch.
func (e *Executor) GetJobStatus(jobID string) (model.Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rj, ok := e.running[jobID]
	if !ok {
		return model.Job{}, false
	}
	return rj.job, true
}

// Cancel marks jobID as canceled and signals its context; the workflow is
// expected to observe cancellation at its next suspension point (spec §5).
// Returns false if jobID is not currently running.
func (e *Executor) Cancel(jobID string) bool {
	e.mu.Lock()
	rj, ok := e.running[jobID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	rj.job.Status = model.JobStatusCanceled
	rj.job.Touch(time.Now().UTC())
	job := rj.job
	e.mu.Unlock()

	e.registry.Save(context.Background(), job)
	rj.cancel()
	return true
}

// GetRunningJobs returns a snapshot of job_id -> status for every job
// currently tracked in the in-memory running table.
func (e *Executor) GetRunningJobs() map[string]model.JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]model.JobStatus, len(e.running))
	for id, rj := range e.running {
		out[id] = rj.job.Status
	}
	return out
}

// Shutdown cancels every running job and blocks until the pool drains: first
// until every job has been admitted into the errgroup (no Submit caller's
// scheduling goroutine is still waiting on a slot), then until every admitted
// job has actually finished.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	for _, rj := range e.running {
		rj.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
	_ = e.group.Wait()
}
