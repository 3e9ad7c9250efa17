package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sacahan/trailtag/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeRegistry struct {
	mu    sync.Mutex
	saved map[string]model.Job
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{saved: make(map[string]model.Job)}
}

func (f *fakeRegistry) Save(_ context.Context, job model.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[job.JobID] = job
}

func (f *fakeRegistry) get(jobID string) (model.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.saved[jobID]
	return j, ok
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestExecutorSubmitRunsToCompletion(t *testing.T) {
	reg := newFakeRegistry()
	ex := New(2, reg)

	job := model.Job{JobID: "job-1", VideoID: "video-1", Status: model.JobStatusQueued}
	jobID, err := ex.Submit(job, func(ctx context.Context, j model.Job, report ProgressFunc) (model.Job, error) {
		report(model.PhaseMetadata, 30)
		j.Status = model.JobStatusDone
		j.Phase = model.PhaseGeocode
		j.Progress = 100
		return j, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	waitUntil(t, time.Second, func() bool {
		j, ok := reg.get("job-1")
		return ok && j.Status == model.JobStatusDone
	})

	final, _ := reg.get("job-1")
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, model.PhaseGeocode, final.Phase)
}

func TestExecutorSubmitAssignsJobIDWhenAbsent(t *testing.T) {
	reg := newFakeRegistry()
	ex := New(1, reg)

	jobID, err := ex.Submit(model.Job{VideoID: "video-1"}, func(ctx context.Context, j model.Job, report ProgressFunc) (model.Job, error) {
		j.Status = model.JobStatusDone
		return j, nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
}

func TestExecutorSubmitDuplicateJobIDFails(t *testing.T) {
	reg := newFakeRegistry()
	ex := New(1, reg)

	block := make(chan struct{})
	_, err := ex.Submit(model.Job{JobID: "dup", VideoID: "v"}, func(ctx context.Context, j model.Job, report ProgressFunc) (model.Job, error) {
		<-block
		j.Status = model.JobStatusDone
		return j, nil
	})
	require.NoError(t, err)

	_, err = ex.Submit(model.Job{JobID: "dup", VideoID: "v"}, func(ctx context.Context, j model.Job, report ProgressFunc) (model.Job, error) {
		return j, nil
	})
	assert.Error(t, err)
	close(block)
}

func TestExecutorWorkflowFailureMarksJobFailed(t *testing.T) {
	reg := newFakeRegistry()
	ex := New(1, reg)

	_, err := ex.Submit(model.Job{JobID: "job-err", VideoID: "v"}, func(ctx context.Context, j model.Job, report ProgressFunc) (model.Job, error) {
		return j, errors.New("boom")
	})
	require.NoError(t, err)

	waitUntil(t, time.Second, func() bool {
		j, ok := reg.get("job-err")
		return ok && j.Status == model.JobStatusFailed
	})

	final, _ := reg.get("job-err")
	require.NotNil(t, final.Error)
	assert.Equal(t, "exception", final.Error.Type)
	assert.Contains(t, final.Error.Message, "boom")
}

func TestExecutorCancelStopsRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := newFakeRegistry()
	ex := New(1, reg)

	started := make(chan struct{})
	_, err := ex.Submit(model.Job{JobID: "job-cancel", VideoID: "v"}, func(ctx context.Context, j model.Job, report ProgressFunc) (model.Job, error) {
		close(started)
		<-ctx.Done()
		return j, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	ok := ex.Cancel("job-cancel")
	assert.True(t, ok)

	waitUntil(t, time.Second, func() bool {
		j, ok := reg.get("job-cancel")
		return ok && j.Status == model.JobStatusCanceled
	})
}

func TestExecutorCancelUnknownJobReturnsFalse(t *testing.T) {
	reg := newFakeRegistry()
	ex := New(1, reg)
	assert.False(t, ex.Cancel("no-such-job"))
}

func TestExecutorGetRunningJobsSnapshot(t *testing.T) {
	reg := newFakeRegistry()
	ex := New(1, reg)

	block := make(chan struct{})
	_, err := ex.Submit(model.Job{JobID: "job-running", VideoID: "v"}, func(ctx context.Context, j model.Job, report ProgressFunc) (model.Job, error) {
		<-block
		return j, nil
	})
	require.NoError(t, err)

	waitUntil(t, time.Second, func() bool {
		_, ok := ex.GetJobStatus("job-running")
		return ok
	})

	running := ex.GetRunningJobs()
	assert.Contains(t, running, "job-running")
	close(block)
}

func TestExecutorShutdownDrainsPool(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := newFakeRegistry()
	ex := New(1, reg)

	_, err := ex.Submit(model.Job{JobID: "job-shutdown", VideoID: "v"}, func(ctx context.Context, j model.Job, report ProgressFunc) (model.Job, error) {
		<-ctx.Done()
		return j, ctx.Err()
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		ex.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not drain the pool in time")
	}
}
