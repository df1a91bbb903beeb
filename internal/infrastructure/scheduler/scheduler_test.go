package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name  string
	runs  atomic.Int32
	err   error
	panic bool
	block bool
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job " + j.name }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.panic {
		panic("boom")
	}
	if j.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return j.err
}

func TestScheduler_Register(t *testing.T) {
	s := New(DefaultConfig())

	require.NoError(t, s.Register(&fakeJob{name: "a"}, time.Minute))
	assert.ErrorIs(t, s.Register(&fakeJob{name: "a"}, time.Minute), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, time.Minute), ErrNilJob)
	assert.ErrorIs(t, s.Register(&fakeJob{name: "b"}, 0), ErrInvalidInterval)

	require.NoError(t, s.Register(&fakeJob{name: "c"}, time.Hour))
	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, time.Hour, jobs[1].Every)

	require.NoError(t, s.Unregister("a"))
	assert.ErrorIs(t, s.Unregister("a"), ErrJobNotFound)
	assert.Len(t, s.ListJobs(), 1)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(DefaultConfig())
	ok := &fakeJob{name: "ok"}
	bad := &fakeJob{name: "bad", err: errors.New("store down")}
	crash := &fakeJob{name: "crash", panic: true}
	for _, j := range []*fakeJob{ok, bad, crash} {
		require.NoError(t, s.Register(j, time.Hour))
	}

	var completed atomic.Int32
	s.OnJobComplete(func(JobResult) { completed.Add(1) })

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "bad")
	assert.EqualError(t, err, "store down")

	_, err = s.RunNow(context.Background(), "crash")
	assert.ErrorIs(t, err, ErrJobPanic)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Equal(t, int32(3), completed.Load())

	history := s.GetHistory(0)
	require.Len(t, history, 3)
	assert.Equal(t, "crash", history[2].JobName)
	assert.Len(t, s.GetHistory(1), 1)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(3), snap.TotalExecutions)
	assert.Equal(t, int64(2), snap.TotalFailures)
	assert.InDelta(t, 1.0/3, snap.SuccessRate, 0.001)

	for _, info := range s.ListJobs() {
		if info.Name == "bad" {
			assert.Equal(t, int64(1), info.FailCount)
			require.NotNil(t, info.LastResult)
			assert.False(t, info.LastResult.Success)
		}
	}
}

func TestScheduler_JobTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JobTimeout = 20 * time.Millisecond
	s := New(cfg)
	require.NoError(t, s.Register(&fakeJob{name: "slow", block: true}, time.Hour))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(DefaultConfig())
	job := &fakeJob{name: "tick"}
	require.NoError(t, s.Register(job, time.Second))

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}
