package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type blockingJob struct {
	runs    atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	close(j.started)
	<-j.release
	return nil
}

func TestWrapSkipsWhileRunning(t *testing.T) {
	s := NewCronScheduler()
	job := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
	fn := s.wrap(job, "@every 1m")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
	<-job.started
	fn()
	close(job.release)
	wg.Wait()

	require.EqualValues(t, 1, job.runs.Load())
}

func TestAddJob(t *testing.T) {
	s := NewCronScheduler()
	job := &blockingJob{}
	require.NoError(t, s.AddJob(job, "*/5 * * * *"))
	require.True(t, s.Scheduled("blocking"))

	other := NewCronScheduler()
	require.NoError(t, other.AddJob(job, ""))
	require.False(t, other.Scheduled("blocking"))
	require.Error(t, other.AddJob(job, "not a spec"))
}
