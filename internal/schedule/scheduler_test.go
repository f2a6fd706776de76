package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingJob struct {
	runs    atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	j.once.Do(func() { close(j.started) })
	<-j.release
	return nil
}

func TestWrapSkipsOverlappingRuns(t *testing.T) {
	c := NewCronScheduler()
	job := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
	run := c.wrap(job, "@every 1s")

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	<-job.started

	run()
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.release)
	<-done

	run()
	assert.Equal(t, int32(2), job.runs.Load())
}

type countJob struct{ n atomic.Int32 }

func (j *countJob) Name() string                  { return "count" }
func (j *countJob) Run(ctx context.Context) error { j.n.Add(1); return nil }

func TestAddJob(t *testing.T) {
	c := NewCronScheduler()
	job := &countJob{}

	require.NoError(t, c.AddJob(job, "@every 15m"))
	assert.Error(t, c.AddJob(job, "@every 15m"))
	assert.Error(t, c.AddJob(&blockingJob{}, "not a schedule"))

	c.Start(context.Background())
	defer c.Stop()

	next, ok := c.Next("count")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), next, 2*time.Second)

	_, ok = c.Next("missing")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("*/5 * * * *"))
	assert.NoError(t, Validate("@hourly"))
	assert.NoError(t, Validate("@every 90s"))
	assert.Error(t, Validate("* * *"))
}
