package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statwise/internal/jobs"
	"statwise/internal/metrics"
	"statwise/internal/testsupport"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func TestSchedulerRegister(t *testing.T) {
	s := jobs.NewScheduler(testsupport.GetLogger(), nil)
	job := funcJob{name: "noop", run: func(context.Context) error { return nil }}

	require.NoError(t, s.Register("@every 1h", job))
	assert.Error(t, s.Register("@every 2h", job), "duplicate name")
	assert.Error(t, s.Register("not a schedule", funcJob{name: "other", run: job.run}))
}

func TestSchedulerTrigger(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := jobs.NewScheduler(testsupport.GetLogger(), metrics.New(reg, "test"))

	var runs atomic.Int32
	require.NoError(t, s.Register("@every 1h", funcJob{name: "count", run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))
	require.NoError(t, s.Register("@every 1h", funcJob{name: "fail", run: func(context.Context) error {
		return errors.New("boom")
	}}))

	ran, err := s.Trigger("count")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int32(1), runs.Load())

	ran, err = s.Trigger("fail")
	require.NoError(t, err)
	assert.True(t, ran)

	_, err = s.Trigger("missing")
	assert.Error(t, err)

	series, err := testutil.GatherAndCount(reg, "test_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := jobs.NewScheduler(testsupport.GetLogger(), nil)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register("@every 1h", funcJob{name: "slow", run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	require.NoError(t, s.Register("@every 1h", funcJob{name: "fast", run: func(context.Context) error {
		return nil
	}}))

	done := make(chan bool)
	go func() {
		ran, _ := s.Trigger("slow")
		done <- ran
	}()
	<-started

	ran, err := s.Trigger("fast")
	require.NoError(t, err)
	assert.False(t, ran)

	close(release)
	assert.True(t, <-done)

	ran, err = s.Trigger("fast")
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestSchedulerRecoversFromPanics(t *testing.T) {
	s := jobs.NewScheduler(testsupport.GetLogger(), nil)
	require.NoError(t, s.Register("@every 1h", funcJob{name: "panics", run: func(context.Context) error {
		panic("unexpected")
	}}))

	assert.NotPanics(t, func() {
		ran, err := s.Trigger("panics")
		require.NoError(t, err)
		assert.True(t, ran)
	})

	// The guard is released after the panic.
	ran, err := s.Trigger("panics")
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestSchedulerStartStop(t *testing.T) {
	s := jobs.NewScheduler(testsupport.GetLogger(), nil)
	assert.False(t, s.IsRunning())

	s.Start()
	s.Start()
	assert.True(t, s.IsRunning())

	s.Stop(time.Second)
	assert.False(t, s.IsRunning())
}
