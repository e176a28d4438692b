package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statwise/internal/pkg/async"
)

func TestExecuteKeepsEveryOutcome(t *testing.T) {
	pool := async.NewPool(2)
	boom := errors.New("boom")

	results := pool.Execute(context.Background(), []async.Task{
		{Name: "params", Execute: func(context.Context) (interface{}, error) { return nil, boom }},
		{Name: "chart", Execute: func(context.Context) (interface{}, error) { return 42, nil }},
	})

	require.Len(t, results, 2)
	assert.Equal(t, 42, results["chart"].Data)
	assert.NoError(t, results["chart"].Err)
	assert.ErrorIs(t, results["params"].Err, boom)
	assert.ErrorIs(t, results.FirstError("chart", "params"), boom)
	assert.Len(t, results.Errors(), 1)
}

func TestExecuteRunsConcurrently(t *testing.T) {
	pool := async.NewPool(3)
	var running, peak int32

	task := func(context.Context) (interface{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	results := pool.Execute(context.Background(), []async.Task{
		{Name: "a", Execute: task}, {Name: "b", Execute: task}, {Name: "c", Execute: task},
	})
	require.NoError(t, results.FirstError("a", "b", "c"))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
}

func TestExecuteRecoversPanics(t *testing.T) {
	results := async.NewPool(1).Execute(context.Background(), []async.Task{
		{Name: "bad", Execute: func(context.Context) (interface{}, error) { panic("nil map") }},
	})
	require.Error(t, results["bad"].Err)
	assert.Contains(t, results["bad"].Err.Error(), "panicked")
}

func TestExecuteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	results := async.NewPool(1).Execute(ctx, []async.Task{
		{Name: "late", Execute: func(context.Context) (interface{}, error) { called = true; return nil, nil }},
	})
	assert.False(t, called)
	assert.ErrorIs(t, results.FirstError("late"), context.Canceled)
}

func TestFirstErrorMissingTask(t *testing.T) {
	err := async.Results{}.FirstError("chart")
	assert.ErrorIs(t, err, context.Canceled)
}
