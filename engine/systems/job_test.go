package systems

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidates(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)

	var mu sync.Mutex
	var results []interface{}
	var failures []error
	var wg sync.WaitGroup
	wg.Add(2)

	require.NoError(t, js.Submit(JobTask{
		Name: "ok",
		Run:  func(context.Context) (interface{}, error) { return 42, nil },
		OnComplete: func(result interface{}) {
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			wg.Done()
		},
	}))
	boom := errors.New("boom")
	require.NoError(t, js.Submit(JobTask{
		Name: "fail",
		Run:  func(context.Context) (interface{}, error) { return nil, boom },
		OnFailure: func(err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
			wg.Done()
		},
	}))
	wg.Wait()

	assert.Equal(t, []interface{}{42}, results)
	assert.Equal(t, []error{boom}, failures)
	require.NoError(t, js.Shutdown())
}

func TestJobSystemSubmitAfterShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())

	err = js.Submit(JobTask{Name: "late", Run: func(context.Context) (interface{}, error) { return nil, nil }})
	assert.ErrorIs(t, err, ErrJobSystemClosed)
	assert.Error(t, js.Submit(JobTask{Name: "empty"}))
}
