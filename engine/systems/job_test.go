package systems

import (
	"errors"
	"sync/atomic"
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

func TestJobSystemRunsEveryJob(t *testing.T) {
	js, err := NewJobSystem(4, 0)
	require.NoError(t, err)

	var ran, completed atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, js.Submit(JobTask{
			Name:       "count",
			Run:        func() error { ran.Add(1); return nil },
			OnComplete: func() { completed.Add(1) },
		}))
	}
	require.NoError(t, js.Wait())
	assert.Equal(t, int32(50), ran.Load())
	assert.Equal(t, int32(50), completed.Load())
	require.NoError(t, js.Shutdown())
}

func TestJobSystemCollectsFailures(t *testing.T) {
	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)

	boom := errors.New("boom")
	var failed atomic.Int32
	require.NoError(t, js.Submit(JobTask{Name: "bad", Run: func() error { return boom }, OnFailure: func(error) { failed.Add(1) }}))
	require.NoError(t, js.Submit(JobTask{Name: "good", Run: func() error { return nil }}))

	err = js.Wait()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, int32(1), failed.Load())
	assert.NoError(t, js.Wait(), "errors are reported once")

	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, js.Submit(JobTask{Name: "late", Run: func() error { return nil }}), ErrJobSystemClosed)
	assert.Error(t, js.Submit(JobTask{Name: "empty"}))
	assert.NoError(t, js.Shutdown())
}
