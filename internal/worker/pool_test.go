package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	id string
	fn func(ctx context.Context) error
}

func (j funcJob) ID() string                        { return j.id }
func (j funcJob) Execute(ctx context.Context) error { return j.fn(ctx) }

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(3, 10, quietLogger())
	d.Run()

	var ran atomic.Int32
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, d.Submit(funcJob{id: id, fn: func(context.Context) error {
			ran.Add(1)
			return nil
		}}))
	}
	require.NoError(t, d.Stop(context.Background()))
	assert.EqualValues(t, 4, ran.Load(), "stop drains the queue")

	r, ok := d.Result("c")
	require.True(t, ok)
	assert.Equal(t, StatusDone, r.Status)
	assert.Equal(t, 1, r.Attempts)
}

func TestDispatcherRecordsFailure(t *testing.T) {
	d := NewDispatcher(1, 1, quietLogger())
	d.Run()
	require.NoError(t, d.Submit(funcJob{id: "bad", fn: func(context.Context) error {
		return errors.New("probe failed")
	}}))
	require.NoError(t, d.Stop(context.Background()))

	r, ok := d.Result("bad")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "probe failed", r.Error)
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1, quietLogger())
	// Not running: nothing drains the queue.
	require.NoError(t, d.Submit(funcJob{id: "1", fn: func(context.Context) error { return nil }}))
	err := d.Submit(funcJob{id: "2", fn: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueFull)
	_, ok := d.Result("2")
	assert.False(t, ok)

	r, _ := d.Result("1")
	assert.Equal(t, StatusQueued, r.Status)
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	d := NewDispatcher(1, 1, quietLogger())
	d.Run()
	require.NoError(t, d.Stop(context.Background()))
	require.NoError(t, d.Stop(context.Background()), "idempotent")
	assert.ErrorIs(t, d.Submit(funcJob{id: "x"}), ErrStopped)
}

func TestDispatcherStopDeadlineCancelsJobs(t *testing.T) {
	d := NewDispatcher(1, 1, quietLogger())
	d.Run()
	started := make(chan struct{})
	require.NoError(t, d.Submit(funcJob{id: "slow", fn: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)

	r, _ := d.Result("slow")
	assert.Equal(t, StatusFailed, r.Status)
}

func TestDispatcherJobTimeout(t *testing.T) {
	d := NewDispatcher(1, 1, quietLogger())
	d.JobTimeout = 10 * time.Millisecond
	d.Run()
	require.NoError(t, d.Submit(funcJob{id: "t", fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	require.NoError(t, d.Stop(context.Background()))

	r, _ := d.Result("t")
	assert.Equal(t, StatusFailed, r.Status)
	assert.Contains(t, r.Error, "deadline exceeded")
}
