package playback

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeline-editor/internal/models"
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// manual returns a clock with no background goroutine.
func manual(duration float64, opts ...Option) *Clock {
	c := New(append([]Option{WithTick(0), WithLogger(quiet())}, opts...)...)
	c.SetDuration(duration)
	return c
}

func TestStartsPaused(t *testing.T) {
	c := manual(1000)
	assert.Equal(t, models.Paused, c.State())
	assert.Zero(t, c.Time())
}

func TestAdvanceOnlyWhilePlaying(t *testing.T) {
	c := manual(10_000)
	c.Advance(time.Second)
	assert.Zero(t, c.Time())

	require.True(t, c.Play())
	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500.0, c.Time())
	assert.Equal(t, models.Playing, c.State())
}

func TestAutoStopAtDuration(t *testing.T) {
	c := manual(2000)
	require.True(t, c.Play())

	ev := c.Advance(1500 * time.Millisecond)
	assert.False(t, ev.Ended)
	ev = c.Advance(time.Second)
	assert.True(t, ev.Ended)
	assert.Equal(t, 2000.0, ev.Time)
	assert.Equal(t, models.Paused, c.State())

	c.Advance(time.Second)
	assert.Equal(t, 2000.0, c.Time())
}

func TestPlayAtEndRewinds(t *testing.T) {
	c := manual(1000)
	c.Seek(1000)
	require.True(t, c.Play())
	assert.Zero(t, c.Time())
}

func TestPlayWithoutDuration(t *testing.T) {
	c := manual(0)
	assert.False(t, c.Play())
	assert.Equal(t, models.Paused, c.State())
}

func TestSeekKeepsStateAndClamps(t *testing.T) {
	c := manual(5000)
	require.True(t, c.Play())
	assert.Equal(t, 3000.0, c.Seek(3000))
	assert.Equal(t, models.Playing, c.State())

	assert.Equal(t, 0.0, c.Seek(-50))
	assert.Equal(t, 5000.0, c.Seek(9000))
	c.Pause()
	assert.Equal(t, 1200.0, c.Seek(1200))
	assert.Equal(t, models.Paused, c.State())
}

func TestShrinkingDurationPullsPlayheadBack(t *testing.T) {
	c := manual(5000)
	c.Seek(4000)
	assert.True(t, c.SetDuration(3000))
	assert.Equal(t, 3000.0, c.Time())
}

func TestToggle(t *testing.T) {
	c := manual(1000)
	assert.Equal(t, models.Playing, c.Toggle())
	assert.Equal(t, models.Paused, c.Toggle())
}

func TestPauseUsesWallClock(t *testing.T) {
	now := time.Unix(0, 0)
	c := manual(10_000, WithNow(func() time.Time { return now }))
	require.True(t, c.Play())
	now = now.Add(750 * time.Millisecond)
	c.Pause()
	assert.Equal(t, 750.0, c.Time())
}

func TestOnChangeEvents(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	c := manual(1000, WithOnChange(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	c.Play()
	c.Advance(2 * time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, models.Playing, events[0].State)
	assert.True(t, events[1].Ended)
	assert.Equal(t, models.Paused, events[1].State)
}

func TestGoroutineReachesEndAndStops(t *testing.T) {
	c := New(WithTick(2*time.Millisecond), WithLogger(quiet()))
	c.SetDuration(30)
	require.True(t, c.Play())

	require.Eventually(t, func() bool { return c.State() == models.Paused }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 30.0, c.Time())
}

func TestPauseHaltsAdvancement(t *testing.T) {
	c := New(WithTick(time.Millisecond), WithLogger(quiet()))
	c.SetDuration(60_000)
	require.True(t, c.Play())
	time.Sleep(20 * time.Millisecond)
	c.Pause()

	frozen := c.Time()
	assert.Positive(t, frozen)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, c.Time())
	assert.Equal(t, models.Paused, c.State())
}

type fakeMedia struct {
	t     float64
	seeks int
	err   error
}

func (m *fakeMedia) CurrentTime() float64 { return m.t }

func (m *fakeMedia) SeekTo(ms float64) error {
	if m.err != nil {
		return m.err
	}
	m.t = ms
	m.seeks++
	return nil
}

func TestSynchronizer(t *testing.T) {
	s := Synchronizer{}
	m := &fakeMedia{t: 1050}

	seeked, err := s.Sync(1000, m)
	require.NoError(t, err)
	assert.False(t, seeked, "within tolerance")

	m.t = 1300
	seeked, err = s.Sync(1000, m)
	require.NoError(t, err)
	assert.True(t, seeked)
	assert.Equal(t, 1000.0, m.t)

	strict := Synchronizer{Tolerance: 10}
	m.t = 1020
	seeked, _ = strict.Sync(1000, m)
	assert.True(t, seeked)
	assert.Equal(t, 2, m.seeks)

	m.err = errors.New("element detached")
	m.t = 5000
	_, err = s.Sync(1000, m)
	assert.ErrorIs(t, err, m.err)
}
