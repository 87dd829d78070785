// Package playback advances the playhead in step with the wall clock.
package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"timeline-editor/internal/models"
)

// DefaultTick is the advancement period of a playing clock, roughly one display frame.
const DefaultTick = 16 * time.Millisecond

// Event describes the clock after a transition or an advancement step.
type Event struct {
	Time  float64              `json:"time"`
	State models.PlaybackState `json:"state"`
	// Ended is set on the step that reached the duration and auto-paused.
	Ended bool `json:"ended,omitempty"`
}

type Option func(*Clock)

// WithTick sets the advancement period. Zero disables the background goroutine;
// time then moves only through Advance.
func WithTick(d time.Duration) Option { return func(c *Clock) { c.tick = d } }

func WithNow(now func() time.Time) Option { return func(c *Clock) { c.now = now } }

func WithLogger(l logrus.FieldLogger) Option { return func(c *Clock) { c.log = l } }

// WithOnChange registers a callback for every transition and step. It runs
// without the clock lock held and must not call Pause or Close.
func WithOnChange(fn func(Event)) Option { return func(c *Clock) { c.onChange = fn } }

// Clock is the playback state machine. It starts paused at time 0.
type Clock struct {
	mu       sync.Mutex
	t        float64
	duration float64
	state    models.PlaybackState
	last     time.Time

	// gen changes on every start and stop so a superseded goroutine never advances.
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}

	tick     time.Duration
	now      func() time.Time
	onChange func(Event)
	log      logrus.FieldLogger
}

func New(opts ...Option) *Clock {
	c := &Clock{
		state: models.Paused,
		tick:  DefaultTick,
		now:   time.Now,
		log:   logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Clock) Time() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) State() models.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Clock) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// SetDuration updates the end of playback. A playhead beyond a shrunk duration
// is pulled back to it, which is reported but not emitted.
func (c *Clock) SetDuration(ms float64) bool {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		ms = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = ms
	if ms > 0 && c.t > ms {
		c.t = ms
		return true
	}
	return false
}

// Play starts playback. At or past the end it rewinds to 0 first. It reports
// false when there is nothing to play.
func (c *Clock) Play() bool {
	c.mu.Lock()
	if c.state == models.Playing {
		c.mu.Unlock()
		return true
	}
	if c.duration <= 0 {
		c.mu.Unlock()
		return false
	}
	if c.t >= c.duration {
		c.t = 0
	}
	c.state = models.Playing
	c.last = c.now()
	c.gen++
	if c.tick > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		c.cancel, c.done = cancel, done
		go c.run(ctx, c.gen, done)
	}
	ev := c.eventLocked(false)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"time": ev.Time, "duration": c.Duration()}).Debug("playback started")
	c.emit(ev)
	return true
}

// Pause freezes the playhead and waits for the advancing goroutine to exit,
// so no further step lands after it returns.
func (c *Clock) Pause() {
	c.mu.Lock()
	if c.state != models.Playing {
		c.mu.Unlock()
		return
	}
	done := c.done
	c.advanceLocked(c.sinceLastLocked())
	if c.state == models.Playing {
		c.stopLocked()
	}
	ev := c.eventLocked(false)
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	c.log.WithField("time", ev.Time).Debug("playback paused")
	c.emit(ev)
}

func (c *Clock) Toggle() models.PlaybackState {
	if c.State() == models.Playing {
		c.Pause()
	} else {
		c.Play()
	}
	return c.State()
}

// Seek moves the playhead in either state, clamped to [0, duration] when a
// duration is known. It does not change the playback state.
func (c *Clock) Seek(ms float64) float64 {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		ms = 0
	}
	c.mu.Lock()
	c.t = c.clampLocked(ms)
	c.last = c.now()
	ev := c.eventLocked(false)
	c.mu.Unlock()
	c.emit(ev)
	return ev.Time
}

// Advance moves a playing clock forward by elapsed. Reaching the duration
// clamps the time and auto-pauses. A paused clock is unchanged.
func (c *Clock) Advance(elapsed time.Duration) Event {
	c.mu.Lock()
	ev, moved := c.advanceLocked(elapsed)
	c.mu.Unlock()
	if moved {
		c.emit(ev)
	}
	return ev
}

// Close stops playback. The clock stays usable.
func (c *Clock) Close() { c.Pause() }

func (c *Clock) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.gen != gen || c.state != models.Playing {
				c.mu.Unlock()
				return
			}
			ev, moved := c.advanceLocked(c.sinceLastLocked())
			c.mu.Unlock()
			if moved {
				c.emit(ev)
			}
			if ev.Ended {
				c.log.WithField("time", ev.Time).Debug("playback reached end")
				return
			}
		}
	}
}

func (c *Clock) sinceLastLocked() time.Duration {
	now := c.now()
	d := now.Sub(c.last)
	c.last = now
	return d
}

func (c *Clock) advanceLocked(elapsed time.Duration) (Event, bool) {
	if c.state != models.Playing || elapsed <= 0 {
		return c.eventLocked(false), false
	}
	c.t += float64(elapsed) / float64(time.Millisecond)
	if c.duration > 0 && c.t >= c.duration {
		c.t = c.duration
		c.stopLocked()
		return c.eventLocked(true), true
	}
	return c.eventLocked(false), true
}

// stopLocked pauses without waiting for the goroutine.
func (c *Clock) stopLocked() {
	c.state = models.Paused
	c.gen++
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel, c.done = nil, nil
}

func (c *Clock) clampLocked(ms float64) float64 {
	if ms < 0 {
		return 0
	}
	if c.duration > 0 && ms > c.duration {
		return c.duration
	}
	return ms
}

func (c *Clock) eventLocked(ended bool) Event {
	return Event{Time: c.t, State: c.state, Ended: ended}
}

func (c *Clock) emit(ev Event) {
	if c.onChange != nil {
		c.onChange(ev)
	}
}
