// Package worker runs background jobs (asset imports, probing) on a fixed
// pool of goroutines fed from a bounded queue.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull = errors.New("job queue full")
	ErrStopped   = errors.New("dispatcher stopped")
)

// Job is a unit of work. ID must be unique among queued jobs.
type Job interface {
	ID() string
	Execute(ctx context.Context) error
}

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Result is the last known state of a submitted job.
type Result struct {
	ID       string    `json:"id"`
	Status   Status    `json:"status"`
	Error    string    `json:"error,omitempty"`
	Updated  time.Time `json:"updatedAt"`
	Attempts int       `json:"-"`
}

// Dispatcher owns the queue and the workers pulling from it.
type Dispatcher struct {
	MaxWorkers int
	JobTimeout time.Duration

	queue chan Job
	log   logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	results map[string]Result
}

func NewDispatcher(maxWorkers, queueSize int, log logrus.FieldLogger) *Dispatcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		MaxWorkers: maxWorkers,
		JobTimeout: 2 * time.Minute,
		queue:      make(chan Job, queueSize),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		results:    make(map[string]Result),
	}
}

// Run starts the workers. Call once.
func (d *Dispatcher) Run() {
	d.log.WithField("workers", d.MaxWorkers).Info("dispatcher starting")
	for i := 1; i <= d.MaxWorkers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}
}

func (d *Dispatcher) work(id int) {
	defer d.wg.Done()
	log := d.log.WithField("worker", id)
	for job := range d.queue {
		d.execute(log, job)
	}
}

func (d *Dispatcher) execute(log logrus.FieldLogger, job Job) {
	log = log.WithField("jobId", job.ID())
	d.record(job.ID(), StatusRunning, nil)
	log.Debug("job started")

	ctx := d.ctx
	if d.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.JobTimeout)
		defer cancel()
	}
	start := time.Now()
	if err := job.Execute(ctx); err != nil {
		d.record(job.ID(), StatusFailed, err)
		log.WithError(err).Warn("job failed")
		return
	}
	d.record(job.ID(), StatusDone, nil)
	log.WithField("elapsed", time.Since(start).String()).Info("job finished")
}

func (d *Dispatcher) record(id string, st Status, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordLocked(id, st, err)
}

func (d *Dispatcher) recordLocked(id string, st Status, err error) {
	r := d.results[id]
	r.ID, r.Status, r.Updated = id, st, time.Now()
	r.Error = ""
	if err != nil {
		r.Error = err.Error()
	}
	if st == StatusRunning {
		r.Attempts++
	}
	d.results[id] = r
}

// Submit queues a job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- job:
		d.recordLocked(job.ID(), StatusQueued, nil)
		d.log.WithField("jobId", job.ID()).Debug("job queued")
		return nil
	default:
		d.log.WithField("jobId", job.ID()).Warn("job queue full")
		return ErrQueueFull
	}
}

// Result reports a job's state.
func (d *Dispatcher) Result(id string) (Result, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.results[id]
	return r, ok
}

// Stop refuses new jobs and lets the workers drain what is queued. If ctx
// expires first, running jobs are cancelled and Stop returns ctx.Err().
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.log.Info("dispatcher shutting down")
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	defer d.cancel()
	select {
	case <-done:
		d.log.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
