// Package worker runs post-commit side effects (mail, event publishing,
// search indexing) off the request path.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// Job is one side effect. Returning an error schedules a retry.
type Job = func(ctx context.Context) error

type Config struct {
	Concurrency int
	QueueSize   int
	MaxRetries  int
	JobTimeout  time.Duration
	RetryBase   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	return c
}

type task struct {
	name string
	fn   Job
}

// Dispatcher is a bounded job queue drained by a fixed pool of goroutines.
// Jobs never inherit a request context.
type Dispatcher struct {
	cfg     Config
	logger  *logrus.Logger
	metrics *metrics

	queue  chan task
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
}

func NewDispatcher(cfg Config, logger *logrus.Logger, reg prometheus.Registerer) *Dispatcher {
	cfg = cfg.withDefaults()
	base, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan task, cfg.QueueSize),
		base:   base,
		cancel: cancel,
	}
	d.metrics = newMetrics(reg, func() float64 { return float64(len(d.queue)) })
	return d
}

// Start launches the worker goroutines. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.cfg.Concurrency; i++ {
		d.wg.Add(1)
		go d.loop()
	}
}

// Submit enqueues fn without blocking. It reports false when the job was
// dropped because the queue is full or the dispatcher is shut down.
func (d *Dispatcher) Submit(name string, fn Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(name, "dispatcher closed")
		return false
	}
	select {
	case d.queue <- task{name: name, fn: fn}:
		return true
	default:
		d.drop(name, "queue full")
		return false
	}
}

// Shutdown stops intake and waits for queued jobs to finish. When ctx ends
// first, in-flight jobs are cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	started := d.started
	d.mu.Unlock()
	if !started {
		d.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for t := range d.queue {
		d.run(t)
	}
}

func (d *Dispatcher) run(t task) {
	ctx, cancel := context.WithTimeout(d.base, d.cfg.JobTimeout)
	defer cancel()

	attempts := 0
	backoff := retry.WithMaxRetries(uint64(d.cfg.MaxRetries), retry.NewExponential(d.cfg.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := safeCall(ctx, t.fn); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.metrics.jobs.WithLabelValues(t.name, outcomeFailed).Inc()
		d.logger.WithError(err).WithFields(logrus.Fields{"job": t.name, "attempts": attempts}).
			Warn("background job failed")
		return
	}
	d.metrics.jobs.WithLabelValues(t.name, outcomeSucceeded).Inc()
}

func (d *Dispatcher) drop(name, reason string) {
	d.metrics.jobs.WithLabelValues(name, outcomeDropped).Inc()
	d.logger.WithFields(logrus.Fields{"job": name, "reason": reason}).Error("background job dropped")
}

func safeCall(ctx context.Context, fn Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}
