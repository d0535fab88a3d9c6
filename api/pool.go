package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"trello-api/domain"
)

const (
	minWorkers      = 32
	maxWorkers      = 192
	bufferPerWorker = 128
	defaultTimeout  = 30 * time.Second
	defaultHandoff  = 15 * time.Millisecond
	workersPerQueue = 4
	workersPerCPU   = 24
)

// DispatcherConfig sizes the delivery pool. Zero values pick defaults.
type DispatcherConfig struct {
	Workers          int
	Buffer           int
	QueueConcurrency int
	CPUs             int
	Timeout          time.Duration
	Handoff          time.Duration
}

// Dispatcher delivers change events to sinks on a bounded pool of workers.
// Emit never waits longer than the handoff timeout; events that do not fit
// are dropped.
type Dispatcher struct {
	sinks   []EventSink
	logger  *log.Logger
	jobs    chan []domain.Event
	timeout time.Duration
	handoff time.Duration
	clock   eventClock

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDispatcher starts the worker pool.
func NewDispatcher(cfg DispatcherConfig, logger *log.Logger, sinks ...EventSink) *Dispatcher {
	if logger == nil {
		panic("api.NewDispatcher: logger is nil")
	}
	workers, buffer := computeWorkerDefaults(cfg.QueueConcurrency, cfg.CPUs)
	if cfg.Workers > 0 {
		workers = cfg.Workers
	}
	if cfg.Buffer > 0 {
		buffer = cfg.Buffer
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	handoff := cfg.Handoff
	if handoff < 0 {
		handoff = 0
	} else if handoff == 0 {
		handoff = defaultHandoff
	}

	d := &Dispatcher{
		sinks:   sinks,
		logger:  logger,
		jobs:    make(chan []domain.Event, buffer),
		timeout: timeout,
		handoff: handoff,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("event dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workers, buffer, timeout, handoff)
	return d
}

// computeWorkerDefaults scales the pool with the queue fan-out and CPU count.
func computeWorkerDefaults(queueConcurrency, cpus int) (int, int) {
	workers := queueConcurrency * workersPerQueue
	if byCPU := cpus * workersPerCPU; byCPU > workers {
		workers = byCPU
	}
	if workers < minWorkers {
		workers = minWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	return workers, workers * bufferPerWorker
}

// Emit stamps events without a time and queues them for delivery.
func (d *Dispatcher) Emit(events ...domain.Event) bool {
	if d == nil || len(events) == 0 {
		return false
	}
	ts := d.clock.reserve(len(events))
	for i := range events {
		if events[i].Time == 0 {
			events[i].Time = ts + int64(i)
		}
	}
	if d.tryEnqueue(events) {
		return true
	}
	d.logger.WithFields(log.Fields{
		"type":  events[0].Type,
		"count": len(events),
	}).Warn("event buffer saturated; dropping events")
	return false
}

// eventClock hands out strictly increasing nanosecond stamps. A batch of n
// events reserves n consecutive values.
type eventClock struct {
	last atomic.Int64
}

func (c *eventClock) reserve(n int) int64 {
	span := int64(n)
	for {
		now := time.Now().UnixNano()
		last := c.last.Load()
		if now <= last {
			now = last + 1
		}
		if c.last.CompareAndSwap(last, now+span-1) {
			return now
		}
	}
}

// Close stops accepting events and waits for queued deliveries.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for batch := range d.jobs {
		for _, sink := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			err := sink.Publish(ctx, batch...)
			cancel()
			if err != nil {
				d.logger.Errorf("event delivery failed, err: %v, type: %s, count: %d, worker: %d", err, batch[0].Type, len(batch), id)
			}
		}
	}
}

func (d *Dispatcher) tryEnqueue(batch []domain.Event) bool {
	if ok, closed := trySendNonBlocking(d.jobs, batch); closed {
		return false
	} else if ok {
		return true
	}

	if d.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(d.handoff)
	defer timer.Stop()

	ok, _ := sendWithTimer(d.jobs, batch, timer.C)
	return ok
}

func trySendNonBlocking[T any](ch chan T, v T) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- v:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer[T any](ch chan T, v T, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- v:
		return true, false
	case <-timer:
		return false, false
	}
}
