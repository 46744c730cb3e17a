package pool

import (
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/freeeve/stackrabbit/api/internal/metrics"
)

// Config configures the worker pool.
type Config struct {
	Logger     zerolog.Logger
	NumWorkers int              // Number of worker goroutines (0 = runtime.NumCPU())
	MaxPending int              // Queue depth limit (0 = unbounded)
	Metrics    *metrics.Metrics // Optional
}

// Pool runs submitted tasks on a fixed set of long-lived workers pulling from
// a shared FIFO queue.
type Pool struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	queue   *taskQueue
	wg      sync.WaitGroup

	// Stats
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	busy      atomic.Int32
}

// New creates a pool and starts its workers.
func New(cfg Config) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}
	if cfg.MaxPending < 0 {
		cfg.MaxPending = 0
	}

	p := &Pool{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		queue:   newTaskQueue(cfg.MaxPending),
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		workerID := i
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(workerID)
		}()
	}

	p.log.Info().
		Int("num_workers", cfg.NumWorkers).
		Int("max_pending", cfg.MaxPending).
		Msg("worker pool started")

	return p
}

func (p *Pool) runWorker(id int) {
	for {
		task, ok := p.queue.Dequeue()
		if !ok {
			p.log.Debug().Int("worker", id).Msg("worker exiting")
			return
		}
		task()
	}
}

// Submit queues fn and returns a handle for its result. It never waits for fn
// to run. Once the pool is shut down it returns ErrPoolClosed.
func Submit[T any](p *Pool, fn func() (T, error)) (*Handle[T], error) {
	h := newHandle[T](uuid.NewString())

	task := func() {
		p.busy.Add(1)
		p.metrics.TaskStarted()
		start := time.Now()

		val, err := runTask(fn)

		dur := time.Since(start)
		p.busy.Add(-1)
		p.completed.Add(1)

		outcome := metrics.OutcomeOK
		var pe *PanicError
		switch {
		case errors.As(err, &pe):
			outcome = metrics.OutcomePanic
			p.failed.Add(1)
			p.log.Error().
				Str("task", h.id).
				Interface("panic", pe.Value).
				Bytes("stack", pe.Stack).
				Msg("task panicked")
		case err != nil:
			outcome = metrics.OutcomeError
			p.failed.Add(1)
			p.log.Debug().Err(err).Str("task", h.id).Dur("dur", dur).Msg("task failed")
		default:
			p.log.Debug().Str("task", h.id).Dur("dur", dur).Msg("task finished")
		}
		p.metrics.TaskFinished(outcome, dur)

		h.fulfill(val, err)
	}

	accept := func() {
		p.submitted.Add(1)
		p.metrics.TaskSubmitted()
	}
	if err := p.queue.Enqueue(task, accept); err != nil {
		return nil, err
	}
	return h, nil
}

// runTask calls fn, turning a panic into a *PanicError.
func runTask[T any](fn func() (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Shutdown stops accepting tasks, lets the workers drain everything already
// queued and waits for them to exit. Safe to call more than once.
func (p *Pool) Shutdown() {
	if p.queue.Close() {
		p.log.Info().Int("pending", p.queue.Len()).Msg("worker pool draining")
	}
	p.wg.Wait()
	p.log.Info().
		Int64("total_completed", p.completed.Load()).
		Msg("worker pool stopped")
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.cfg.NumWorkers
}

// Status is a point-in-time snapshot of the pool.
type Status struct {
	Accepting  bool  `json:"accepting"`
	Workers    int   `json:"workers"`
	Busy       int   `json:"busy"`
	Pending    int   `json:"pending"`
	MaxPending int   `json:"max_pending"`
	Submitted  int64 `json:"submitted"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// GetStatus returns the current status of the pool. Completed is read before
// Submitted so a snapshot never shows more completed than submitted tasks.
func (p *Pool) GetStatus() Status {
	completed := p.completed.Load()
	failed := p.failed.Load()
	return Status{
		Accepting:  !p.queue.Closed(),
		Workers:    p.cfg.NumWorkers,
		Busy:       int(p.busy.Load()),
		Pending:    p.queue.Len(),
		MaxPending: p.cfg.MaxPending,
		Submitted:  p.submitted.Load(),
		Completed:  completed,
		Failed:     failed,
	}
}
