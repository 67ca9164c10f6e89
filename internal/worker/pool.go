package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PoolMetrics provides metrics about the worker pool's performance
type PoolMetrics struct {
	TotalTasks         int64
	CompletedTasks     int64
	FailedTasks        int64
	CurrentWorkers     int64
	PeakWorkers        int64
	AverageExecutionMs int64
	TotalExecutionMs   int64
}

// Task represents a unit of work to be executed
type Task func(ctx context.Context) error

// job is a queued task plus the callback run once its metrics are recorded
type job struct {
	task Task
	done func()
}

// Pool manages a fixed set of workers executing tasks concurrently
type Pool struct {
	maxWorkers    int
	tasks         chan job
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	activeWorkers int64
	stopping      int32

	mu      sync.Mutex
	metrics PoolMetrics
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(maxWorkers int) (*Pool, error) {
	if maxWorkers <= 0 {
		return nil, fmt.Errorf("maxWorkers must be greater than 0, got %d", maxWorkers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		maxWorkers: maxWorkers,
		tasks:      make(chan job, maxWorkers*2),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop stops accepting tasks and waits for the workers to exit
func (p *Pool) Stop() {
	if !atomic.CompareAndSwapInt32(&p.stopping, 0, 1) {
		return
	}

	p.cancel()
	p.wg.Wait()
	close(p.tasks)
}

// GetMetrics returns a snapshot of the pool metrics
func (p *Pool) GetMetrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.metrics
	m.CurrentWorkers = atomic.LoadInt64(&p.activeWorkers)
	if m.CompletedTasks+m.FailedTasks > 0 {
		m.AverageExecutionMs = m.TotalExecutionMs / (m.CompletedTasks + m.FailedTasks)
	}
	return m
}

func (p *Pool) worker() {
	defer p.wg.Done()

	current := atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)

	p.mu.Lock()
	if current > p.metrics.PeakWorkers {
		p.metrics.PeakWorkers = current
	}
	p.mu.Unlock()

	for {
		select {
		case j := <-p.tasks:
			p.run(p.ctx, j)
		case <-p.ctx.Done():
			// Drain whatever was queued before the stop signal
			for {
				select {
				case j := <-p.tasks:
					p.run(context.Background(), j)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(ctx context.Context, j job) {
	start := time.Now()
	err := j.task(ctx)
	elapsed := time.Since(start).Milliseconds()

	p.mu.Lock()
	p.metrics.TotalExecutionMs += elapsed
	if err != nil {
		p.metrics.FailedTasks++
	} else {
		p.metrics.CompletedTasks++
	}
	p.mu.Unlock()

	if j.done != nil {
		j.done()
	}
}

// ExecuteTasks runs tasks on the pool and blocks until all of them finished
// and are counted in the metrics.
// Tasks that were not started because ctx was cancelled report ctx.Err().
// The returned error joins every task failure.
func (p *Pool) ExecuteTasks(ctx context.Context, tasks []Task) error {
	if atomic.LoadInt32(&p.stopping) == 1 {
		return errors.New("worker pool is stopped")
	}

	p.mu.Lock()
	p.metrics.TotalTasks += int64(len(tasks))
	p.mu.Unlock()

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		errs   []error
		record = func(err error) {
			errMu.Lock()
			errs = append(errs, err)
			errMu.Unlock()
		}
	)

	for _, task := range tasks {
		wg.Add(1)
		wrapped := func(_ context.Context) error {
			if err := ctx.Err(); err != nil {
				record(err)
				return err
			}
			if err := task(ctx); err != nil {
				record(err)
				return err
			}
			return nil
		}

		select {
		case p.tasks <- job{task: wrapped, done: wg.Done}:
		case <-ctx.Done():
			wg.Done()
			record(ctx.Err())
		}
	}

	wg.Wait()
	return errors.Join(errs...)
}
