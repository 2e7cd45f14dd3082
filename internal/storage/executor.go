package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Executor is the bounded worker pool used for all storage I/O. Background
// tasks run through the same pool so I/O concurrency stays capped.
type Executor struct {
	tasks chan func()
	wg    sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// NewExecutor starts a pool with the given number of workers.
func NewExecutor(workers int) *Executor {
	e := &Executor{
		tasks:  make(chan func(), workers*16),
		closed: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.tasks:
			e.run(task)
		case <-e.closed:
			// drain whatever was queued before shutdown
			for {
				select {
				case task := <-e.tasks:
					e.run(task)
				default:
					return
				}
			}
		}
	}
}

func (e *Executor) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("panic in storage task")
		}
	}()
	task()
}

// Submit queues a task, blocking if the queue is full. Tasks submitted
// after Close are dropped.
func (e *Executor) Submit(task func()) {
	select {
	case <-e.closed:
		return
	default:
	}
	select {
	case e.tasks <- task:
	case <-e.closed:
	}
}

// ScheduleRepeating runs task every period on the pool, starting after
// initialDelay, until the context is cancelled.
func (e *Executor) ScheduleRepeating(ctx context.Context, initialDelay, period time.Duration, task func()) {
	go func() {
		timer := time.NewTimer(initialDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		case <-e.closed:
			return
		}
		e.Submit(task)

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Submit(task)
			case <-ctx.Done():
				return
			case <-e.closed:
				return
			}
		}
	}()
}

// Close stops accepting tasks and waits for in-flight work to finish.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
	e.wg.Wait()
}
