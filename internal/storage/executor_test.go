package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExecutorSubmit(t *testing.T) {
	e := NewExecutor(4)
	defer e.Close()

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		e.Submit(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(50), count.Load())
}

func TestExecutorSurvivesPanic(t *testing.T) {
	e := NewExecutor(1)
	defer e.Close()

	e.Submit(func() { panic("boom") })

	done := make(chan struct{})
	e.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestExecutorScheduleRepeating(t *testing.T) {
	e := NewExecutor(1)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	e.ScheduleRepeating(ctx, 10*time.Millisecond, 20*time.Millisecond, func() {
		runs.Add(1)
	})

	time.Sleep(120 * time.Millisecond)
	cancel()
	got := runs.Load()
	assert.GreaterOrEqual(t, got, int32(2))

	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), got+1, "task should stop after cancel")
}

func TestExecutorCloseWaitsForQueued(t *testing.T) {
	e := NewExecutor(1)

	var done atomic.Bool
	e.Submit(func() {
		time.Sleep(30 * time.Millisecond)
		done.Store(true)
	})
	e.Close()
	assert.True(t, done.Load())
}

func TestExecutorSubmitAfterClose(t *testing.T) {
	e := NewExecutor(1)
	e.Close()
	// must not panic or block
	e.Submit(func() {})
}
