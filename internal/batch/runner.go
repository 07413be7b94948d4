// Package batch runs a fixed list of independent tasks with bounded concurrency.
//
// Workers claim tasks from a shared cursor until the list is exhausted. A task
// failure, returned or panicked, is recorded against that task and never stops
// the rest of the batch. There is no cancellation: Run returns once every task
// has been attempted exactly once.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/metrics"
)

// Failure records the error produced by a single task.
type Failure[T any] struct {
	Task T
	Err  error
}

// Result collects the outcome of a batch. Order across workers is unspecified.
type Result[T, R any] struct {
	Succeeded []R
	Failed    []Failure[T]
}

// Attempted is the number of tasks that ran.
func (r Result[T, R]) Attempted() int {
	return len(r.Succeeded) + len(r.Failed)
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Workers returns the number of workers Run starts for count tasks.
func Workers(limit, count int) int {
	return max(1, min(limit, count))
}

type workerResult[T, R any] struct {
	succeeded []R
	failed    []Failure[T]
}

// Run executes fn for every task with at most limit tasks in flight.
func Run[T, R any](ctx context.Context, tasks []T, limit int, fn func(ctx context.Context, task T) (R, error)) Result[T, R] {
	var result Result[T, R]
	if len(tasks) == 0 {
		return result
	}

	startTime := time.Now()
	workerCount := Workers(limit, len(tasks))
	buffers := make([]workerResult[T, R], workerCount)

	var cursor atomic.Int64
	var g errgroup.Group

	metrics.ActiveBatchWorkers.Add(float64(workerCount))
	for w := 0; w < workerCount; w++ {
		buf := &buffers[w]
		g.Go(func() error {
			defer metrics.ActiveBatchWorkers.Dec()
			for {
				i := int(cursor.Add(1) - 1)
				if i >= len(tasks) {
					return nil
				}
				out, err := runTask(ctx, fn, tasks[i])
				if err != nil {
					metrics.BatchTasksTotal.WithLabelValues("failed").Inc()
					buf.failed = append(buf.failed, Failure[T]{Task: tasks[i], Err: err})
					continue
				}
				metrics.BatchTasksTotal.WithLabelValues("succeeded").Inc()
				buf.succeeded = append(buf.succeeded, out)
			}
		})
	}
	// workers never return an error
	_ = g.Wait()

	for _, buf := range buffers {
		result.Succeeded = append(result.Succeeded, buf.succeeded...)
		result.Failed = append(result.Failed, buf.failed...)
	}

	metrics.BatchDuration.Observe(time.Since(startTime).Seconds())
	logger.Logger.Debug().
		Int("tasks", len(tasks)).
		Int("workers", workerCount).
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Dur("duration", time.Since(startTime)).
		Msg("Batch finished")

	return result
}

func runTask[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), task T) (out R, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Logger.Error().Interface("panic", r).Bytes("stack", stack).Msg("Batch task panicked")
			err = &PanicError{Value: r, Stack: stack}
		}
	}()
	return fn(ctx, task)
}
