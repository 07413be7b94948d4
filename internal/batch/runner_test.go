package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type task struct {
	martCode   string
	adCreative string
}

func makeTasks(n int) []task {
	tasks := make([]task, n)
	for i := range tasks {
		tasks[i] = task{martCode: fmt.Sprintf("M%03d", i), adCreative: "poster"}
	}
	return tasks
}

func TestRun_InvokesEachTaskExactlyOnce(t *testing.T) {
	for _, k := range []int{1, 2, 7, 50} {
		for _, limit := range []int{-1, 0, 1, 3, 50, 100} {
			t.Run(fmt.Sprintf("k=%d/limit=%d", k, limit), func(t *testing.T) {
				tasks := makeTasks(k)

				var mu sync.Mutex
				calls := make(map[string]int)

				result := Run(context.Background(), tasks, limit, func(_ context.Context, tk task) (string, error) {
					mu.Lock()
					calls[tk.martCode]++
					mu.Unlock()
					return tk.martCode, nil
				})

				require.Len(t, calls, k)
				for code, n := range calls {
					assert.Equal(t, 1, n, "task %s invoked %d times", code, n)
				}
				assert.Len(t, result.Succeeded, k)
				assert.Empty(t, result.Failed)
				assert.Equal(t, k, result.Attempted())
			})
		}
	}
}

func TestRun_EmptyTasks(t *testing.T) {
	var called atomic.Int32
	result := Run(context.Background(), []task(nil), 4, func(context.Context, task) (int, error) {
		called.Add(1)
		return 0, nil
	})

	assert.Zero(t, called.Load())
	assert.Zero(t, result.Attempted())
}

func TestRun_FailureIsIsolated(t *testing.T) {
	tasks := makeTasks(20)
	bad := tasks[7]

	result := Run(context.Background(), tasks, 4, func(_ context.Context, tk task) (string, error) {
		if tk == bad {
			return "", errors.New("airbridge rejected")
		}
		return tk.martCode, nil
	})

	require.Len(t, result.Failed, 1)
	assert.Equal(t, bad, result.Failed[0].Task)
	assert.EqualError(t, result.Failed[0].Err, "airbridge rejected")
	assert.Len(t, result.Succeeded, 19)
}

func TestRun_PanicIsRecordedAgainstTask(t *testing.T) {
	tasks := makeTasks(10)
	bad := tasks[3]

	result := Run(context.Background(), tasks, 2, func(_ context.Context, tk task) (string, error) {
		if tk == bad {
			panic("boom")
		}
		return tk.martCode, nil
	})

	require.Len(t, result.Failed, 1)
	assert.Equal(t, bad, result.Failed[0].Task)

	var panicErr *PanicError
	require.ErrorAs(t, result.Failed[0].Err, &panicErr)
	assert.Equal(t, "boom", panicErr.Value)
	assert.Len(t, result.Succeeded, 9)
}

func TestRun_EveryTaskFails(t *testing.T) {
	tasks := makeTasks(6)

	result := Run(context.Background(), tasks, 3, func(context.Context, task) (string, error) {
		return "", errors.New("down")
	})

	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 6)

	seen := make(map[task]bool)
	for _, f := range result.Failed {
		assert.False(t, seen[f.Task], "duplicate failure entry for %v", f.Task)
		seen[f.Task] = true
	}
}

func TestRun_InFlightNeverExceedsLimit(t *testing.T) {
	const limit = 3
	tasks := makeTasks(30)

	var inFlight, peak atomic.Int32
	Run(context.Background(), tasks, limit, func(context.Context, task) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Positive(t, peak.Load())
}

func TestRun_DoesNotStopOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := makeTasks(5)
	result := Run(ctx, tasks, 2, func(ctx context.Context, tk task) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return tk.martCode, nil
	})

	assert.Equal(t, 5, result.Attempted())
	assert.Len(t, result.Failed, 5)
	for _, f := range result.Failed {
		assert.ErrorIs(t, f.Err, context.Canceled)
	}
}

func TestWorkers(t *testing.T) {
	tests := []struct {
		limit, count, want int
	}{
		{limit: 5, count: 10, want: 5},
		{limit: 10, count: 3, want: 3},
		{limit: 0, count: 3, want: 1},
		{limit: -4, count: 3, want: 1},
		{limit: 3, count: 0, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Workers(tt.limit, tt.count), "Workers(%d, %d)", tt.limit, tt.count)
	}
}
