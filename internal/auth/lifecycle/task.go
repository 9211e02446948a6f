package lifecycle

import (
	"context"
	"time"
)

// task is a cancellable recurring job. Stop only cancels; it never waits,
// so it may be called from inside the job itself.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startTask(interval time.Duration, fn func(ctx context.Context)) *task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return t
}

// Stop cancels the task. Safe on a nil task and safe to repeat.
func (t *task) Stop() {
	if t != nil {
		t.cancel()
	}
}

// Done is closed once the job goroutine has exited.
func (t *task) Done() <-chan struct{} {
	return t.done
}
