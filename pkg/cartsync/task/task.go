// Package task runs fire-and-forget side effects in submission order and
// hands back a future for each one, so callers never block on them while
// tests can still wait for and inspect their outcome.
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/EcommerceGo/pkg/logger"
)

var tasksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cartsync_tasks_total",
		Help: "Background cart tasks by lane, operation and result",
	},
	[]string{"lane", "op", "result"},
)

// Func is the body of a task.
type Func func(ctx context.Context) error

// Task is the future of a dispatched Func.
type Task struct {
	op   string
	done chan struct{}
	err  error
}

// Op returns the operation name the task was submitted under.
func (t *Task) Op() string {
	return t.op
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task's error. It is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatcher runs tasks one after another in the order they were submitted.
// Each task starts only after its predecessor finished, without blocking the
// submitter. Failures are logged and counted, never returned to the submitter.
type Dispatcher struct {
	lane    string
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	last *Task
	wg   sync.WaitGroup
}

// NewDispatcher creates a dispatcher. lane names it in logs and metrics;
// timeout bounds each task (zero means no bound beyond the parent context).
func NewDispatcher(lane string, timeout time.Duration, l *slog.Logger) *Dispatcher {
	return &Dispatcher{
		lane:    lane,
		timeout: timeout,
		logger:  logger.OrDefault(l),
	}
}

// Go schedules fn after every previously submitted task. The task context
// keeps ctx's values but not its cancellation, so a finished request does
// not abort the side effects it started.
func (d *Dispatcher) Go(ctx context.Context, op string, fn Func) *Task {
	t := &Task{op: op, done: make(chan struct{})}

	d.mu.Lock()
	prev := d.last
	d.last = t
	d.wg.Add(1)
	d.mu.Unlock()

	taskCtx := context.WithoutCancel(ctx)

	go func() {
		defer d.wg.Done()
		defer close(t.done)

		if prev != nil {
			<-prev.done
		}

		runCtx := taskCtx
		if d.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(taskCtx, d.timeout)
			defer cancel()
		}

		t.err = fn(runCtx)
		if t.err != nil {
			tasksTotal.WithLabelValues(d.lane, op, "error").Inc()
			logger.WithContext(runCtx, d.logger).WarnContext(runCtx, "cart task failed",
				slog.String("lane", d.lane),
				slog.String("op", op),
				slog.String("error", t.err.Error()),
			)
			return
		}
		tasksTotal.WithLabelValues(d.lane, op, "ok").Inc()
	}()

	return t
}

// Wait blocks until every task submitted so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
