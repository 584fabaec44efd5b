package service

import (
	"context"
	"log/slog"
	"sync"
)

// eventLoop runs posted tasks one at a time, in FIFO order, on a single goroutine.
// A task posted from inside another task runs on a later turn.
type eventLoop struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	stopped bool
	logger  *slog.Logger
}

func newEventLoop(logger *slog.Logger) *eventLoop {
	return &eventLoop{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// post queues task and never blocks. It reports false once the loop has stopped.
func (l *eventLoop) post(task func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *eventLoop) run(ctx context.Context) {
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
		for {
			if ctx.Err() != nil {
				return
			}
			task := l.next()
			if task == nil {
				break
			}
			l.runTask(task)
		}
	}
}

func (l *eventLoop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil
	}
	task := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return task
}

func (l *eventLoop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("auth event loop task panicked", "panic", r)
		}
	}()
	task()
}

func (l *eventLoop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	l.tasks = nil
}
