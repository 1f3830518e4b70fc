package backdrop

import "sync"

type task func()

// taskQueue is an unbounded MPSC queue of tasks for the scene loop.
// Push is safe from any goroutine; Consume is called by the loop only.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	ready  chan struct{}
	closed bool
}

func newTaskQueue() *taskQueue {
	return &taskQueue{ready: make(chan struct{}, 1)}
}

// Push enqueues t and wakes the loop. It reports false once the queue is
// closed, in which case t is dropped.
func (q *taskQueue) Push(t task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Consume returns all pending tasks in FIFO order.
func (q *taskQueue) Consume() []task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	out := q.tasks
	q.tasks = nil
	return out
}

// Ready is signalled after every Push.
func (q *taskQueue) Ready() <-chan struct{} {
	return q.ready
}

// Close drops pending tasks and rejects new ones.
func (q *taskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.tasks = nil
	q.mu.Unlock()
}

// Len returns the number of pending tasks.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
