package session

import (
	"errors"
	"sync"

	glist "github.com/bahlo/generic-list-go"
	"go.uber.org/zap"
)

// ErrQueueClosed is returned when work is submitted to a closed queue.
var ErrQueueClosed = errors.New("execution queue is closed")

// Queue runs submitted jobs one at a time, in submission order, on a single
// worker goroutine. A job starts only after the previous job has returned.
type Queue struct {
	mu       sync.Mutex
	jobs     *glist.List[func()]
	closed   bool
	signalCh chan struct{}
	doneCh   chan struct{}
	lg       *zap.Logger
}

// NewQueue creates a queue and starts its worker.
func NewQueue(lg *zap.Logger) *Queue {
	q := &Queue{
		jobs:     glist.New[func()](),
		signalCh: make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
		lg:       lg,
	}
	go q.run()
	return q
}

// Enqueue appends a job. It never blocks on running jobs.
func (q *Queue) Enqueue(job func()) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.jobs.PushBack(job)
	q.mu.Unlock()
	q.notify()
	return nil
}

// Len returns the number of jobs waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs.Len()
}

// Close stops accepting jobs, lets the worker finish the jobs already queued
// and waits for it to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.doneCh
		return
	}
	q.closed = true
	pending := q.jobs.Len()
	q.mu.Unlock()

	if pending > 0 {
		q.lg.Info("draining queue", zap.Int("pending", pending))
	}
	q.notify()
	<-q.doneCh
}

func (q *Queue) notify() {
	select {
	case q.signalCh <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.doneCh)
	for range q.signalCh {
		for {
			job, closed := q.next()
			if job == nil {
				if closed {
					return
				}
				break
			}
			job()
		}
	}
}

func (q *Queue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.jobs.Front()
	if front == nil {
		return nil, q.closed
	}
	q.jobs.Remove(front)
	return front.Value, q.closed
}
