// Package queue runs jobs one at a time, in submission order, on a single goroutine.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const queueSize = 1000

var ErrStopped = errors.New("queue is stopped")

type Job func(ctx context.Context) error

type request struct {
	ctx      context.Context
	job      Job
	enqueued time.Time
	response chan error
}

type Queue struct {
	queue  chan request
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    *slog.Logger
}

func New(log *slog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		queue:  make(chan request, queueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}

	go q.processQueue()

	return q
}

// Do submits job and waits for its result. The job receives ctx.
// A job whose ctx is done before it starts is not run.
func (q *Queue) Do(ctx context.Context, job Job) error {
	req := request{
		ctx:      ctx,
		job:      job,
		enqueued: time.Now(),
		response: make(chan error, 1),
	}

	select {
	case q.queue <- req:
	case <-q.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.response:
		return err
	case <-q.done:
		select {
		case err := <-req.response:
			return err
		default:
			return ErrStopped
		}
	}
}

// Stop lets the running job finish, fails every queued job with ErrStopped and waits.
func (q *Queue) Stop() {
	q.cancel()
	<-q.done
}

func (q *Queue) processQueue() {
	defer close(q.done)

	for {
		select {
		case req := <-q.queue:
			q.handleRequest(req)
		case <-q.ctx.Done():
			for {
				select {
				case req := <-q.queue:
					req.response <- ErrStopped
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) handleRequest(req request) {
	if err := req.ctx.Err(); err != nil {
		req.response <- err
		return
	}

	if backlog := len(q.queue); backlog > 0 {
		q.log.DebugContext(req.ctx, "Running queued job",
			"waited", time.Since(req.enqueued),
			"queueLen", backlog)
	}

	req.response <- req.job(req.ctx)
}
