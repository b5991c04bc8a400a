package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned when a mail is offered while every slot in the
// queue is taken. The mail is dropped.
var ErrQueueFull = errors.New("notify: mail queue is full")

// ErrQueueStopped is returned for mail offered after Stop.
var ErrQueueStopped = errors.New("notify: mail queue is stopped")

// QueueConfig sizes a Queue.
type QueueConfig struct {
	// Workers is the number of goroutines delivering mail.
	Workers int
	// Size is how many undelivered mails may wait.
	Size int
	// SendTimeout bounds a single delivery.
	SendTimeout time.Duration
}

// DefaultQueueConfig suits the log mailer and a small SMTP relay alike.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Workers:     2,
		Size:        64,
		SendTimeout: 10 * time.Second,
	}
}

type job struct {
	kind  string
	email string
	name  string
}

// Queue is a Mailer that hands mail to a pool of background workers, so a
// slow mail provider never holds up signup or account deletion.
//
// LIFECYCLE:
//
//	q := NewQueue(next, cfg, logger)
//	q.Start()      // workers begin draining
//	...            // SendWelcome / SendCancellation enqueue and return
//	q.Stop()       // no new mail; queued mail is still delivered
type Queue struct {
	next   Mailer
	config QueueConfig
	logger *slog.Logger

	jobs      chan job
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.RWMutex
	stopped   bool
}

var _ Mailer = (*Queue)(nil)

func NewQueue(next Mailer, cfg QueueConfig, logger *slog.Logger) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Size < 0 {
		cfg.Size = 0
	}
	return &Queue{
		next:   next,
		config: cfg,
		logger: logger,
		jobs:   make(chan job, cfg.Size),
		done:   make(chan struct{}),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.logger.Info("starting mail queue",
			slog.Int("workers", q.config.Workers),
			slog.Int("size", q.config.Size),
		)
		for i := 0; i < q.config.Workers; i++ {
			q.wg.Add(1)
			go q.worker()
		}
	})
}

// Stop refuses new mail, delivers what is already queued and waits for the
// workers to exit. It is safe to call more than once, and before Start.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.done)
		q.mu.Unlock()

		q.wg.Wait()

		// Without Start there are no workers; deliver the leftovers here.
		for {
			select {
			case j := <-q.jobs:
				q.deliver(j)
			default:
				q.logger.Info("mail queue stopped")
				return
			}
		}
	})
}

func (q *Queue) SendWelcome(ctx context.Context, email, name string) error {
	return q.enqueue(job{kind: "welcome", email: email, name: name})
}

func (q *Queue) SendCancellation(ctx context.Context, email, name string) error {
	return q.enqueue(job{kind: "cancellation", email: email, name: name})
}

func (q *Queue) enqueue(j job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		return ErrQueueStopped
	}

	select {
	case q.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case j := <-q.jobs:
			q.deliver(j)
		case <-q.done:
			// Drain what was queued before Stop.
			for {
				select {
				case j := <-q.jobs:
					q.deliver(j)
				default:
					return
				}
			}
		}
	}
}

// deliver runs one job against the wrapped mailer. Failures are logged
// because nobody is waiting for the result.
func (q *Queue) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.config.SendTimeout)
	defer cancel()

	var err error
	switch j.kind {
	case "welcome":
		err = q.next.SendWelcome(ctx, j.email, j.name)
	case "cancellation":
		err = q.next.SendCancellation(ctx, j.email, j.name)
	}
	if err != nil {
		q.logger.Error("mail delivery failed",
			slog.String("kind", j.kind),
			slog.String("to", j.email),
			slog.String("error", err.Error()),
		)
	}
}
