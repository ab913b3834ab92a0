package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"easymanager/internal/config"
)

var defaultBackoffs = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

// Queue hands messages to background workers so callers never wait on SMTP.
// A full queue drops the message.
type Queue struct {
	mailer      Mailer
	jobs        chan Message
	workers     int
	maxAttempts int
	backoffs    []time.Duration
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

type QueueOption func(*Queue)

func WithBackoffs(backoffs ...time.Duration) QueueOption {
	return func(q *Queue) { q.backoffs = backoffs }
}

func NewQueue(mailer Mailer, cfg config.NotifyConfig, logger *zap.Logger, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		mailer:      mailer,
		jobs:        make(chan Message, max(cfg.QueueSize, 1)),
		workers:     max(cfg.Workers, 1),
		maxAttempts: max(cfg.MaxAttempts, 1),
		backoffs:    defaultBackoffs,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.logger.Info("notification queue started", zap.Int("workers", q.workers))
}

// Enqueue reports whether the message was accepted.
func (q *Queue) Enqueue(msg Message) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("notification queue closed, message dropped", zap.String("to", msg.To))
		return false
	}

	select {
	case q.jobs <- msg:
		return true
	default:
		q.logger.Warn("notification queue full, message dropped",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
		)
		return false
	}
}

// Stop closes the queue and waits for queued messages to drain. When ctx
// ends first, pending retries are abandoned.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for msg := range q.jobs {
		q.deliver(msg)
	}
}

func (q *Queue) deliver(msg Message) {
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		err := q.mailer.Send(q.ctx, msg)
		if err == nil {
			q.logger.Info("notification sent", zap.String("to", msg.To), zap.Int("attempt", attempt))
			return
		}

		if attempt == q.maxAttempts || q.ctx.Err() != nil {
			q.logger.Error("notification failed",
				zap.String("to", msg.To),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}

		wait := q.backoff(attempt)
		q.logger.Warn("notification failed, retrying",
			zap.String("to", msg.To),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		select {
		case <-q.ctx.Done():
			q.logger.Error("notification abandoned on shutdown", zap.String("to", msg.To))
			return
		case <-time.After(wait):
		}
	}
}

func (q *Queue) backoff(attempt int) time.Duration {
	if len(q.backoffs) == 0 {
		return 0
	}
	if attempt > len(q.backoffs) {
		return q.backoffs[len(q.backoffs)-1]
	}
	return q.backoffs[attempt-1]
}
