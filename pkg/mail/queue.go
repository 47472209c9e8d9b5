/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/metrics"
)

const (
	defaultRetryCount     = 3
	defaultRetryBackoffMs = 1000
	defaultQueueSize      = 1000

	// maxBackoff caps the exponential retry delay.
	maxBackoff = 30 * time.Minute
	retryTick  = 50 * time.Millisecond
)

var (
	ErrQueueClosed = errors.New("mail queue is shutting down")
	ErrQueueFull   = errors.New("mail queue is full")
)

// QueueItem is a single email awaiting delivery.
type QueueItem struct {
	ID        string
	Receivers []string
	Subject   string
	Body      string
	Attempt   int
	CreatedAt time.Time
	NextRetry time.Time
	Succeeded bool
}

// Queue delivers emails asynchronously through a Transport, retrying failed
// attempts with exponential backoff.
type Queue struct {
	transport      Transport
	items          chan *QueueItem
	log            *zap.SugaredLogger
	maxAttempts    int
	initialBackoff time.Duration
	capacity       int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a queue. Non-positive arguments select the defaults.
// retryCount is the number of retries after the first attempt.
func NewQueue(transport Transport, log *zap.SugaredLogger, retryCount, retryBackoffMs, queueSize int) *Queue {
	if retryCount <= 0 {
		retryCount = defaultRetryCount
	}
	if retryBackoffMs <= 0 {
		retryBackoffMs = defaultRetryBackoffMs
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	log = log.Named("mail-queue")
	log.Infow("Initializing mail queue",
		"retryCount", retryCount,
		"retryBackoffMs", retryBackoffMs,
		"queueSize", queueSize)

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		transport:      transport,
		items:          make(chan *QueueItem, queueSize),
		log:            log,
		maxAttempts:    retryCount + 1,
		initialBackoff: time.Duration(retryBackoffMs) * time.Millisecond,
		capacity:       queueSize,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start begins the background worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
	q.log.Info("Mail queue worker started")
}

// Enqueue adds an email to the queue. An empty id is replaced by a random one.
func (q *Queue) Enqueue(id string, receivers []string, subject, body string) error {
	host := q.transport.GetHost()
	if len(receivers) == 0 {
		metrics.MailQueueDropped.WithLabelValues(host).Inc()
		return fmt.Errorf("cannot enqueue email with no receivers")
	}
	if q.ctx.Err() != nil {
		metrics.MailQueueDropped.WithLabelValues(host).Inc()
		return ErrQueueClosed
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	item := &QueueItem{
		ID:        id,
		Receivers: receivers,
		Subject:   subject,
		Body:      body,
		CreatedAt: now,
		NextRetry: now,
	}

	select {
	case q.items <- item:
		metrics.MailQueued.WithLabelValues(host).Inc()
		q.log.Debugw("Email queued", "id", id, "receivers", len(receivers), "subject", subject)
		return nil
	case <-q.ctx.Done():
		metrics.MailQueueDropped.WithLabelValues(host).Inc()
		return ErrQueueClosed
	default:
		metrics.MailQueueDropped.WithLabelValues(host).Inc()
		q.log.Errorw("Mail queue is full, dropping message", "id", id, "queueSize", q.capacity)
		return fmt.Errorf("%w (capacity: %d)", ErrQueueFull, q.capacity)
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	var pending []*QueueItem
	ticker := time.NewTicker(retryTick)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			q.drain(pending)
			return
		case item := <-q.items:
			if q.attempt(item) {
				pending = append(pending, item)
			}
		case now := <-ticker.C:
			kept := pending[:0]
			for _, item := range pending {
				if now.Before(item.NextRetry) || q.attempt(item) {
					kept = append(kept, item)
				}
			}
			pending = kept
		}
	}
}

// attempt sends item once and reports whether it should be retried later.
func (q *Queue) attempt(item *QueueItem) bool {
	item.Attempt++
	host := q.transport.GetHost()

	err := q.transport.Send(item.Receivers, item.Subject, item.Body)
	if err == nil {
		item.Succeeded = true
		q.log.Infow("Queued email sent", "id", item.ID, "attempt", item.Attempt, "subject", item.Subject)
		return false
	}

	if item.Attempt >= q.maxAttempts {
		metrics.MailFailed.WithLabelValues(host).Inc()
		q.log.Errorw("Email send failed after all retries",
			"id", item.ID,
			"attempts", item.Attempt,
			"error", err,
			"subject", item.Subject)
		return false
	}

	backoff := q.backoff(item.Attempt)
	item.NextRetry = time.Now().Add(backoff)
	metrics.MailRetryScheduled.WithLabelValues(host).Inc()
	q.log.Warnw("Email send failed, scheduling retry",
		"id", item.ID,
		"attempt", item.Attempt,
		"error", err,
		"retryIn", backoff.String())
	return true
}

// drain makes a final attempt for queued and pending items on shutdown.
func (q *Queue) drain(pending []*QueueItem) {
	for len(q.items) > 0 {
		pending = append(pending, <-q.items)
	}
	q.log.Infow("Processing pending items on shutdown", "count", len(pending))
	for _, item := range pending {
		if !item.Succeeded && item.Attempt < q.maxAttempts {
			q.attempt(item)
		}
	}
}

// backoff doubles the initial delay for every failed attempt, capped at maxBackoff.
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.initialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Stop cancels the worker and waits for the shutdown drain to finish.
func (q *Queue) Stop(ctx context.Context) error {
	q.log.Info("Stopping mail queue")
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.log.Info("Mail queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.log.Warnw("Mail queue shutdown timeout, some items may not have been processed")
		return ctx.Err()
	}
}

// Length returns the number of items waiting for their first attempt.
func (q *Queue) Length() int {
	return len(q.items)
}

// QueueSender exposes a Queue as an EmailSender.
type QueueSender struct {
	queue *Queue
}

var (
	_ EmailSender = (*QueueSender)(nil)
	_ Closer      = (*QueueSender)(nil)
)

func NewQueueSender(queue *Queue) *QueueSender {
	return &QueueSender{queue: queue}
}

// SendEmail enqueues the email; delivery happens in the background.
func (s *QueueSender) SendEmail(ctx context.Context, email, subject, htmlMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.queue.Enqueue(uuid.NewString(), []string{email}, subject, htmlMessage)
}

// Close stops the underlying queue.
func (s *QueueSender) Close(ctx context.Context) error {
	return s.queue.Stop(ctx)
}
