/*
Copyright 2024.

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

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/config"
	"github.com/devmail/webapp/pkg/metrics"
)

const (
	defaultQueueSize    = 1000
	defaultWriteTimeout = 5 * time.Second
)

// Service fans queued events out to every sink from a single worker.
type Service struct {
	sinks        []Sink
	queue        chan *Event
	logger       *zap.Logger
	writeTimeout time.Duration

	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewService starts the worker. queueSize <= 0 uses the default.
func NewService(logger *zap.Logger, queueSize int, sinks ...Sink) *Service {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &Service{
		sinks:        sinks,
		queue:        make(chan *Event, queueSize),
		logger:       logger.Named("audit-service"),
		writeTimeout: defaultWriteTimeout,
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// NewFromConfig returns nil when auditing is disabled. The log sink is always
// present; Kafka is added when brokers are configured.
func NewFromConfig(cfg config.Audit, logger *zap.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	sinks := []Sink{NewLogSink(logger)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := NewKafkaSink(cfg.Kafka, logger)
		if err != nil {
			return nil, fmt.Errorf("audit kafka sink: %w", err)
		}
		sinks = append(sinks, kafkaSink)
	}
	return NewService(logger, cfg.QueueSize, sinks...), nil
}

// Emit queues the event without blocking. Events are dropped when the queue
// is full or the service is closed. A nil Service discards everything.
func (s *Service) Emit(event *Event) {
	if s == nil || event == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(event, "closed")
		return
	}
	select {
	case s.queue <- event:
		metrics.AuditEvents.WithLabelValues(string(event.Type)).Inc()
	default:
		s.drop(event, "queue full")
	}
}

func (s *Service) drop(event *Event, reason string) {
	s.dropped.Add(1)
	metrics.AuditEventsDropped.Inc()
	s.logger.Warn("audit event dropped",
		zap.String("reason", reason),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))
}

// Dropped reports how many events were discarded.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Service) worker() {
	defer s.wg.Done()
	for event := range s.queue {
		s.write(event)
	}
}

func (s *Service) write(event *Event) {
	for _, sink := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		if err := sink.Write(ctx, event); err != nil {
			s.logger.Warn("audit sink write failed",
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events, drains the queue, and closes every sink.
func (s *Service) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("audit queue not drained: %w", ctx.Err()))
	}
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s sink: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
