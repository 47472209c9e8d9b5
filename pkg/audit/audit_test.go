package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/config"
	"github.com/devmail/webapp/pkg/metrics"
	"github.com/devmail/webapp/pkg/system"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*Event
	block  chan struct{}
	closed bool
	err    error
}

func (r *recordingSink) Write(_ context.Context, e *Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventPasswordResetSent, "a@x.com")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventPasswordResetSent, e.Type)
	assert.Equal(t, SeverityInfo, e.Severity)
	assert.Equal(t, time.UTC, e.Timestamp.Location())
	assert.NotEqual(t, e.ID, NewEvent(EventPasswordResetSent, "a@x.com").ID)
}

func TestLogSink(t *testing.T) {
	logger, logs := system.NewObservedLogger(zap.InfoLevel)
	sink := NewLogSink(logger)

	e := NewEvent(EventConfirmationSent, "a@x.com")
	e.CorrelationID = "req-1"
	e.Details = map[string]string{"userId": "u1"}
	require.NoError(t, sink.Write(context.Background(), e))

	entries := logs.FilterMessage("audit_event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, string(EventConfirmationSent), fields["event_type"])
	assert.Equal(t, "a@x.com", fields["recipient"])
	assert.Equal(t, "req-1", fields["correlation_id"])
	assert.Equal(t, "log", sink.Name())
	assert.NoError(t, sink.Close())
}

func TestLogSinkWarnsOnFailureEvents(t *testing.T) {
	logger, logs := system.NewObservedLogger(zap.WarnLevel)
	sink := NewLogSink(logger)

	require.NoError(t, sink.Write(context.Background(), NewEvent(EventConfirmationSent, "a@x.com")))
	failed := NewEvent(EventNotificationError, "b@x.com")
	failed.Severity = SeverityWarning
	require.NoError(t, sink.Write(context.Background(), failed))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "b@x.com", logs.All()[0].ContextMap()["recipient"])
}

func TestServiceDeliversToAllSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: errors.New("down")}
	s := NewService(zap.NewNop(), 10, a, b)

	s.Emit(NewEvent(EventTwoFactorSent, "a@x.com"))
	s.Emit(NewEvent(EventConfirmationSent, "b@x.com"))
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, 2, a.count())
	assert.Equal(t, 2, b.count())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestServiceDropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	s := NewService(zap.NewNop(), 1, sink)
	before := testutil.ToFloat64(metrics.AuditEventsDropped)

	// first event is taken by the worker and blocks, second fills the queue
	s.Emit(NewEvent(EventTwoFactorSent, "a@x.com"))
	require.Eventually(t, func() bool { return len(s.queue) == 0 }, time.Second, 5*time.Millisecond)
	s.Emit(NewEvent(EventTwoFactorSent, "b@x.com"))
	s.Emit(NewEvent(EventTwoFactorSent, "c@x.com"))

	assert.Equal(t, int64(1), s.Dropped())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AuditEventsDropped))

	close(sink.block)
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 2, sink.count())
}

func TestServiceEmitAfterClose(t *testing.T) {
	s := NewService(zap.NewNop(), 1)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	s.Emit(NewEvent(EventTwoFactorSent, "a@x.com"))
	assert.Equal(t, int64(1), s.Dropped())
}

func TestNilServiceIsNoop(t *testing.T) {
	var s *Service
	assert.NotPanics(t, func() { s.Emit(NewEvent(EventTwoFactorSent, "a@x.com")) })
	assert.NoError(t, s.Close(context.Background()))
}

func TestServiceCloseTimeout(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	defer close(sink.block)
	s := NewService(zap.NewNop(), 1, sink)
	s.Emit(NewEvent(EventTwoFactorSent, "a@x.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorContains(t, s.Close(ctx), "not drained")
}

func TestNewFromConfig(t *testing.T) {
	s, err := NewFromConfig(config.Audit{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = NewFromConfig(config.Audit{Enabled: true}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, s.sinks, 1)
	assert.Equal(t, "log", s.sinks[0].Name())
	require.NoError(t, s.Close(context.Background()))

	s, err = NewFromConfig(config.Audit{Enabled: true, Kafka: config.KafkaAudit{
		Brokers: []string{"127.0.0.1:9092"},
		Topic:   "webapp-audit",
	}}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, s.sinks, 2)
	assert.Equal(t, "kafka", s.sinks[1].Name())
	require.NoError(t, s.Close(context.Background()))

	_, err = NewFromConfig(config.Audit{Enabled: true, Kafka: config.KafkaAudit{
		Brokers:       []string{"127.0.0.1:9092"},
		Topic:         "webapp-audit",
		SASLMechanism: "GSSAPI",
	}}, zap.NewNop())
	assert.Error(t, err)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSinkWrite(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSinkWithWriter(w, zap.NewNop())

	e := NewEvent(EventPasswordResetSent, "a@x.com")
	e.CorrelationID = "req-9"
	require.NoError(t, sink.Write(context.Background(), e))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, e.ID, string(msg.Key))
	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.Recipient, decoded.Recipient)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, string(EventPasswordResetSent), headers["event-type"])
	assert.Equal(t, "req-9", headers["correlation-id"])
}

func TestKafkaSinkWriteError(t *testing.T) {
	w := &fakeWriter{err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}
	sink := newKafkaSinkWithWriter(w, zap.NewNop())
	before := testutil.ToFloat64(metrics.AuditSinkErrors.WithLabelValues("kafka", "network"))

	err := sink.Write(context.Background(), NewEvent(EventTwoFactorSent, "a@x.com"))
	assert.ErrorContains(t, err, "(network)")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AuditSinkErrors.WithLabelValues("kafka", "network")))
}

func TestKafkaSinkClose(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSinkWithWriter(w, zap.NewNop())

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
	assert.ErrorContains(t, sink.Write(context.Background(), NewEvent(EventTwoFactorSent, "a@x.com")), "closed")
}

func TestNewKafkaSinkValidation(t *testing.T) {
	_, err := NewKafkaSink(config.KafkaAudit{Topic: "t"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewKafkaSink(config.KafkaAudit{Brokers: []string{"b:9092"}}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewKafkaSink(config.KafkaAudit{Brokers: []string{"b:9092"}, Topic: "t", TLS: true, CAFile: "/nonexistent/ca.pem"}, zap.NewNop())
	assert.Error(t, err)
}

func TestClassifyKafkaError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "cancelled"},
		{&net.DNSError{Err: "no such host", Name: "kafka"}, "dns"},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, "network"},
		{errors.New("SASL handshake failed"), "auth"},
		{errors.New("topic authorization failed"), "authorization"},
		{errors.New("not the leader for partition"), "broker"},
		{errors.New("unknown topic or partition"), "topic"},
		{errors.New("x509: certificate signed by unknown authority"), "tls"},
		{errors.New("something else"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyKafkaError(tt.err), "%v", tt.err)
	}
}

func TestBuildSASLMechanism(t *testing.T) {
	for _, m := range []string{"PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"} {
		mech, err := buildSASLMechanism(m, "user", "pass")
		require.NoError(t, err, m)
		assert.Equal(t, m, mech.Name())
	}
	_, err := buildSASLMechanism("GSSAPI", "user", "pass")
	assert.Error(t, err)
}

func TestCompressionCodec(t *testing.T) {
	assert.Equal(t, kafka.Snappy, compressionCodec("", zap.NewNop()))
	assert.Equal(t, kafka.Gzip, compressionCodec("gzip", zap.NewNop()))
	assert.Equal(t, kafka.Compression(0), compressionCodec("none", zap.NewNop()))
	assert.Equal(t, kafka.Snappy, compressionCodec("brotli", zap.NewNop()))
}
