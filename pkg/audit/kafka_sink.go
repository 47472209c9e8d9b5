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
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/config"
	"github.com/devmail/webapp/pkg/metrics"
)

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes audit events to a Kafka topic.
type KafkaSink struct {
	name   string
	writer messageWriter
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewKafkaSink creates a KafkaSink from the audit.kafka config section.
func NewKafkaSink(cfg config.KafkaAudit, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	transport := &kafka.Transport{}
	if cfg.TLS {
		tlsConfig, err := buildTLSConfig(cfg.CAFile, cfg.InsecureSkipVerify)
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS config: %w", err)
		}
		transport.TLS = tlsConfig
	}
	if cfg.SASLMechanism != "" {
		mechanism, err := buildSASLMechanism(cfg.SASLMechanism, cfg.SASLUser, cfg.SASLPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to build SASL mechanism: %w", err)
		}
		transport.SASL = mechanism
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           time.Second,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		Compression:            compressionCodec(cfg.Compression, logger),
		Transport:              transport,
		AllowAutoTopicCreation: false,
	}

	logger.Info("Kafka audit sink created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Bool("tls_enabled", cfg.TLS),
		zap.Bool("sasl_enabled", cfg.SASLMechanism != ""))

	return newKafkaSinkWithWriter(writer, logger), nil
}

func newKafkaSinkWithWriter(w messageWriter, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		name:   "kafka",
		writer: w,
		logger: logger.Named("kafka-audit"),
	}
}

func compressionCodec(codec string, logger *zap.Logger) kafka.Compression {
	switch codec {
	case "none":
		return 0
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "snappy", "":
		return kafka.Snappy
	default:
		logger.Warn("unknown compression codec, defaulting to snappy", zap.String("codec", codec))
		return kafka.Snappy
	}
}

// kafkaErrorRules maps message fragments to metric labels, first match wins.
var kafkaErrorRules = []struct {
	fragments []string
	label     string
}{
	{[]string{"SASL", "authentication"}, "auth"},
	{[]string{"authorization", "ACL"}, "authorization"},
	{[]string{"connection refused", "no such host"}, "network"},
	{[]string{"broker", "leader"}, "broker"},
	{[]string{"topic"}, "topic"},
	{[]string{"TLS", "certificate"}, "tls"},
}

// classifyKafkaError returns the error_type label for a failed write.
func classifyKafkaError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	msg := err.Error()
	for _, rule := range kafkaErrorRules {
		for _, f := range rule.fragments {
			if strings.Contains(msg, f) {
				return rule.label
			}
		}
	}
	return "other"
}

func eventHeaders(event *Event) []kafka.Header {
	headers := []kafka.Header{
		{Key: "event-type", Value: []byte(event.Type)},
		{Key: "severity", Value: []byte(event.Severity)},
		{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
	}
	if event.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "correlation-id", Value: []byte(event.CorrelationID)})
	}
	return headers
}

// Write sends an audit event to Kafka keyed by event ID.
func (s *KafkaSink) Write(ctx context.Context, event *Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metrics.AuditSinkErrors.WithLabelValues(s.name, "closed").Inc()
		return errors.New("kafka sink is closed")
	}
	s.mu.Unlock()

	start := time.Now()
	value, err := json.Marshal(event)
	if err != nil {
		metrics.AuditSinkErrors.WithLabelValues(s.name, "serialization").Inc()
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.ID),
		Value:   value,
		Headers: eventHeaders(event),
	})
	metrics.AuditSinkLatency.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	if err != nil {
		errorType := classifyKafkaError(err)
		metrics.AuditSinkErrors.WithLabelValues(s.name, errorType).Inc()
		s.logger.Warn("audit event not written",
			zap.Error(err),
			zap.String("error_type", errorType),
			zap.String("event_id", event.ID))
		return fmt.Errorf("write audit event to kafka (%s): %w", errorType, err)
	}
	return nil
}

// Close closes the Kafka writer. Later writes fail.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}

func (s *KafkaSink) Name() string {
	return s.name
}

func buildTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure, //nolint:gosec // Configurable for testing
	}
	if caFile == "" {
		return tlsConfig, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

func buildSASLMechanism(mechanism, username, password string) (sasl.Mechanism, error) {
	switch mechanism {
	case "PLAIN":
		return plain.Mechanism{Username: username, Password: password}, nil
	case "SCRAM-SHA-256":
		m, err := scram.Mechanism(scram.SHA256, username, password)
		if err != nil {
			return nil, fmt.Errorf("failed to create SCRAM-SHA-256 mechanism: %w", err)
		}
		return m, nil
	case "SCRAM-SHA-512":
		m, err := scram.Mechanism(scram.SHA512, username, password)
		if err != nil {
			return nil, fmt.Errorf("failed to create SCRAM-SHA-512 mechanism: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", mechanism)
	}
}
