package audit

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventConfirmationSent  EventType = "account.confirmation_sent"
	EventPasswordResetSent EventType = "account.password_reset_sent"
	EventTwoFactorSent     EventType = "account.two_factor_sent"
	EventNotificationError EventType = "account.notification_failed"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Event is serialized as JSON for every sink.
type Event struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	Severity      Severity          `json:"severity"`
	Timestamp     time.Time         `json:"timestamp"`
	Recipient     string            `json:"recipient"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// NewEvent returns an info event with a fresh ID and the current UTC time.
func NewEvent(eventType EventType, recipient string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  SeverityInfo,
		Timestamp: time.Now().UTC(),
		Recipient: recipient,
	}
}
