package api

import "github.com/devmail/webapp/pkg/mail"

// SendEmailRequest is the body of POST /api/dev/emails. Any three strings,
// empty ones included, are handed to the sender unchanged.
type SendEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// HourBucket is one hour of the mail log.
type HourBucket struct {
	Hour    int           `json:"hour" yaml:"hour"`
	Records []mail.Record `json:"records" yaml:"records"`
}

// MailLogResponse is the body of GET /api/dev/emails.
type MailLogResponse struct {
	Total   int          `json:"total" yaml:"total"`
	Buckets []HourBucket `json:"buckets" yaml:"buckets"`
}

// AcceptedResponse acknowledges a request handed to a sender.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// ConfirmationRequest is the body of POST /api/dev/account/confirmation.
type ConfirmationRequest struct {
	To     string `json:"to" binding:"required"`
	UserID string `json:"userId" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// PasswordResetRequest is the body of POST /api/dev/account/password-reset.
type PasswordResetRequest struct {
	To   string `json:"to" binding:"required"`
	Code string `json:"code" binding:"required"`
}

// TwoFactorRequest is the body of POST /api/dev/account/two-factor.
type TwoFactorRequest struct {
	To   string `json:"to" binding:"required"`
	Code string `json:"code" binding:"required"`
}

// ConfirmationResponse tells the caller whether a confirmation email went out.
type ConfirmationResponse struct {
	Sent     bool `json:"sent"`
	Required bool `json:"required"`
}
