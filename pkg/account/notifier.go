package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/audit"
	"github.com/devmail/webapp/pkg/config"
	appmail "github.com/devmail/webapp/pkg/mail"
	"github.com/devmail/webapp/pkg/metrics"
)

// Kind labels a notification in logs and metrics.
type Kind string

const (
	KindConfirmation  Kind = "confirmation"
	KindPasswordReset Kind = "password_reset"
	KindTwoFactor     Kind = "two_factor"
)

const (
	ConfirmEmailPath  = "/Account/ConfirmEmail"
	ResetPasswordPath = "/Account/ResetPassword"
)

var ErrInvalidRecipient = errors.New("invalid recipient address")

var tracer = otel.Tracer("github.com/devmail/webapp/pkg/account")

var auditEventTypes = map[Kind]audit.EventType{
	KindConfirmation:  audit.EventConfirmationSent,
	KindPasswordReset: audit.EventPasswordResetSent,
	KindTwoFactor:     audit.EventTwoFactorSent,
}

// Auditor receives an event for every notification attempt. *audit.Service
// satisfies it, including a nil one.
type Auditor interface {
	Emit(event *audit.Event)
}

type Option func(*Notifier)

func WithAuditor(a Auditor) Option {
	return func(n *Notifier) {
		n.auditor = a
	}
}

// Notifier renders account emails and hands them to the registered sender.
type Notifier struct {
	sender         appmail.EmailSender
	baseURL        *url.URL
	brandingName   string
	requireConfirm bool
	auditor        Auditor
	log            *zap.SugaredLogger
}

// NewNotifier returns a Notifier using the identity settings for links and branding.
func NewNotifier(sender appmail.EmailSender, identity config.Identity, log *zap.SugaredLogger, opts ...Option) (*Notifier, error) {
	if sender == nil {
		return nil, errors.New("email sender is required")
	}
	base, err := url.Parse(identity.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid identity.baseURL %q: %w", identity.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("identity.baseURL %q must be absolute", identity.BaseURL)
	}
	n := &Notifier{
		sender:         sender,
		baseURL:        base,
		brandingName:   identity.BrandingName,
		requireConfirm: identity.RequireConfirmedAccount,
		log:            log.Named("account-notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// ConfirmationRequired reports whether registration must send a confirmation
// link before the account can sign in.
func (n *Notifier) ConfirmationRequired() bool {
	return n.requireConfirm
}

// SendConfirmationLink emails the account confirmation link for userID/code.
func (n *Notifier) SendConfirmationLink(ctx context.Context, email, userID, code string) error {
	recipient, err := normalizeRecipient(email)
	if err != nil {
		return err
	}
	body, err := appmail.RenderConfirmation(appmail.ConfirmationMailParams{
		BrandingName: n.brandingName,
		Email:        recipient,
		Link:         n.link(ConfirmEmailPath, url.Values{"userId": {userID}, "code": {code}}),
	})
	if err != nil {
		return fmt.Errorf("render confirmation email: %w", err)
	}
	return n.send(ctx, KindConfirmation, recipient, "Confirm your email", body)
}

// SendPasswordResetLink emails the password reset link for code.
func (n *Notifier) SendPasswordResetLink(ctx context.Context, email, code string) error {
	recipient, err := normalizeRecipient(email)
	if err != nil {
		return err
	}
	body, err := appmail.RenderPasswordReset(appmail.PasswordResetMailParams{
		BrandingName: n.brandingName,
		Email:        recipient,
		Link:         n.link(ResetPasswordPath, url.Values{"code": {code}}),
	})
	if err != nil {
		return fmt.Errorf("render password reset email: %w", err)
	}
	return n.send(ctx, KindPasswordReset, recipient, "Reset Password", body)
}

// SendTwoFactorCode emails a two-factor security code.
func (n *Notifier) SendTwoFactorCode(ctx context.Context, email, code string) error {
	recipient, err := normalizeRecipient(email)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return errors.New("two-factor code is required")
	}
	body, err := appmail.RenderTwoFactor(appmail.TwoFactorMailParams{
		BrandingName: n.brandingName,
		Email:        recipient,
		Code:         code,
	})
	if err != nil {
		return fmt.Errorf("render two-factor email: %w", err)
	}
	return n.send(ctx, KindTwoFactor, recipient, "Your security code", body)
}

func (n *Notifier) send(ctx context.Context, kind Kind, recipient, subject, body string) error {
	ctx, span := tracer.Start(ctx, "account.send_"+string(kind))
	defer span.End()
	span.SetAttributes(attribute.String("account.notification.kind", string(kind)))

	if err := n.sender.SendEmail(ctx, recipient, subject, body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		n.log.Errorw("Failed to send account email", "kind", kind, "recipient", recipient, "error", err)
		n.emit(ctx, audit.EventNotificationError, kind, recipient, err)
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	metrics.AccountNotifications.WithLabelValues(string(kind)).Inc()
	n.log.Infow("Account email sent", "kind", kind, "recipient", recipient)
	n.emit(ctx, auditEventTypes[kind], kind, recipient, nil)
	return nil
}

func (n *Notifier) emit(ctx context.Context, eventType audit.EventType, kind Kind, recipient string, sendErr error) {
	if n.auditor == nil {
		return
	}
	event := audit.NewEvent(eventType, recipient)
	event.Details = map[string]string{"kind": string(kind)}
	if sendErr != nil {
		event.Severity = audit.SeverityWarning
		event.Details["error"] = sendErr.Error()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		event.CorrelationID = sc.TraceID().String()
	}
	n.auditor.Emit(event)
}

func (n *Notifier) link(path string, query url.Values) string {
	u := *n.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// normalizeRecipient accepts a bare address or "Name <address>" and returns
// the bare address.
func normalizeRecipient(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidRecipient, email, err)
	}
	return addr.Address, nil
}
