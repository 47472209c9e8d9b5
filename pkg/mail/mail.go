package mail

import (
	"crypto/tls"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/devmail/webapp/pkg/config"
	"github.com/devmail/webapp/pkg/metrics"
)

const (
	defaultSenderAddress = "noreply@localhost"
	defaultSenderName    = "WebApp"
)

// Transport performs a single delivery attempt. Retries are the Queue's job.
type Transport interface {
	Send(receivers []string, subject, body string) error
	GetHost() string
	GetPort() int
}

type smtpTransport struct {
	dialer        *gomail.Dialer
	senderAddress string
	senderName    string
	log           *zap.SugaredLogger
}

// NewSMTPTransport creates a gomail backed transport from the mail settings.
func NewSMTPTransport(cfg config.Mail, brandingName string, log *zap.SugaredLogger) Transport {
	log = log.Named("smtp")
	log.Infow("Initializing SMTP transport", "host", cfg.Host, "port", cfg.Port, "user", cfg.User)

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warnw("InsecureSkipVerify is enabled for mail TLS connection", "host", cfg.Host)
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit opt-in for internal relays
	}

	senderAddr := cfg.SenderAddress
	if senderAddr == "" {
		senderAddr = defaultSenderAddress
	}
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = brandingName
	}
	if senderName == "" {
		senderName = defaultSenderName
	}

	return &smtpTransport{
		dialer:        d,
		senderAddress: senderAddr,
		senderName:    senderName,
		log:           log,
	}
}

func (s *smtpTransport) Send(receivers []string, subject, body string) error {
	if len(receivers) == 0 {
		return fmt.Errorf("no receivers")
	}
	s.log.Debugw("Sending mail", "receivers", len(receivers), "subject", subject)

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	if len(receivers) == 1 {
		msg.SetHeader("To", receivers[0])
	} else {
		msg.SetHeader("Bcc", receivers...)
	}
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
		return fmt.Errorf("smtp send to %s:%d: %w", s.GetHost(), s.GetPort(), err)
	}
	metrics.MailSendSuccess.WithLabelValues(s.GetHost()).Inc()
	return nil
}

func (s *smtpTransport) GetHost() string {
	return s.dialer.Host
}

func (s *smtpTransport) GetPort() int {
	return s.dialer.Port
}
