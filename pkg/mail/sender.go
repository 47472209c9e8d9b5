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
	"fmt"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/devmail/webapp/pkg/config"
)

// EmailSender sends a single HTML email. Account workflows depend on this
// interface only; the concrete sender is chosen once at startup.
type EmailSender interface {
	SendEmail(ctx context.Context, email, subject, htmlMessage string) error
}

// Closer is implemented by senders that own background workers.
type Closer interface {
	Close(ctx context.Context) error
}

// NewSenderFromConfig builds the sender selected by cfg.Mail.Mode.
// Mock mode returns the *Log so callers can also expose it for inspection.
func NewSenderFromConfig(cfg config.Config, clk clock.PassiveClock, log *zap.SugaredLogger) (EmailSender, error) {
	switch cfg.Mail.Mode {
	case config.MailModeMock, "":
		log.Infow("Using in-memory mail log; emails will not be delivered")
		return NewLog(clk, log), nil
	case config.MailModeSMTP:
		transport := NewSMTPTransport(cfg.Mail, cfg.Identity.BrandingName, log)
		queue := NewQueue(transport, log, cfg.Mail.RetryCount, cfg.Mail.RetryBackoffMs, cfg.Mail.QueueSize)
		queue.Start()
		return NewQueueSender(queue), nil
	default:
		return nil, fmt.Errorf("unknown mail mode %q", cfg.Mail.Mode)
	}
}
