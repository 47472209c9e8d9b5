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

package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/devmail/webapp/pkg/api"
	"github.com/devmail/webapp/pkg/apiresponses"
	"github.com/devmail/webapp/pkg/version"
)

const (
	defaultTimeout = 30 * time.Second

	emailsPath  = "/api/dev/emails"
	versionPath = "/api/version"
)

type Client struct {
	http      *resty.Client
	baseURL   string
	userAgent string
	timeout   time.Duration
	insecure  bool
}

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	c := &Client{
		userAgent: version.UserAgent("mailctl"),
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == "" {
		return nil, errors.New("server is required")
	}
	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", c.userAgent)
	if c.insecure {
		c.http.SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true}) //nolint:gosec // opt-in for local self-signed certificates
	}
	return c, nil
}

func WithServer(server string) Option {
	return func(c *Client) error {
		if server == "" {
			return errors.New("server is required")
		}
		parsed, err := url.Parse(server)
		if err != nil {
			return fmt.Errorf("invalid server: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("invalid server %q: scheme must be http or https", server)
		}
		c.baseURL = strings.TrimSuffix(parsed.String(), "/")
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		c.timeout = timeout
		return nil
	}
}

func WithInsecureSkipVerify(insecure bool) Option {
	return func(c *Client) error {
		c.insecure = insecure
		return nil
	}
}

// ListEmails returns every hour bucket of the server's mail log.
func (c *Client) ListEmails(ctx context.Context) (*api.MailLogResponse, error) {
	var out api.MailLogResponse
	if err := c.do(ctx, c.http.R().SetResult(&out), "GET", emailsPath); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBucket returns the records logged during one hour of the day.
func (c *Client) GetBucket(ctx context.Context, hour int) (*api.HourBucket, error) {
	var out api.HourBucket
	if err := c.do(ctx, c.http.R().SetResult(&out), "GET", emailsPath+"/"+strconv.Itoa(hour)); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendEmail submits a test email through the server's configured sender.
func (c *Client) SendEmail(ctx context.Context, req api.SendEmailRequest) error {
	return c.do(ctx, c.http.R().SetBody(req).SetHeader("Content-Type", "application/json"), "POST", emailsPath)
}

// ServerVersion returns the build information of the server.
func (c *Client) ServerVersion(ctx context.Context) (*version.BuildInfo, error) {
	var out version.BuildInfo
	if err := c.do(ctx, c.http.R().SetResult(&out), "GET", versionPath); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, req *resty.Request, method, endpoint string) error {
	var apiErr apiresponses.APIError
	resp, err := req.SetContext(ctx).SetError(&apiErr).Execute(method, endpoint)
	if err != nil {
		return err
	}
	if resp.IsError() {
		msg := strings.TrimSpace(apiErr.Error)
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		if msg == "" {
			msg = resp.Status()
		}
		return &HTTPError{StatusCode: resp.StatusCode(), Code: apiErr.Code, Message: msg, RequestID: apiErr.RequestID}
	}
	return nil
}

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *HTTPError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("request failed (%d): %s [request %s]", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}
