package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/devmail/webapp/pkg/apiresponses"
	"github.com/devmail/webapp/pkg/config"
	"github.com/devmail/webapp/pkg/mail"
)

type recordingSender struct {
	err   error
	calls []mail.Record
}

func (r *recordingSender) SendEmail(_ context.Context, email, subject, htmlMessage string) error {
	r.calls = append(r.calls, mail.Record{Recipient: email, Subject: subject, Body: htmlMessage})
	return r.err
}

func atHour(hour int) time.Time {
	return time.Date(2026, time.October, 19, hour, 5, 0, 0, time.Local)
}

func newMailLogServer(t *testing.T, sender mail.EmailSender) *Server {
	t.Helper()
	s := newTestServer(t, testConfig(config.EnvironmentDevelopment), nil)
	require.NoError(t, s.RegisterAll([]APIController{NewMailLogController(zap.NewNop().Sugar(), sender)}))
	return s
}

func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestMailLogListGroupsByHour(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(atHour(14))
	log := mail.NewLog(clk, nil)
	log.Send("a@x.com", "Confirm", "<p>hi</p>")
	log.Send("a@x.com", "Confirm", "<p>hi</p>")
	log.Send("b@x.com", "Reset", "<p>bye</p>")
	clk.SetTime(atHour(9))
	log.Send("a@x.com", "Confirm", "<p>hi</p>")

	s := newMailLogServer(t, log)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/dev/emails", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp MailLogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Buckets, 2)
	assert.Equal(t, 9, resp.Buckets[0].Hour)
	assert.Len(t, resp.Buckets[0].Records, 1)
	assert.Equal(t, 14, resp.Buckets[1].Hour)
	assert.Len(t, resp.Buckets[1].Records, 2)
}

func TestMailLogListEmpty(t *testing.T) {
	s := newMailLogServer(t, mail.NewLog(nil, nil))
	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/dev/emails", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":0,"buckets":[]}`, w.Body.String())
}

func TestMailLogBucket(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(atHour(14))
	log := mail.NewLog(clk, nil)
	log.Send("a@x.com", "Confirm", "<p>hi</p>")
	s := newMailLogServer(t, log)

	tests := []struct {
		name            string
		path            string
		expectedStatus  int
		expectedRecords int
	}{
		{name: "populated hour", path: "/api/dev/emails/14", expectedStatus: http.StatusOK, expectedRecords: 1},
		{name: "empty hour", path: "/api/dev/emails/0", expectedStatus: http.StatusOK, expectedRecords: 0},
		{name: "last hour", path: "/api/dev/emails/23", expectedStatus: http.StatusOK, expectedRecords: 0},
		{name: "hour too large", path: "/api/dev/emails/24", expectedStatus: http.StatusBadRequest},
		{name: "negative hour", path: "/api/dev/emails/-1", expectedStatus: http.StatusBadRequest},
		{name: "not a number", path: "/api/dev/emails/noon", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var bucket HourBucket
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bucket))
			assert.NotNil(t, bucket.Records)
			assert.Len(t, bucket.Records, tt.expectedRecords)
		})
	}
}

func TestMailLogReadsUnavailableWithoutLog(t *testing.T) {
	s := newMailLogServer(t, &recordingSender{})

	for _, path := range []string{"/api/dev/emails", "/api/dev/emails/3"} {
		w := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestMailLogSend(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(atHour(7))
	log := mail.NewLog(clk, nil)
	s := newMailLogServer(t, log)

	w := serve(s, postJSON(t, "/api/dev/emails", SendEmailRequest{To: "dev@example.com", Subject: "Hello", Body: "<p>x</p>"}))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []mail.Record{{Recipient: "dev@example.com", Subject: "Hello", Body: "<p>x</p>"}}, log.Bucket(7))
}

func TestMailLogSendAcceptsAnyStrings(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(atHour(9))
	log := mail.NewLog(clk, nil)
	s := newMailLogServer(t, log)

	tests := []struct {
		name string
		body any
	}{
		{name: "empty object", body: map[string]string{}},
		{name: "all empty", body: SendEmailRequest{}},
		{name: "not an address", body: SendEmailRequest{To: "not-an-address"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, postJSON(t, "/api/dev/emails", tt.body))
			assert.Equal(t, http.StatusAccepted, w.Code)
		})
	}
	assert.ElementsMatch(t, []mail.Record{{}, {Recipient: "not-an-address"}}, log.Bucket(9))
}

func TestMailLogSendRejectsMalformedJSON(t *testing.T) {
	sender := &recordingSender{}
	s := newMailLogServer(t, sender)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "to=a@x.com"},
		{name: "wrong field type", raw: `{"to": 42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/dev/emails", strings.NewReader(tt.raw))
			req.Header.Set("Content-Type", "application/json")
			w := serve(s, req)
			require.Equal(t, http.StatusBadRequest, w.Code)
			var apiErr apiresponses.APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
			assert.Equal(t, "BAD_REQUEST", apiErr.Code)
		})
	}
	assert.Empty(t, sender.calls)
}

func TestMailLogSendSenderError(t *testing.T) {
	sender := &recordingSender{err: errors.New("queue full")}
	s := newMailLogServer(t, sender)

	w := serve(s, postJSON(t, "/api/dev/emails", SendEmailRequest{To: "a@x.com", Subject: "s"}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, sender.calls, 1)
	assert.NotContains(t, w.Body.String(), "queue full")
}

func TestMailLogControllerBasePath(t *testing.T) {
	var c APIController = NewMailLogController(zap.NewNop().Sugar(), mail.NewLog(nil, nil))
	assert.Equal(t, "dev/emails", c.BasePath())
	assert.Empty(t, c.Handlers())
}
