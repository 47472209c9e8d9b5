package apiresponses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/devmail/webapp/pkg/system"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name         string
		respond      func(c *gin.Context)
		expectedCode int
		expectedBody APIError
	}{
		{
			name:         "bad request",
			respond:      func(c *gin.Context) { RespondBadRequest(c, "invalid hour") },
			expectedCode: http.StatusBadRequest,
			expectedBody: APIError{Error: "invalid hour", Code: "BAD_REQUEST"},
		},
		{
			name:         "bad request with details",
			respond:      func(c *gin.Context) { RespondBadRequestWithDetails(c, "invalid body", "to is required") },
			expectedCode: http.StatusBadRequest,
			expectedBody: APIError{Error: "invalid body", Code: "BAD_REQUEST", Details: "to is required"},
		},
		{
			name:         "not found",
			respond:      func(c *gin.Context) { RespondNotFound(c, "no such bucket") },
			expectedCode: http.StatusNotFound,
			expectedBody: APIError{Error: "no such bucket", Code: "NOT_FOUND"},
		},
		{
			name:         "too many requests",
			respond:      RespondTooManyRequests,
			expectedCode: http.StatusTooManyRequests,
			expectedBody: APIError{Error: "rate limit exceeded, please try again later", Code: "RATE_LIMITED"},
		},
		{
			name:         "service unavailable",
			respond:      func(c *gin.Context) { RespondServiceUnavailable(c, "database") },
			expectedCode: http.StatusServiceUnavailable,
			expectedBody: APIError{Error: "database is unavailable", Code: "SERVICE_UNAVAILABLE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			tt.respond(c)

			assert.Equal(t, tt.expectedCode, w.Code)
			var body APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedBody, body)
		})
	}
}

func TestRespondInternalErrorLogsButSanitizes(t *testing.T) {
	core, recorded := observer.New(zap.ErrorLevel)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondInternalError(c, "send email", errors.New("dial tcp: secret-host refused"), zap.New(core).Sugar())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-host")
	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "Failed to send email", recorded.All()[0].Message)
}

func TestSuccessResponses(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondAccepted(c, gin.H{"status": "queued"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"status":"queued"}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	RespondOK(c, []int{1, 2})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[1,2]`, w.Body.String())
}

func TestErrorEchoesRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(system.RequestLogger(zap.NewNop().Sugar()))
	engine.GET("/missing", func(c *gin.Context) { RespondNotFound(c, "gone") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(system.RequestIDHeader, "req-42")
	engine.ServeHTTP(w, req)

	var body APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, APIError{Error: "gone", Code: CodeNotFound, RequestID: "req-42"}, body)
}
