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

package apiresponses

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/system"
)

// Machine-readable error codes carried in APIError.Code.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// APIError is the body of every error response. RequestID echoes the
// X-Request-ID assigned by system.RequestLogger so a client report can be
// matched to the server log line.
type APIError struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func respondError(c *gin.Context, status int, body APIError) {
	body.RequestID = c.Writer.Header().Get(system.RequestIDHeader)
	c.JSON(status, body)
}

func RespondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, APIError{Error: message, Code: CodeBadRequest})
}

// RespondBadRequestWithDetails is used for binding errors, with the
// validator output as details.
func RespondBadRequestWithDetails(c *gin.Context, message, details string) {
	respondError(c, http.StatusBadRequest, APIError{Error: message, Code: CodeBadRequest, Details: details})
}

func RespondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, APIError{Error: message, Code: CodeNotFound})
}

func RespondTooManyRequests(c *gin.Context) {
	respondError(c, http.StatusTooManyRequests, APIError{
		Error: "rate limit exceeded, please try again later",
		Code:  CodeRateLimited,
	})
}

// RespondInternalError logs err and sends a 500 that names only the failed
// operation.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Errorw(fmt.Sprintf("Failed to %s", operation), "error", err)
	}
	respondError(c, http.StatusInternalServerError, APIError{
		Error: fmt.Sprintf("failed to %s", operation),
		Code:  CodeInternal,
	})
}

func RespondServiceUnavailable(c *gin.Context, service string) {
	respondError(c, http.StatusServiceUnavailable, APIError{
		Error: fmt.Sprintf("%s is unavailable", service),
		Code:  CodeServiceUnavailable,
	})
}

func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// RespondAccepted is for work handed off to a background sender.
func RespondAccepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, data)
}
