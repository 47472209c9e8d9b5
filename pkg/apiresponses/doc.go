// Package apiresponses provides the JSON error envelope and response helpers
// shared by the HTTP handlers and middleware.
package apiresponses
