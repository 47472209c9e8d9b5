// Package api hosts the HTTP pipeline: access logging and recovery, HSTS and
// HTTPS redirection in production, static files, rate limiting, health and
// metrics endpoints, and the development-only mail log inspection API.
package api
