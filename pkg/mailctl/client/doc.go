// Package client is the HTTP client mailctl uses to talk to the development
// mail log endpoints of a running webapp.
package client
