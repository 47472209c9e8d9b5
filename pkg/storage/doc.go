// Package storage opens the application's SQLite database and makes sure it
// exists before the HTTP pipeline starts.
package storage
