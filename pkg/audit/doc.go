// Package audit records account workflow events (confirmation links, password
// resets, two-factor codes) to a structured log and optionally to Kafka. Events
// are queued and written in the background so emitting never blocks a request.
package audit
