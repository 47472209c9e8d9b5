// Package mail provides the EmailSender capability used by the account
// workflows, an in-memory hour-bucketed log that stands in for a mail
// transport during development, SMTP delivery behind a background retry
// queue, and the HTML templates for account emails.
package mail
