// Package cmd implements the cobra command tree for mailctl: listing and
// sending emails through the development mail log API, and version output.
package cmd
