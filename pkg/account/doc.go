// Package account sends the emails produced by the user-account workflows:
// registration confirmation, password reset and two-factor codes.
package account
