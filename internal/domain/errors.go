package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")

	// OTP check failures. The record has already been mutated or deleted
	// by the time one of these is returned.
	ErrExpired         = errors.New("code expired")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrInvalidCode     = errors.New("invalid code")

	// ErrUpstream marks a failed call to an external collaborator
	// (email delivery, credential update).
	ErrUpstream = errors.New("upstream failure")
)
