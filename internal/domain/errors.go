package domain

import "errors"

var (
	// ErrInvalidOperation covers self-transfers and non-positive amounts.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrNotFound is returned when an account or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance is returned when the sender cannot cover the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnauthorized is returned when the caller cannot be resolved to an account.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStore wraps persistence failures.
	ErrStore = errors.New("store error")
	// ErrBusy is returned when an account lock could not be acquired in time.
	ErrBusy = errors.New("account busy")
	// ErrAlreadyExists is returned when registering a taken username.
	ErrAlreadyExists = errors.New("already exists")
)
