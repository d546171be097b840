// Package common defines shared sentinel errors used across the engine.
// Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Account pool errors.
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountProtected     = errors.New("account cannot be removed")

	// Token lifecycle errors.
	ErrTokenExpired    = errors.New("token expired")
	ErrClearanceDenied = errors.New("clearance token rejected")

	// ErrNoSolution is the generic "no solution" sentinel the captcha solver
	// returns on every failure path. The two variants below wrap it so
	// callers can still tell a timeout from a provider-side rejection while
	// matching the generic sentinel with errors.Is.
	ErrNoSolution      = errors.New("no captcha solution")
	ErrCaptchaTimeout  = fmt.Errorf("%w: timed out", ErrNoSolution)
	ErrCaptchaRejected = fmt.Errorf("%w: rejected by solving service", ErrNoSolution)

	// Persistence errors.
	ErrKeyNotFound = errors.New("key not found")

	// Ledger errors.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
