package authstate

import "errors"

var (
	// ErrAlreadyBooted is returned when Boot runs a second time on a store.
	ErrAlreadyBooted = errors.New("auth state already booted")

	// ErrDisposed is returned by operations on a disposed store.
	ErrDisposed = errors.New("auth state disposed")
)
