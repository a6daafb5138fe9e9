package storage

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a record exists but belongs to another user.
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateUsername is returned when registering a username that is taken.
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrInvalidCredentials is returned for any login failure, whether the
	// username is unknown or the password is wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")
)
