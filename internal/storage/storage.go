package storage

import "errors"

var (
	ErrUserNotFound              = errors.New("user not found")
	ErrUserExists                = errors.New("user already exists")
	ErrVerificationTokenNotFound = errors.New("verification token not found")
	ErrUnavailable               = errors.New("storage unavailable")
)
