package auth

import "errors"

var (
	ErrEmailPasswordRequired = errors.New("email and password are required")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountDisabled       = errors.New("account is banned or inactive")
	ErrNotAuthenticated      = errors.New("not authenticated")
)
