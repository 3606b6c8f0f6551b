package auctionerrors

import (
	"errors"
	"net/http"
)

// Domain rule violations surfaced verbatim to the caller.
var (
	ErrBidTooLow = errors.New("bid amount too low")
	ErrSelfBid   = errors.New("cannot bid on own listing")
)

// Request and state errors.
var (
	ErrValidation   = errors.New("invalid input")
	ErrInvalidState = errors.New("resource not in an operable state")
	ErrNotFound     = errors.New("resource not found")
)

// Access and contention errors.
var (
	ErrAuthorization = errors.New("caller lacks rights for this action")
	ErrBusy          = errors.New("resource busy, try again")
)

// HTTPStatus maps a service error to the response status code. Unrecognized
// errors are internal.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrBidTooLow), errors.Is(err, ErrSelfBid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
