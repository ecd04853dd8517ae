// Package services defines the business logic for order intake, the order
// lifecycle, and operator/client notifications. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes should be performed at the
// handler layer.
package services

import "errors"

var (
	// ErrMissingOrderID is returned when a webhook payload carries no order
	// identifier in any of the accepted fields.
	ErrMissingOrderID = errors.New("order id is missing")

	// ErrOrderNotFound indicates that the requested order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUserNotFound indicates that the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrPhoneMismatch is returned when a shared contact does not match the
	// phone number the order was placed with.
	ErrPhoneMismatch = errors.New("phone number does not match the order")

	// ErrEmptyLink is returned when an operator submits a blank payment or
	// tracking link.
	ErrEmptyLink = errors.New("link is empty")

	// ErrNotAssigned is returned when an operator acts on an order that is
	// not assigned to them.
	ErrNotAssigned = errors.New("order is not assigned to this operator")
)
