package domain

import "errors"

var (
	// ErrValidation marks a candidate missing a required field or carrying
	// an inconsistent field combination.
	ErrValidation = errors.New("entity validation failed")

	// ErrAuthentication marks an invalid signature or an actor that does
	// not match the authenticated sender.
	ErrAuthentication = errors.New("entity authentication failed")

	// ErrUnmappedVariant is a configuration error: no outbound mapping is
	// registered for a (variant, protocol) pair.
	ErrUnmappedVariant = errors.New("no outbound mapping for entity")

	// ErrMissingSigningKey is returned when outbound signing has no key.
	ErrMissingSigningKey = errors.New("signing key is required")

	// ErrNotFound is returned by lookups that have no answer.
	ErrNotFound = errors.New("not found")
)
