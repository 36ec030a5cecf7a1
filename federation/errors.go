package federation

import (
	"errors"

	"github.com/deemkeen/federation/domain"
)

// Errors surfaced by the mapper. Inbound failures never reach the caller;
// they are reported through Diagnostics. Outbound failures are returned.
var (
	ErrValidation        = domain.ErrValidation
	ErrAuthentication    = domain.ErrAuthentication
	ErrUnmappedVariant   = domain.ErrUnmappedVariant
	ErrMissingSigningKey = domain.ErrMissingSigningKey
	ErrNotFound          = domain.ErrNotFound
	ErrUnknownProtocol   = errors.New("unknown protocol")
)
