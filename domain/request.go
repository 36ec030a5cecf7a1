package domain

import (
	"context"
	"crypto/rsa"
	"net/http"
)

// Request is a raw inbound message as handed over by the transport.
type Request struct {
	Body   []byte
	Header http.Header
}

// NewRequest wraps a text or byte body.
func NewRequest[B ~string | ~[]byte](body B) Request {
	return Request{Body: []byte(body)}
}

// Candidate is one entity extracted from a payload, before verification.
// Err is set when the wire object could not be turned into a valid entity.
type Candidate struct {
	Entity Entity
	// Handle is the asserted author, kept for diagnostics when Entity is nil.
	Handle string
	// Wire is the protocol-native object the entity was built from.
	Wire any
	Err  error
	// ChildErrs are nested objects that could not be mapped. The parent
	// entity is kept without them.
	ChildErrs []error
}

// KeyLookup resolves the public key of a remote actor or handle.
type KeyLookup interface {
	LookupRemoteKey(ctx context.Context, id string) (*rsa.PublicKey, error)
}

// KeyLookupFunc adapts a function to KeyLookup.
type KeyLookupFunc func(ctx context.Context, id string) (*rsa.PublicKey, error)

func (f KeyLookupFunc) LookupRemoteKey(ctx context.Context, id string) (*rsa.PublicKey, error) {
	return f(ctx, id)
}

// ProfileLookup resolves a remote profile.
type ProfileLookup interface {
	LookupRemoteProfile(ctx context.Context, id string) (*Profile, error)
}

// ProfileLookupFunc adapts a function to ProfileLookup.
type ProfileLookupFunc func(ctx context.Context, id string) (*Profile, error)

func (f ProfileLookupFunc) LookupRemoteProfile(ctx context.Context, id string) (*Profile, error) {
	return f(ctx, id)
}
