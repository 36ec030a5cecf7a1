package federation

import (
	"context"
	"crypto/rsa"

	"github.com/deemkeen/federation/activitypub"
	"github.com/deemkeen/federation/diaspora"
	"github.com/deemkeen/federation/domain"
)

// Protocol is a protocol adapter. Implementations are stateless and safe
// for concurrent use.
type Protocol interface {
	Name() string
	IdentifyID(id string) bool
	IdentifyRequest(req domain.Request) bool
	// Parse decodes a request body into the adapter's wire object.
	Parse(req domain.Request) (any, error)
	// Canonicalize extracts candidate entities from a wire object. It never
	// fails as a whole; broken entities come back as candidates with Err set.
	Canonicalize(wire any) []domain.Candidate
	// Verify authenticates one candidate against the transport sender.
	Verify(ctx context.Context, c domain.Candidate, sender string, keys domain.KeyLookup) error
	// Variants lists the canonical variants Outbound can convert.
	Variants() []domain.Variant
	Outbound(e domain.Entity, key *rsa.PrivateKey) (domain.Specific, error)
	Render(e domain.Specific, key *rsa.PrivateKey) ([]byte, error)
}

// DefaultProtocols returns the built-in adapters in their default priority.
func DefaultProtocols() []Protocol {
	return []Protocol{activitypub.New(), diaspora.New()}
}
