package domain

import (
	"crypto/rsa"
	"time"

	"github.com/google/uuid"
)

// RemoteActor is a cached remote identity of either protocol.
type RemoteActor struct {
	Id       uuid.UUID
	Protocol string
	// Identifier is the actor URI for ActivityPub or the handle for Diaspora.
	Identifier    string
	Username      string
	Domain        string
	DisplayName   string
	Summary       string
	InboxURI      string
	PublicKeyPem  string
	AvatarURL     string
	LastFetchedAt time.Time
}

// ToProfile converts the cached actor to a canonical profile.
func (ra *RemoteActor) ToProfile() *Profile {
	p := &Profile{
		Base: Base{
			ID:         ra.Identifier,
			ActorID:    ra.Identifier,
			RawContent: ra.Summary,
			Public:     true,
		},
		Name:      ra.DisplayName,
		PublicKey: ra.PublicKeyPem,
	}
	if ra.AvatarURL != "" {
		p.ImageURLs = map[string]string{
			"large":  ra.AvatarURL,
			"medium": ra.AvatarURL,
			"small":  ra.AvatarURL,
		}
	}
	return p
}

// PublicKey parses the cached public key.
func (ra *RemoteActor) PublicKey() (*rsa.PublicKey, error) {
	return ParsePublicKey(ra.PublicKeyPem)
}

// Stale reports whether the cache entry is older than maxAge.
func (ra *RemoteActor) Stale(maxAge time.Duration) bool {
	return time.Since(ra.LastFetchedAt) >= maxAge
}

// ReceivedEntity is the audit record of one entity accepted from a remote
// server.
type ReceivedEntity struct {
	Id               uuid.UUID
	EntityID         string
	Protocol         string
	Variant          string
	ActorID          string
	TargetID         string
	ReceivingActorID string
	RawPayload       string
	CreatedAt        time.Time
}

// NewReceivedEntity builds the audit record of an inbound entity.
func NewReceivedEntity(e Entity) *ReceivedEntity {
	b := e.Common()
	id := b.ID
	if id == "" {
		id = b.TargetID
	}
	return &ReceivedEntity{
		Id:               uuid.New(),
		EntityID:         id,
		Protocol:         b.SourceProtocol,
		Variant:          e.Kind().Variant.String(),
		ActorID:          b.ActorID,
		TargetID:         b.TargetID,
		ReceivingActorID: b.ReceivingActorID,
		RawPayload:       string(b.SourceObject),
		CreatedAt:        time.Now(),
	}
}

// Relationship is a remote actor following a target.
type Relationship struct {
	Id        uuid.UUID
	ActorID   string
	TargetID  string
	Protocol  string
	Accepted  bool
	CreatedAt time.Time
}
