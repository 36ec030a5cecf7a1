package activitypub

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deemkeen/federation/domain"
	"github.com/google/uuid"
)

const maxActorSize = 1 << 20

// ActorResponse represents the JSON structure of an ActivityPub actor
type ActorResponse struct {
	Context           any    `json:"@context"`
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Summary           string `json:"summary"`
	Inbox             string `json:"inbox"`
	Icon              struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
	} `json:"icon"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// ActorStore caches remote identities of any protocol.
type ActorStore interface {
	ReadRemoteActor(identifier string) (error, *domain.RemoteActor)
	SaveRemoteActor(actor *domain.RemoteActor) error
}

// Fetcher resolves remote actors and their keys. ActivityPub actors are
// fetched over HTTP when the cache has no fresh copy; other identifiers,
// such as Diaspora handles, are served from the cache only.
type Fetcher struct {
	client    *http.Client
	store     ActorStore
	maxAge    time.Duration
	userAgent string
}

// NewFetcher returns a Fetcher backed by store, which may be nil.
func NewFetcher(store ActorStore, maxAge time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: 10 * time.Second},
		store:     store,
		maxAge:    maxAge,
		userAgent: userAgent,
	}
}

// FetchRemoteActor fetches an actor from a remote server and stores it in the cache
func (f *Fetcher) FetchRemoteActor(ctx context.Context, actorURI string) (*domain.RemoteActor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: actor %s (status %d)", domain.ErrNotFound, actorURI, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxActorSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var actor ActorResponse
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if actor.ID == "" || actor.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}
	if actor.ID != actorURI {
		return nil, fmt.Errorf("actor id %s does not match requested %s", actor.ID, actorURI)
	}

	domainName, err := extractDomain(actor.ID)
	if err != nil {
		return nil, err
	}

	remote := &domain.RemoteActor{
		Id:            uuid.New(),
		Protocol:      ProtocolName,
		Identifier:    actor.ID,
		Username:      actor.PreferredUsername,
		Domain:        domainName,
		DisplayName:   actor.Name,
		Summary:       actor.Summary,
		InboxURI:      actor.Inbox,
		PublicKeyPem:  actor.PublicKey.PublicKeyPem,
		AvatarURL:     actor.Icon.URL,
		LastFetchedAt: time.Now(),
	}
	if remote.Username == "" {
		remote.Username = extractUsername(actor.ID)
	}

	if f.store != nil {
		if err := f.store.SaveRemoteActor(remote); err != nil {
			log.Printf("Failed to cache remote actor %s: %v", actor.ID, err)
		}
	}

	return remote, nil
}

// GetOrFetchActor returns the actor from the cache, or fetches it if it is
// not cached or stale
func (f *Fetcher) GetOrFetchActor(ctx context.Context, id string) (*domain.RemoteActor, error) {
	var cached *domain.RemoteActor
	if f.store != nil {
		if err, found := f.store.ReadRemoteActor(id); err == nil {
			cached = found
		}
	}
	if cached != nil && !cached.Stale(f.maxAge) {
		return cached, nil
	}

	if !IdentifyID(id) {
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("%w: no cached actor %s", domain.ErrNotFound, id)
	}

	fetched, err := f.FetchRemoteActor(ctx, id)
	if err != nil && cached != nil {
		log.Printf("Refreshing actor %s failed, using cached copy: %v", id, err)
		return cached, nil
	}
	return fetched, err
}

// LookupRemoteKey resolves the public key of an actor URI or handle.
func (f *Fetcher) LookupRemoteKey(ctx context.Context, id string) (*rsa.PublicKey, error) {
	actor, err := f.GetOrFetchActor(ctx, stripFragment(id))
	if err != nil {
		return nil, err
	}
	return actor.PublicKey()
}

// LookupRemoteProfile resolves the profile of an actor URI or handle.
func (f *Fetcher) LookupRemoteProfile(ctx context.Context, id string) (*domain.Profile, error) {
	actor, err := f.GetOrFetchActor(ctx, id)
	if err != nil {
		return nil, err
	}
	return actor.ToProfile(), nil
}

// extractDomain extracts the domain from an actor URI
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}

	return parsed.Host, nil
}

// extractUsername extracts username from various URI formats
// Examples:
// - "https://example.com/users/alice" -> "alice"
// - "https://example.com/@alice" -> "alice"
func extractUsername(uri string) string {
	parts := strings.Split(strings.TrimSuffix(uri, "/"), "/")
	if len(parts) > 0 {
		return strings.TrimPrefix(parts[len(parts)-1], "@")
	}
	return ""
}
