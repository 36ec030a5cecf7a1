package activitypub

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/deemkeen/federation/domain"
)

// generateTestKeyPair generates an RSA key pair for testing
func generateTestKeyPair() (*rsa.PrivateKey, *rsa.PublicKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}
	return privateKey, &privateKey.PublicKey, nil
}

// calculateDigest calculates SHA-256 digest for request body
func calculateDigest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

// staticKeys resolves every actor to the same key
func staticKeys(key *rsa.PublicKey) domain.KeyLookup {
	return domain.KeyLookupFunc(func(ctx context.Context, id string) (*rsa.PublicKey, error) {
		return key, nil
	})
}

// newSignedRequest builds and signs a request, then returns a fresh copy
// with the body restored, since signing consumes it
func newSignedRequest(t *testing.T, key *rsa.PrivateKey, keyId, method, url string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", "example.com")
	req.Header.Set("Digest", calculateDigest(body))

	if err := SignRequest(req, key, keyId); err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}

	req2, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to recreate request: %v", err)
	}
	req2.Header = req.Header.Clone()
	return req2
}

func TestVerifyRequestKeyIdExtraction(t *testing.T) {
	privateKey, publicKey, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	req := newSignedRequest(t, privateKey, "https://myserver.com/users/alice#main-key",
		"POST", "https://example.com/inbox", []byte(`{"type":"Create"}`))

	owner, err := RequestKeyOwner(req)
	if err != nil {
		t.Fatalf("RequestKeyOwner failed: %v", err)
	}
	if owner != "https://myserver.com/users/alice" {
		t.Errorf("Expected owner 'https://myserver.com/users/alice', got '%s'", owner)
	}

	actorURI, err := VerifyRequest(context.Background(), req, staticKeys(publicKey))
	if err != nil {
		t.Fatalf("VerifyRequest failed: %v", err)
	}

	expectedActor := "https://myserver.com/users/alice"
	if actorURI != expectedActor {
		t.Errorf("Expected actor URI '%s', got '%s'", expectedActor, actorURI)
	}
}

func TestVerifyRequestInvalidSignature(t *testing.T) {
	privateKey1, _, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair 1: %v", err)
	}
	_, publicKey2, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair 2: %v", err)
	}

	req := newSignedRequest(t, privateKey1, "https://myserver.com/users/alice#main-key",
		"POST", "https://example.com/inbox", []byte(`{"type":"Create"}`))

	if _, err := VerifyRequestWithKey(req, publicKey2); err == nil {
		t.Error("Expected verification to fail with wrong public key")
	}
}

func TestVerifyRequestKeyLookupFails(t *testing.T) {
	privateKey, _, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	req := newSignedRequest(t, privateKey, "https://myserver.com/users/alice#main-key",
		"POST", "https://example.com/inbox", []byte(`{"type":"Create"}`))

	keys := domain.KeyLookupFunc(func(ctx context.Context, id string) (*rsa.PublicKey, error) {
		return nil, domain.ErrNotFound
	})
	if _, err := VerifyRequest(context.Background(), req, keys); err == nil {
		t.Error("Expected error when the key cannot be found")
	}
}

func TestVerifyRequestUnsigned(t *testing.T) {
	req, err := http.NewRequest("POST", "https://example.com/inbox", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	_, publicKey, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	if _, err := VerifyRequest(context.Background(), req, staticKeys(publicKey)); err == nil {
		t.Error("Expected error for unsigned request")
	}
}

func TestSignAndVerifyRoundtrip(t *testing.T) {
	privateKey, publicKey, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	tests := []struct {
		name   string
		method string
		url    string
		body   []byte
	}{
		{
			name:   "POST with body",
			method: "POST",
			url:    "https://example.com/inbox",
			body:   []byte(`{"type":"Create","object":{}}`),
		},
		{
			name:   "GET without body",
			method: "GET",
			url:    "https://example.com/users/alice",
			body:   []byte{},
		},
		{
			name:   "POST to different path",
			method: "POST",
			url:    "https://example.com/users/bob/inbox",
			body:   []byte(`{"type":"Follow"}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newSignedRequest(t, privateKey, "https://myserver.com/users/testuser#main-key", tt.method, tt.url, tt.body)

			actorURI, err := VerifyRequest(context.Background(), req, staticKeys(publicKey))
			if err != nil {
				t.Fatalf("VerifyRequest failed: %v", err)
			}

			expectedActor := "https://myserver.com/users/testuser"
			if actorURI != expectedActor {
				t.Errorf("Expected actor URI '%s', got '%s'", expectedActor, actorURI)
			}
		})
	}
}

func TestKeyIdWithoutFragment(t *testing.T) {
	privateKey, publicKey, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	keyId := "https://myserver.com/users/alice"
	req := newSignedRequest(t, privateKey, keyId, "POST", "https://example.com/inbox", []byte(`{"type":"Create"}`))

	actorURI, err := VerifyRequest(context.Background(), req, staticKeys(publicKey))
	if err != nil {
		t.Fatalf("VerifyRequest failed: %v", err)
	}

	if actorURI != keyId {
		t.Errorf("Expected actor URI '%s', got '%s'", keyId, actorURI)
	}
}
