package activitypub

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"

	"code.superseriousbusiness.org/httpsig"
	"github.com/deemkeen/federation/domain"
)

// SignRequest signs an outgoing HTTP request with the given private key
// keyId format: "https://example.com/users/alice#main-key"
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string) error {
	// Create signer with required headers
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		[]string{"(request-target)", "host", "date", "digest"},
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	// Sign the request, the digest header is added from the body
	return signer.SignRequest(privateKey, keyId, req, nil)
}

// RequestKeyOwner returns the actor owning the key a request claims to be
// signed with, without verifying anything.
func RequestKeyOwner(req *http.Request) (string, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}
	return stripFragment(verifier.KeyId()), nil
}

// VerifyRequestWithKey verifies the HTTP signature on an incoming request
// Returns the actor URI if valid, error otherwise
func VerifyRequestWithKey(req *http.Request, publicKey *rsa.PublicKey) (string, error) {
	// Create verifier from request
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}

	// Verify the signature
	if err := verifier.Verify(publicKey, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	// Extract actor URI from keyId
	// keyId is usually "https://example.com/users/alice#main-key"
	// We want "https://example.com/users/alice"
	return stripFragment(verifier.KeyId()), nil
}

// VerifyRequest authenticates the sender of an inbound request, resolving
// the signing key through keys. The returned actor URI is what the inbound
// mapper treats as the authenticated sender.
func VerifyRequest(ctx context.Context, req *http.Request, keys domain.KeyLookup) (string, error) {
	// Find out whose key the request claims
	owner, err := RequestKeyOwner(req)
	if err != nil {
		return "", err
	}
	// Resolve that key, from the cache or the actor document
	publicKey, err := keys.LookupRemoteKey(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("failed to look up key of %s: %w", owner, err)
	}
	return VerifyRequestWithKey(req, publicKey)
}
