package activitypub

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const signatureType = "RsaSignature2017"

// LDSignature is a linked-data signature block embedded in a document
// under the "signature" key.
type LDSignature struct {
	Type           string `json:"type"`
	Creator        string `json:"creator"`
	Created        string `json:"created"`
	SignatureValue string `json:"signatureValue"`
}

func (s *LDSignature) toObject() map[string]any {
	return map[string]any{
		"type":           s.Type,
		"creator":        s.Creator,
		"created":        s.Created,
		"signatureValue": s.SignatureValue,
	}
}

func signatureFromObject(o Object) *LDSignature {
	if o == nil {
		return nil
	}
	return &LDSignature{
		Type:           o.String("type"),
		Creator:        o.String("creator"),
		Created:        o.String("created"),
		SignatureValue: o.String("signatureValue"),
	}
}

// signingDigest follows RsaSignature2017: the signature options and the
// document without its signature block are each normalized with URDNA2015
// and hashed, and the signature covers the two hex digests in that order.
func signingDigest(doc Object, creator, created string) ([]byte, error) {
	optionsHash, err := normalizedHash(map[string]any{
		"@context": contextIdentity,
		"creator":  creator,
		"created":  created,
	})
	if err != nil {
		return nil, fmt.Errorf("signature options: %w", err)
	}
	documentHash, err := normalizedHash(doc.without("signature"))
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256([]byte(optionsHash + documentHash))
	return digest[:], nil
}

func normalizedHash(doc any) (string, error) {
	nquads, err := normalize(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(nquads))
	return hex.EncodeToString(sum[:]), nil
}

// SignDocument computes a linked-data signature over doc.
// creator is the key id, e.g. "https://example.com/users/alice#main-key".
func SignDocument(doc Object, key *rsa.PrivateKey, creator string) (*LDSignature, error) {
	created := time.Now().UTC().Format(time.RFC3339)
	digest, err := signingDigest(doc, creator, created)
	if err != nil {
		return nil, err
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign document: %w", err)
	}
	return &LDSignature{
		Type:           signatureType,
		Creator:        creator,
		Created:        created,
		SignatureValue: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// VerifyDocument checks the embedded signature block of doc against key.
func VerifyDocument(doc Object, key *rsa.PublicKey) error {
	sig := signatureFromObject(doc.Object("signature"))
	if sig == nil || sig.SignatureValue == "" {
		return fmt.Errorf("document carries no signature")
	}
	if sig.Type != signatureType {
		return fmt.Errorf("unsupported signature type %q", sig.Type)
	}
	raw, err := base64.StdEncoding.DecodeString(sig.SignatureValue)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	digest, err := signingDigest(doc, sig.Creator, sig.Created)
	if err != nil {
		return err
	}
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest, raw); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}
