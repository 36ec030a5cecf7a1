package diaspora

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// signatureFields are never part of the signed text.
var signatureFields = map[string]bool{
	"author_signature":        true,
	"parent_author_signature": true,
}

// signedText joins the field values in order with ";".
func signedText(fields []field) string {
	values := make([]string, 0, len(fields))
	for _, f := range fields {
		if signatureFields[f.name] {
			continue
		}
		values = append(values, f.value)
	}
	return strings.Join(values, ";")
}

// signFields returns the base64 RSA-SHA256 signature over the field values.
func signFields(fields []field, key *rsa.PrivateKey) (string, error) {
	digest := sha256.Sum256([]byte(signedText(fields)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign fields: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func verifyFields(fields []field, signature string, key *rsa.PublicKey) error {
	raw, err := base64.StdEncoding.DecodeString(compact(signature))
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	digest := sha256.Sum256([]byte(signedText(fields)))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], raw); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}
