package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	_ "embed"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
)

//go:embed version.txt
var embeddedVersion string

const keyBits = 4096

type RsaKeyPair struct {
	Private string
	Public  string
}

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

// UserAgent is sent on outgoing fetches.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", Name, GetVersion())
}

// KeyFingerprint returns the hex sha256 of a PEM encoded key.
func KeyFingerprint(pk string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(pk)))
	return hex.EncodeToString(h.Sum(nil))
}

func generatePemKeypair(bitSize int) *RsaKeyPair {
	key, err := rsa.GenerateKey(rand.Reader, bitSize)
	if err != nil {
		panic(err)
	}

	pub := key.Public()

	keyPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		},
	)

	pubPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PUBLIC KEY",
			Bytes: x509.MarshalPKCS1PublicKey(pub.(*rsa.PublicKey)),
		},
	)

	return &RsaKeyPair{Private: string(keyPEM[:]), Public: string(pubPEM[:])}
}

// LoadOrCreateKeypair reads the private key PEM at path, generating and
// storing a new pair when the file does not exist yet.
func LoadOrCreateKeypair(path string) (*RsaKeyPair, error) {
	return loadOrCreateKeypair(path, keyBits)
}

func loadOrCreateKeypair(path string, bitSize int) (*RsaKeyPair, error) {
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		pair := generatePemKeypair(bitSize)
		if err := os.WriteFile(path, []byte(pair.Private), 0600); err != nil {
			return nil, fmt.Errorf("failed to write key file: %w", err)
		}
		log.Printf("Generated new signing key at %s", path)
		return pair, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(buf)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	})
	return &RsaKeyPair{Private: string(buf), Public: string(pubPEM)}, nil
}
