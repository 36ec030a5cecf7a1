package diaspora

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

const (
	envelopeDataType = "application/xml"
	envelopeEncoding = "base64url"
	envelopeAlg      = "RSA-SHA256"
)

var ErrEncrypted = errors.New("encrypted diaspora payloads are not supported")

// Envelope is a Salmon magic envelope. Data holds the base64url encoded
// payload exactly as received, since the signature covers the encoded form.
type Envelope struct {
	Data     string
	DataType string
	Encoding string
	Alg      string
	Sig      string
	// KeyID is the base64url encoded handle of the signer, if given.
	KeyID string
	// Author comes from the legacy <header><author_id> when present.
	Author string
}

// NewEnvelope wraps payload in an envelope signed by author.
func NewEnvelope(payload []byte, author string, key *rsa.PrivateKey) (*Envelope, error) {
	env := &Envelope{
		Data:     base64.URLEncoding.EncodeToString(payload),
		DataType: envelopeDataType,
		Encoding: envelopeEncoding,
		Alg:      envelopeAlg,
		KeyID:    base64.URLEncoding.EncodeToString([]byte(author)),
	}
	digest := env.digest()
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign envelope: %w", err)
	}
	env.Sig = base64.URLEncoding.EncodeToString(sig)
	return env, nil
}

// digest hashes data.type.encoding.alg with every part but data base64url
// encoded.
func (e *Envelope) digest() [32]byte {
	subject := strings.Join([]string{
		e.Data,
		base64.URLEncoding.EncodeToString([]byte(e.DataType)),
		base64.URLEncoding.EncodeToString([]byte(e.Encoding)),
		base64.URLEncoding.EncodeToString([]byte(e.Alg)),
	}, ".")
	return sha256.Sum256([]byte(subject))
}

// Signer returns the handle that claims to have signed the envelope.
func (e *Envelope) Signer() string {
	if e.Author != "" {
		return e.Author
	}
	if e.KeyID == "" {
		return ""
	}
	handle, err := decodeBase64URL(e.KeyID)
	if err != nil {
		return ""
	}
	return string(handle)
}

// Payload returns the decoded entity XML.
func (e *Envelope) Payload() ([]byte, error) {
	if e.Encoding != "" && e.Encoding != envelopeEncoding {
		return nil, fmt.Errorf("unsupported envelope encoding %q", e.Encoding)
	}
	payload, err := decodeBase64URL(e.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode envelope data: %w", err)
	}
	return payload, nil
}

func (e *Envelope) Verify(key *rsa.PublicKey) error {
	if e.Alg != envelopeAlg {
		return fmt.Errorf("unsupported envelope algorithm %q", e.Alg)
	}
	sig, err := decodeBase64URL(e.Sig)
	if err != nil {
		return fmt.Errorf("failed to decode envelope signature: %w", err)
	}
	// Signed text is data.type.encoding.alg, each part base64url encoded
	digest := e.digest()
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("envelope signature verification failed: %w", err)
	}
	return nil
}

type envelopeXML struct {
	XMLName xml.Name `xml:"me:env"`
	NS      string   `xml:"xmlns:me,attr"`
	Data    struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"me:data"`
	Encoding string `xml:"me:encoding"`
	Alg      string `xml:"me:alg"`
	Sig      struct {
		KeyID string `xml:"key_id,attr,omitempty"`
		Value string `xml:",chardata"`
	} `xml:"me:sig"`
}

func (e *Envelope) Marshal() ([]byte, error) {
	out := envelopeXML{NS: MagicEnvNS, Encoding: e.Encoding, Alg: e.Alg}
	out.Data.Type = e.DataType
	out.Data.Value = e.Data
	out.Sig.KeyID = e.KeyID
	out.Sig.Value = e.Sig
	b, err := xml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return append([]byte(xml.Header), b...), nil
}

// envelopeFromElement reads a <me:env> element.
func envelopeFromElement(el *element) (*Envelope, error) {
	data := el.child("data")
	sig := el.child("sig")
	if data == nil || sig == nil {
		return nil, fmt.Errorf("magic envelope lacks data or sig")
	}
	env := &Envelope{
		Data:     compact(data.Text),
		DataType: data.attr("type"),
		Sig:      compact(sig.Text),
		KeyID:    sig.attr("key_id"),
	}
	if enc := el.child("encoding"); enc != nil {
		env.Encoding = enc.text()
	}
	if alg := el.child("alg"); alg != nil {
		env.Alg = alg.text()
	}
	return env, nil
}

// compact strips the whitespace some servers wrap base64 data with.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func decodeBase64URL(s string) ([]byte, error) {
	s = compact(s)
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
