package diaspora

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/deemkeen/federation/domain"
)

// ProtocolName tags entities produced or consumed by this adapter.
const ProtocolName = "diaspora"

// IdentifyID reports whether id is a user@host handle.
func IdentifyID(id string) bool {
	return !strings.Contains(id, "://") && domain.IsHandle(id)
}

// IdentifyRequest reports whether the body is a Diaspora envelope or a
// bare magic envelope. Encrypted payloads identify too; Parse rejects them.
func IdentifyRequest(req domain.Request) bool {
	body := bytes.TrimSpace(req.Body)
	if len(body) == 0 || body[0] != '<' {
		return false
	}
	root, err := parseElement(body)
	if err != nil {
		return false
	}
	return isDiasporaRoot(root.Name) || isMagicEnv(root.Name)
}

// Message is a parsed Diaspora payload.
type Message struct {
	// Envelope is nil for bare entity XML.
	Envelope *Envelope
	// Entity is the entity element, nil when the payload carries none
	// this adapter knows.
	Entity *element
}

// Author is the handle the envelope claims as signer.
func (m *Message) Author() string {
	if m.Envelope == nil {
		return ""
	}
	return m.Envelope.Signer()
}

// Protocol is the Diaspora adapter used by the federation mapper.
type Protocol struct{}

func New() *Protocol {
	return &Protocol{}
}

func (*Protocol) Name() string {
	return ProtocolName
}

func (*Protocol) IdentifyID(id string) bool {
	return IdentifyID(id)
}

func (*Protocol) IdentifyRequest(req domain.Request) bool {
	return IdentifyRequest(req)
}

// Parse accepts a magic envelope, the legacy <diaspora> wrapping or bare
// entity XML, legacy <XML><post> included.
func (*Protocol) Parse(req domain.Request) (any, error) {
	return ParseMessage(req.Body)
}

func ParseMessage(body []byte) (*Message, error) {
	root, err := parseElement(bytes.TrimSpace(body))
	if err != nil {
		return nil, err
	}
	msg := &Message{}
	switch {
	case isDiasporaRoot(root.Name):
		if root.child("encrypted_header") != nil {
			return nil, ErrEncrypted
		}
		envEl := root.child("env")
		if envEl == nil || !isMagicEnv(envEl.Name) {
			return nil, fmt.Errorf("diaspora payload has no magic envelope")
		}
		if msg.Envelope, err = envelopeFromElement(envEl); err != nil {
			return nil, err
		}
		if header := root.child("header"); header != nil {
			if author := header.child("author_id"); author != nil {
				msg.Envelope.Author = author.text()
			}
		}
	case isMagicEnv(root.Name):
		if msg.Envelope, err = envelopeFromElement(root); err != nil {
			return nil, err
		}
	default:
		msg.Entity = findEntity(root)
		return msg, nil
	}
	payload, err := msg.Envelope.Payload()
	if err != nil {
		return nil, err
	}
	inner, err := parseElement(bytes.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to parse envelope payload: %w", err)
	}
	msg.Entity = findEntity(inner)
	return msg, nil
}

// searchOrder is the order in which legacy wrappings are searched for an
// entity element.
var searchOrder = []string{
	"status_message", "comment", "like", "request", "profile", "retraction",
	"signed_retraction", "relayable_retraction", "reshare", "photo", "contact",
}

func findEntity(root *element) *element {
	if _, ok := inboundMappings[root.Name.Local]; ok {
		return root
	}
	for _, tag := range searchOrder {
		if el := root.find(tag); el != nil {
			return el
		}
	}
	return nil
}
