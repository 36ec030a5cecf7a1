package activitypub

import (
	"strings"

	"github.com/deemkeen/federation/domain"
)

// ProtocolName tags entities produced or consumed by this adapter.
const ProtocolName = "activitypub"

// IdentifyID reports whether id is a dereferenceable URL, the only form
// an ActivityPub actor id takes. Handles and host:port strings are not.
func IdentifyID(id string) bool {
	return strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://")
}

// IdentifyRequest reports whether the request body is a JSON-LD document,
// i.e. a JSON object carrying an @context key.
func IdentifyRequest(req domain.Request) bool {
	doc, err := decodeDocument(req.Body)
	if err != nil {
		return false
	}
	_, ok := doc["@context"]
	return ok
}

// Protocol is the ActivityPub adapter used by the federation mapper.
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
