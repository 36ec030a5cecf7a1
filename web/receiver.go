package web

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/deemkeen/federation/activitypub"
	"github.com/deemkeen/federation/domain"
	"github.com/deemkeen/federation/federation"
	"github.com/gin-gonic/gin"
)

// ReceiveFunc gets the entities mapped from one accepted payload.
type ReceiveFunc func(ctx context.Context, protocol string, entities []domain.Entity)

// Receiver authenticates inbound requests where the transport allows it
// and hands the payload to the mapper.
type Receiver struct {
	mapper    *federation.Mapper
	keys      domain.KeyLookup
	onReceive ReceiveFunc
}

func NewReceiver(mapper *federation.Mapper, keys domain.KeyLookup, onReceive ReceiveFunc) *Receiver {
	return &Receiver{mapper: mapper, keys: keys, onReceive: onReceive}
}

// Receive handles one inbox POST. receivingActor is the local actor the
// inbox belongs to, empty for shared inboxes.
func (r *Receiver) Receive(c *gin.Context, receivingActor string) {
	body, err := readPayload(c)
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	req := domain.Request{Body: body, Header: c.Request.Header.Clone()}
	protocol, ok := r.mapper.IdentifyRequest(req)
	if !ok {
		log.Printf("Inbox: Unsupported payload from %s", c.ClientIP())
		c.Status(http.StatusBadRequest)
		return
	}

	sender := ""
	if c.GetHeader("Signature") != "" {
		if err := checkDigest(c.Request.Header, body); err != nil {
			log.Printf("Inbox: Rejected %s payload: %v", protocol, err)
			c.Status(http.StatusUnauthorized)
			return
		}
		sender, err = activitypub.VerifyRequest(c.Request.Context(), c.Request, r.keys)
		if err != nil {
			log.Printf("Inbox: Invalid HTTP signature: %v", err)
			c.Status(http.StatusUnauthorized)
			return
		}
	}

	entities := r.mapper.MessageToObjects(c.Request.Context(), req, sender, federation.WithReceivingActor(receivingActor))
	log.Printf("Inbox: Accepted %d %s entities from %q", len(entities), protocol, sender)
	if r.onReceive != nil && len(entities) > 0 {
		r.onReceive(c.Request.Context(), protocol, entities)
	}
	c.Status(http.StatusAccepted)
}

// readPayload returns the request body. Legacy Diaspora pods post the
// envelope as the "xml" form field.
func readPayload(c *gin.Context) ([]byte, error) {
	body, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" {
		return body, nil
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	payload := form.Get("xml")
	if payload == "" {
		return nil, fmt.Errorf("form carries no xml field")
	}
	return []byte(payload), nil
}

// checkDigest compares a SHA-256 Digest header with the body. A missing
// header is left to the signature check, which requires it for POSTs.
func checkDigest(header http.Header, body []byte) error {
	digest := header.Get("Digest")
	if digest == "" {
		return nil
	}
	for _, part := range strings.Split(digest, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(algo, "SHA-256") {
			continue
		}
		sum := sha256.Sum256(body)
		if value != base64.StdEncoding.EncodeToString(sum[:]) {
			return fmt.Errorf("digest does not match body")
		}
		return nil
	}
	return fmt.Errorf("unsupported digest %q", digest)
}
