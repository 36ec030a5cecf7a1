package activitypub

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/deemkeen/federation/domain"
	"github.com/google/uuid"
)

// Entity is an ActivityPub-specific entity that can be rendered as a
// JSON-LD document.
type Entity interface {
	domain.Specific
	ToJSONLD() Object
	proof() *LDSignature
	setProof(*LDSignature)
}

// signed carries the linked-data signature of a specific entity.
type signed struct {
	Proof *LDSignature
}

func (s *signed) Signature() string {
	if s.Proof == nil {
		return ""
	}
	return s.Proof.SignatureValue
}

func (s *signed) proof() *LDSignature     { return s.Proof }
func (s *signed) setProof(p *LDSignature) { s.Proof = p }

func kind(v domain.Variant) domain.Kind {
	return domain.Kind{Protocol: ProtocolName, Variant: v}
}

type Profile struct {
	domain.Profile
	signed
}

func (*Profile) Kind() domain.Kind { return kind(domain.VariantProfile) }

func (p *Profile) Canonical() domain.Entity { c := p.Profile; return &c }

func (p *Profile) ToJSONLD() Object {
	doc := newDocument(p.ID, "Person")
	doc["@context"] = []any{ContextActivityStreams, ContextSecurity, propertyValueContext}
	if p.Name != "" {
		doc["name"] = p.Name
	}
	if p.RawContent != "" {
		doc["summary"] = p.RawContent
	}
	if icon := iconDocument(p.ImageURLs); icon != nil {
		doc["icon"] = icon
	}
	if p.Gender != "" {
		doc["attachment"] = []any{map[string]any{"type": "PropertyValue", "name": "Gender", "value": p.Gender}}
	}
	if p.PublicKey != "" {
		doc["publicKey"] = map[string]any{
			"id":           p.ID + "#main-key",
			"owner":        p.ID,
			"publicKeyPem": p.PublicKey,
		}
	}
	if len(p.TagList) > 0 {
		tags := make([]any, 0, len(p.TagList))
		for _, t := range p.TagList {
			tags = append(tags, map[string]any{"type": "Hashtag", "name": "#" + t})
		}
		doc["tag"] = tags
	}
	if p.NSFW {
		doc["sensitive"] = true
	}
	if p.Location != "" {
		doc["location"] = map[string]any{"type": "Place", "name": p.Location}
	}
	if p.Public {
		doc["discoverable"] = true
	}
	return doc
}

// propertyValueContext declares the profile metadata fields Mastodon
// uses for things like gender.
var propertyValueContext = map[string]any{
	"schema":        "http://schema.org#",
	"PropertyValue": "schema:PropertyValue",
	"value":         "schema:value",
}

// imageSizes are the avatar sizes a profile can carry, largest first.
var imageSizes = []string{"large", "medium", "small"}

// iconDocument renders avatar URLs as a single Image when all sizes are
// the same picture, otherwise as one named Image per size.
func iconDocument(urls map[string]string) any {
	var icons []any
	distinct := map[string]bool{}
	for _, size := range imageSizes {
		if u := urls[size]; u != "" {
			icons = append(icons, map[string]any{"type": "Image", "name": size, "url": u})
			distinct[u] = true
		}
	}
	switch len(distinct) {
	case 0:
		return nil
	case 1:
		for u := range distinct {
			return map[string]any{"type": "Image", "url": u}
		}
	}
	return icons
}

type Post struct {
	domain.Post
	signed
}

func (*Post) Kind() domain.Kind { return kind(domain.VariantPost) }

func (p *Post) Canonical() domain.Entity { c := p.Post; return &c }

func (p *Post) ToJSONLD() Object {
	note := noteObject(&p.Base, "")
	if p.ProviderDisplayName != "" {
		note["generator"] = map[string]any{"type": "Application", "name": p.ProviderDisplayName}
	}
	return createDocument(&p.Base, note)
}

type Comment struct {
	domain.Comment
	signed
}

func (*Comment) Kind() domain.Kind { return kind(domain.VariantComment) }

func (c *Comment) Canonical() domain.Entity { cc := c.Comment; return &cc }

func (c *Comment) ToJSONLD() Object {
	return createDocument(&c.Base, noteObject(&c.Base, c.TargetID))
}

type Reaction struct {
	domain.Reaction
	signed
}

func (*Reaction) Kind() domain.Kind { return kind(domain.VariantReaction) }

func (r *Reaction) Canonical() domain.Entity { c := r.Reaction; return &c }

func (r *Reaction) ToJSONLD() Object {
	doc := newDocument(r.ID, "Like")
	doc["actor"] = r.ActorID
	doc["object"] = r.TargetID
	return doc
}

// Follow renders as Follow, or as Undo{Follow} when Following is false.
type Follow struct {
	domain.Follow
	signed
}

func (*Follow) Kind() domain.Kind { return kind(domain.VariantFollow) }

func (f *Follow) Canonical() domain.Entity { c := f.Follow; return &c }

func (f *Follow) ToJSONLD() Object {
	follow := newDocument(f.ID, "Follow")
	follow["actor"] = f.ActorID
	follow["object"] = f.TargetID
	if f.Following {
		return follow
	}
	delete(follow, "@context")
	undo := newDocument(suffixID(f.ID, "/undo"), "Undo")
	undo["actor"] = f.ActorID
	undo["object"] = map[string]any(follow)
	return undo
}

type Accept struct {
	domain.Accept
	signed
}

func (*Accept) Kind() domain.Kind { return kind(domain.VariantAccept) }

func (a *Accept) Canonical() domain.Entity { c := a.Accept; return &c }

func (a *Accept) ToJSONLD() Object {
	doc := newDocument(a.ID, "Accept")
	doc["actor"] = a.ActorID
	doc["object"] = a.TargetID
	return doc
}

// Retraction renders reactions and reshares as Undo, everything else as
// Delete of a Tombstone.
type Retraction struct {
	domain.Retraction
	signed
}

func (*Retraction) Kind() domain.Kind { return kind(domain.VariantRetraction) }

func (r *Retraction) Canonical() domain.Entity { c := r.Retraction; return &c }

func (r *Retraction) ToJSONLD() Object {
	if undone, ok := undoTypes[r.EntityType]; ok {
		doc := newDocument(r.ID, "Undo")
		doc["actor"] = r.ActorID
		doc["object"] = map[string]any{
			"id":    r.TargetID,
			"type":  undone,
			"actor": r.ActorID,
		}
		return doc
	}
	doc := newDocument(r.ID, "Delete")
	doc["actor"] = r.ActorID
	if r.EntityType == domain.VariantProfile.String() {
		doc["object"] = r.TargetID
	} else {
		tombstone := map[string]any{"id": r.TargetID, "type": "Tombstone"}
		if former, ok := formerTypes[r.EntityType]; ok {
			tombstone["formerType"] = former
		}
		doc["object"] = tombstone
	}
	addressing(doc, &r.Base)
	return doc
}

type Reshare struct {
	domain.Reshare
	signed
}

func (*Reshare) Kind() domain.Kind { return kind(domain.VariantReshare) }

func (r *Reshare) Canonical() domain.Entity { c := r.Reshare; return &c }

func (r *Reshare) ToJSONLD() Object {
	doc := newDocument(r.ID, "Announce")
	doc["actor"] = r.ActorID
	doc["object"] = r.TargetID
	if r.RawContent != "" {
		doc["content"] = r.RawContent
	}
	published(doc, &r.Base)
	addressing(doc, &r.Base)
	return doc
}

type Image struct {
	domain.Image
	signed
}

func (*Image) Kind() domain.Kind { return kind(domain.VariantImage) }

func (i *Image) Canonical() domain.Entity { c := i.Image; return &c }

func (i *Image) ToJSONLD() Object {
	doc := newDocument(i.ID, "Image")
	if i.ActorID != "" {
		doc["attributedTo"] = i.ActorID
	}
	imageFields(doc, &i.Image)
	return doc
}

func imageFields(doc Object, i *domain.Image) {
	doc["url"] = i.URL()
	if i.MediaType != "" {
		doc["mediaType"] = i.MediaType
	}
	if i.RawContent != "" {
		doc["name"] = i.RawContent
	}
	if i.Width > 0 {
		doc["width"] = i.Width
	}
	if i.Height > 0 {
		doc["height"] = i.Height
	}
}

var (
	undoTypes = map[string]string{
		domain.VariantReaction.String(): "Like",
		domain.VariantReshare.String():  "Announce",
	}
	formerTypes = map[string]string{
		domain.VariantPost.String():    "Note",
		domain.VariantComment.String(): "Note",
		domain.VariantImage.String():   "Image",
	}
)

func newDocument(id, typ string) Object {
	doc := Object{
		"@context": ContextActivityStreams,
		"type":     typ,
	}
	if id != "" {
		doc["id"] = id
	}
	return doc
}

func noteObject(b *domain.Base, inReplyTo string) Object {
	note := newDocument(b.ID, "Note")
	delete(note, "@context")
	note["attributedTo"] = b.ActorID
	note["content"] = b.RawContent
	if inReplyTo != "" {
		note["inReplyTo"] = inReplyTo
	}
	published(note, b)
	addressing(note, b)
	var attachments []any
	for _, child := range b.Children {
		img, ok := child.(*domain.Image)
		if !ok {
			continue
		}
		att := Object{"type": "Image"}
		imageFields(att, img)
		attachments = append(attachments, map[string]any(att))
	}
	if attachments != nil {
		note["attachment"] = attachments
	}
	return note
}

func createDocument(b *domain.Base, note Object) Object {
	doc := newDocument(suffixID(b.ID, "/activity"), "Create")
	doc["actor"] = b.ActorID
	doc["object"] = map[string]any(note)
	published(doc, b)
	addressing(doc, b)
	return doc
}

func published(doc Object, b *domain.Base) {
	if !b.CreatedAt.IsZero() {
		doc["published"] = b.CreatedAt.UTC().Format(time.RFC3339)
	}
}

// addressing follows the usual public/followers-only split.
func addressing(doc Object, b *domain.Base) {
	if b.ActorID == "" {
		return
	}
	followers := b.ActorID + "/followers"
	if b.Public {
		doc["to"] = []any{PublicCollection}
		doc["cc"] = []any{followers}
	} else {
		doc["to"] = []any{followers}
	}
}

func suffixID(id, suffix string) string {
	if id == "" {
		return ""
	}
	return id + suffix
}

// newActivityID mints an id on the actor's host, e.g.
// "https://example.com/activities/<uuid>".
func newActivityID(actorID string) string {
	u, err := url.Parse(actorID)
	if err != nil || u.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s://%s/activities/%s", u.Scheme, u.Host, uuid.New().String())
}

// keyID derives the conventional key id of an actor.
func keyID(actorID string) string {
	if actorID == "" || strings.Contains(actorID, "#") {
		return actorID
	}
	return actorID + "#main-key"
}
