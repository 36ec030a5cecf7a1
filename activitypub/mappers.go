package activitypub

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/deemkeen/federation/domain"
)

// inboundMapper builds the candidates for one activity. A nil result
// means the activity carries nothing this adapter understands. Each
// candidate fails on its own, so one bad object leaves its siblings alone.
type inboundMapper func(act Object) []domain.Candidate

// inboundMappings maps activity and object types to their builders.
var inboundMappings map[string]inboundMapper

func init() {
	inboundMappings = map[string]inboundMapper{
		"Follow":       single(followFromActivity),
		"Undo":         single(undoFromActivity),
		"Accept":       single(acceptFromActivity),
		"Like":         single(likeFromActivity),
		"Announce":     single(announceFromActivity),
		"Delete":       single(deleteFromActivity),
		"Create":       notesFromActivity,
		"Update":       updateFromActivity,
		"Note":         single(noteFromObject),
		"Article":      single(noteFromObject),
		"Page":         single(noteFromObject),
		"Image":        single(imageFromObject),
		"Document":     single(imageFromObject),
		"Person":       single(profileFromObject),
		"Service":      single(profileFromObject),
		"Application":  single(profileFromObject),
		"Group":        single(profileFromObject),
		"Organization": single(profileFromObject),
	}
}

func single(f func(Object) (domain.Entity, error)) inboundMapper {
	return func(act Object) []domain.Candidate {
		e, err := f(act)
		return candidatesOf(act, e, err)
	}
}

func candidatesOf(obj Object, e domain.Entity, err error) []domain.Candidate {
	if err != nil {
		handle := obj.Ref("actor")
		if handle == "" {
			handle = obj.Ref("attributedTo")
		}
		return []domain.Candidate{{Handle: handle, Err: err}}
	}
	if e == nil {
		return nil
	}
	return []domain.Candidate{{Entity: e, Handle: e.Common().ActorID}}
}

// Parse decodes the request body into a JSON-LD document.
func (*Protocol) Parse(req domain.Request) (any, error) {
	doc, err := decodeDocument(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse activity: %w", err)
	}
	return doc, nil
}

// Canonicalize maps a parsed document to candidate entities. Unknown types
// yield no candidates; a malformed activity yields one failed candidate.
func (*Protocol) Canonicalize(wire any) []domain.Candidate {
	doc, ok := wire.(Object)
	if !ok {
		return []domain.Candidate{{Wire: wire, Err: fmt.Errorf("%w: unexpected wire object %T", domain.ErrValidation, wire)}}
	}
	mapper, ok := inboundMappings[doc.Type()]
	if !ok {
		return nil
	}
	candidates := mapper(doc)
	for i := range candidates {
		candidates[i].Wire = doc
	}
	return candidates
}

// Verify authenticates a candidate. The asserted actor either is the
// sender the transport authenticated, or the document must carry a valid
// linked-data signature by that actor.
func (*Protocol) Verify(ctx context.Context, c domain.Candidate, sender string, keys domain.KeyLookup) error {
	actor := c.Entity.Common().ActorID
	if sender != "" && actor == sender {
		return nil
	}
	doc, _ := c.Wire.(Object)
	sig := signatureFromObject(doc.Object("signature"))
	if sig == nil {
		if sender == "" {
			return fmt.Errorf("%w: no authenticated sender and no signature for %s", domain.ErrAuthentication, actor)
		}
		return fmt.Errorf("%w: actor %s does not match sender %s", domain.ErrAuthentication, actor, sender)
	}
	if owner := stripFragment(sig.Creator); owner != actor {
		return fmt.Errorf("%w: signature creator %s is not actor %s", domain.ErrAuthentication, owner, actor)
	}
	if keys == nil {
		return fmt.Errorf("%w: no key lookup configured for %s", domain.ErrAuthentication, actor)
	}
	key, err := keys.LookupRemoteKey(ctx, actor)
	if err != nil {
		return fmt.Errorf("%w: failed to look up key of %s: %w", domain.ErrAuthentication, actor, err)
	}
	if err := VerifyDocument(doc, key); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}
	return nil
}

func baseFromActivity(act Object) domain.Base {
	return domain.Base{
		ID:        act.ID(),
		ActorID:   act.Ref("actor"),
		TargetID:  act.Ref("object"),
		Public:    act.IsPublic(),
		CreatedAt: act.Time("published"),
	}
}

func withProof(e Entity, doc Object) Entity {
	if sig := doc.Object("signature"); sig != nil {
		e.setProof(signatureFromObject(sig))
	}
	return e
}

func followFromActivity(act Object) (domain.Entity, error) {
	f := &Follow{Follow: domain.Follow{Base: baseFromActivity(act), Following: true}}
	return withProof(f, act), nil
}

// undoFromActivity handles Undo{Follow} as an unfollow and Undo{Like} or
// Undo{Announce} as retractions.
func undoFromActivity(act Object) (domain.Entity, error) {
	inner := act.Object("object")
	if inner == nil {
		return nil, nil
	}
	actor := act.Ref("actor")
	if innerActor := inner.Ref("actor"); innerActor != "" && innerActor != actor {
		return nil, fmt.Errorf("%w: undo by %s of an activity by %s", domain.ErrValidation, actor, innerActor)
	}
	switch inner.Type() {
	case "Follow":
		base := baseFromActivity(act)
		base.ID = inner.ID()
		base.TargetID = inner.Ref("object")
		f := &Follow{Follow: domain.Follow{Base: base, Following: false}}
		return withProof(f, act), nil
	case "Like", "Announce":
		entityType := domain.VariantReaction.String()
		if inner.Type() == "Announce" {
			entityType = domain.VariantReshare.String()
		}
		r := &Retraction{Retraction: domain.Retraction{Base: baseFromActivity(act), EntityType: entityType}}
		r.TargetID = inner.ID()
		return withProof(r, act), nil
	}
	return nil, nil
}

func acceptFromActivity(act Object) (domain.Entity, error) {
	a := &Accept{Accept: domain.Accept{Base: baseFromActivity(act)}}
	return withProof(a, act), nil
}

func likeFromActivity(act Object) (domain.Entity, error) {
	r := &Reaction{Reaction: domain.Reaction{Base: baseFromActivity(act), Reaction: "like"}}
	return withProof(r, act), nil
}

// announceFromActivity builds a reshare. An embedded object replying to
// something makes the reshare point at a comment rather than a post.
func announceFromActivity(act Object) (domain.Entity, error) {
	r := &Reshare{Reshare: domain.Reshare{Base: baseFromActivity(act), EntityType: domain.VariantPost.String()}}
	r.RawContent = act.String("content")
	if obj := act.Object("object"); obj != nil {
		r.TargetActorID = obj.Ref("attributedTo")
		if obj.Ref("inReplyTo") != "" {
			r.EntityType = domain.VariantComment.String()
		}
	}
	return withProof(r, act), nil
}

func deleteFromActivity(act Object) (domain.Entity, error) {
	r := &Retraction{Retraction: domain.Retraction{Base: baseFromActivity(act), EntityType: "Object"}}
	if r.TargetID != "" && r.TargetID == r.ActorID {
		r.EntityType = domain.VariantProfile.String()
	} else if tombstone := act.Object("object"); tombstone != nil {
		if variant, ok := tombstoneTypes[tombstone.String("formerType")]; ok {
			r.EntityType = variant.String()
		}
	}
	return withProof(r, act), nil
}

var tombstoneTypes = map[string]domain.Variant{
	"Note":     domain.VariantPost,
	"Article":  domain.VariantPost,
	"Page":     domain.VariantPost,
	"Question": domain.VariantPost,
	"Image":    domain.VariantImage,
}

// notesFromActivity maps Create. The object may be a list; each entry
// becomes its own candidate.
func notesFromActivity(act Object) []domain.Candidate {
	objects := act.Objects("object")
	if len(objects) == 0 {
		if act.Ref("object") != "" {
			// a bare reference would need dereferencing
			return nil
		}
		return candidatesOf(act, nil, fmt.Errorf("%w: %s %s has no object", domain.ErrValidation, act.Type(), act.ID()))
	}
	actor := act.Ref("actor")
	var candidates []domain.Candidate
	for _, obj := range objects {
		switch obj.Type() {
		case "Note", "Article", "Page", "Question":
		default:
			continue
		}
		if author := obj.Ref("attributedTo"); author != "" && actor != "" && author != actor {
			err := fmt.Errorf("%w: %s created by %s but attributed to %s", domain.ErrValidation, obj.ID(), actor, author)
			candidates = append(candidates, domain.Candidate{Handle: author, Err: err})
			continue
		}
		e, err := noteFromObject(obj)
		if err != nil {
			candidates = append(candidates, candidatesOf(obj, nil, err)...)
			continue
		}
		if actor != "" {
			e.Common().ActorID = actor
		}
		candidates = append(candidates, candidatesOf(obj, withProof(e.(Entity), act), nil)...)
	}
	return candidates
}

func updateFromActivity(act Object) []domain.Candidate {
	obj := act.Object("object")
	if obj == nil {
		return nil
	}
	switch obj.Type() {
	case "Person", "Service", "Application", "Group", "Organization":
		e, err := profileFromObject(obj)
		if err != nil {
			return candidatesOf(act, nil, err)
		}
		return candidatesOf(act, withProof(e.(Entity), act), nil)
	}
	return notesFromActivity(act)
}

// noteFromObject maps a Note to a Post, or to a Comment when it replies
// to something. Image attachments become child Image entities.
func noteFromObject(obj Object) (domain.Entity, error) {
	base := domain.Base{
		ID:         obj.ID(),
		ActorID:    obj.Ref("attributedTo"),
		Public:     obj.IsPublic(),
		RawContent: obj.String("content"),
		CreatedAt:  obj.Time("published"),
	}
	for _, att := range obj.Objects("attachment") {
		img, err := imageFromObject(att)
		if err != nil || img == nil {
			continue
		}
		i := img.(*Image)
		i.ActorID = base.ActorID
		i.Public = base.Public
		i.LinkedType = domain.VariantPost.String()
		i.LinkedID = base.ID
		base.Children = append(base.Children, &i.Image)
		base.MediaURLs = append(base.MediaURLs, i.URL())
	}
	if replyTo := obj.Ref("inReplyTo"); replyTo != "" {
		c := &Comment{Comment: domain.Comment{Base: base}}
		c.TargetID = replyTo
		return withProof(c, obj), nil
	}
	p := &Post{Post: domain.Post{Base: base}}
	if gen := obj.Object("generator"); gen != nil {
		p.ProviderDisplayName = gen.String("name")
	}
	return withProof(p, obj), nil
}

// imageFromObject maps Image and image Documents; other documents are skipped.
func imageFromObject(obj Object) (domain.Entity, error) {
	mediaType := obj.String("mediaType")
	if obj.Type() == "Document" && !strings.HasPrefix(mediaType, "image/") {
		return nil, nil
	}
	remotePath, remoteName := splitURL(obj.Ref("url"))
	i := &Image{Image: domain.Image{
		Base: domain.Base{
			ID:         obj.ID(),
			ActorID:    obj.Ref("attributedTo"),
			RawContent: obj.String("name"),
			Public:     obj.IsPublic(),
		},
		RemotePath: remotePath,
		RemoteName: remoteName,
		MediaType:  mediaType,
		Width:      obj.Int("width"),
		Height:     obj.Int("height"),
	}}
	return withProof(i, obj), nil
}

func profileFromObject(obj Object) (domain.Entity, error) {
	id := obj.ID()
	p := &Profile{Profile: domain.Profile{
		Base: domain.Base{
			ID:         id,
			ActorID:    id,
			RawContent: obj.String("summary"),
			Public:     true,
		},
		Name: obj.String("name"),
	}}
	p.ImageURLs = imageURLsFromObject(obj)
	for _, att := range obj.Objects("attachment") {
		if att.Type() == "PropertyValue" && strings.EqualFold(att.String("name"), "gender") {
			p.Gender = att.String("value")
		}
	}
	if key := obj.Object("publicKey"); key != nil {
		p.PublicKey = key.String("publicKeyPem")
	}
	if sensitive, ok := obj["sensitive"].(bool); ok {
		p.NSFW = sensitive
	}
	if loc := obj.Object("location"); loc != nil {
		p.Location = loc.String("name")
	}
	for _, tag := range obj.Objects("tag") {
		if tag.Type() == "Hashtag" {
			p.TagList = append(p.TagList, strings.TrimPrefix(tag.String("name"), "#"))
		}
	}
	return withProof(p, obj), nil
}

// imageURLsFromObject reads the avatar sizes of an actor. Icons named after
// a size fill that size; an unnamed icon fills every size left empty.
func imageURLsFromObject(obj Object) map[string]string {
	urls := map[string]string{}
	fallback := ""
	icons := obj.Objects("icon")
	if len(icons) == 0 {
		fallback = obj.Ref("icon")
	}
	for _, icon := range icons {
		u := icon.Ref("url")
		if u == "" {
			continue
		}
		if name := icon.String("name"); slices.Contains(imageSizes, name) {
			urls[name] = u
		} else if fallback == "" {
			fallback = u
		}
	}
	// without an unnamed icon the largest named one stands in
	for _, size := range imageSizes {
		if fallback == "" {
			fallback = urls[size]
		}
	}
	if fallback == "" {
		return nil
	}
	for _, size := range imageSizes {
		if urls[size] == "" {
			urls[size] = fallback
		}
	}
	return urls
}

// splitURL splits "https://host/path/name.jpg" into "https://host/path/"
// and "name.jpg".
func splitURL(raw string) (string, string) {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw, ""
	}
	dir, name := path.Split(u.Path)
	if u.RawQuery != "" {
		name += "?" + u.RawQuery
	}
	u.Path = dir
	u.RawQuery = ""
	return u.String(), name
}

// outboundMapping copies a canonical entity into its ActivityPub form.
type outboundMapping func(domain.Entity) (Entity, bool)

var outboundMappings = map[domain.Variant]outboundMapping{
	domain.VariantProfile: func(e domain.Entity) (Entity, bool) {
		c, ok := e.(*domain.Profile)
		return &Profile{Profile: deref(c)}, ok
	},
	domain.VariantPost: func(e domain.Entity) (Entity, bool) {
		c, ok := e.(*domain.Post)
		return &Post{Post: deref(c)}, ok
	},
	domain.VariantComment: func(e domain.Entity) (Entity, bool) {
		c, ok := e.(*domain.Comment)
		return &Comment{Comment: deref(c)}, ok
	},
	domain.VariantReaction: func(e domain.Entity) (Entity, bool) {
		c, ok := e.(*domain.Reaction)
		return &Reaction{Reaction: deref(c)}, ok
	},
	domain.VariantFollow: func(e domain.Entity) (Entity, bool) {
		c, ok := e.(*domain.Follow)
		return &Follow{Follow: deref(c)}, ok
	},
	domain.VariantAccept: func(e domain.Entity) (Entity, bool) {
		c, ok := e.(*domain.Accept)
		return &Accept{Accept: deref(c)}, ok
	},
	domain.VariantRetraction: func(e domain.Entity) (Entity, bool) {
		c, ok := e.(*domain.Retraction)
		return &Retraction{Retraction: deref(c)}, ok
	},
	domain.VariantReshare: func(e domain.Entity) (Entity, bool) {
		c, ok := e.(*domain.Reshare)
		return &Reshare{Reshare: deref(c)}, ok
	},
	domain.VariantImage: func(e domain.Entity) (Entity, bool) {
		c, ok := e.(*domain.Image)
		return &Image{Image: deref(c)}, ok
	},
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Variants lists the canonical variants this adapter can send.
func (*Protocol) Variants() []domain.Variant {
	variants := make([]domain.Variant, 0, len(outboundMappings))
	for v := range outboundMappings {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })
	return variants
}

func (*Protocol) Outbound(e domain.Entity, key *rsa.PrivateKey) (domain.Specific, error) {
	return GetOutboundEntity(e, key)
}

// GetOutboundEntity returns the ActivityPub form of e, signed with key.
// Entities that already are ActivityPub entities are returned unchanged.
func GetOutboundEntity(e domain.Entity, key *rsa.PrivateKey) (Entity, error) {
	if ap, ok := e.(Entity); ok {
		return ap, nil
	}
	if s, ok := e.(domain.Specific); ok {
		e = s.Canonical()
	}
	if e.Kind().Specific() {
		return nil, fmt.Errorf("%w: %s has no canonical form", domain.ErrUnmappedVariant, e.Kind())
	}
	mapping, ok := outboundMappings[e.Kind().Variant]
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrUnmappedVariant, e.Kind(), ProtocolName)
	}
	outbound, ok := mapping(e)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a canonical %s", domain.ErrUnmappedVariant, e, e.Kind())
	}
	if key == nil {
		return nil, domain.ErrMissingSigningKey
	}
	base := outbound.Common()
	if base.ID == "" {
		base.ID = newActivityID(base.ActorID)
	}
	if err := sign(outbound, key); err != nil {
		return nil, err
	}
	return outbound, nil
}

func sign(e Entity, key *rsa.PrivateKey) error {
	proof, err := SignDocument(e.ToJSONLD(), key, keyID(e.Common().ActorID))
	if err != nil {
		return fmt.Errorf("failed to sign %s: %w", e.Kind(), err)
	}
	e.setProof(proof)
	return nil
}

// Render serializes an ActivityPub entity with its signature block. An
// unsigned entity is signed first, which needs key.
func (*Protocol) Render(e domain.Specific, key *rsa.PrivateKey) ([]byte, error) {
	ap, ok := e.(Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an ActivityPub entity", domain.ErrUnmappedVariant, e.Kind())
	}
	return Render(ap, key)
}

func Render(e Entity, key *rsa.PrivateKey) ([]byte, error) {
	if e.proof() == nil {
		if key == nil {
			return nil, domain.ErrMissingSigningKey
		}
		if err := sign(e, key); err != nil {
			return nil, err
		}
	}
	doc := e.ToJSONLD()
	doc["signature"] = e.proof().toObject()
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", e.Kind(), err)
	}
	return b, nil
}
