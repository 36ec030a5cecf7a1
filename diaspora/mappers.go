package diaspora

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/deemkeen/federation/domain"
	"github.com/google/uuid"
)

// attrs are entity fields keyed by their canonical attribute names.
type attrs map[string]string

// attributeNames maps wire field names, current and legacy, to canonical
// attribute names. Unlisted names are kept as is.
var attributeNames = map[string]string{
	"raw_message":             "raw_content",
	"text":                    "raw_content",
	"bio":                     "raw_content",
	"diaspora_handle":         "handle",
	"sender_handle":           "handle",
	"author":                  "handle",
	"recipient_handle":        "target_handle",
	"recipient":               "target_handle",
	"parent_guid":             "target_guid",
	"post_guid":               "target_guid",
	"root_guid":               "target_guid",
	"root_author":             "target_handle",
	"root_diaspora_id":        "target_handle",
	"first_name":              "name",
	"image_url":               "image_large",
	"image_url_medium":        "image_medium",
	"image_url_small":         "image_small",
	"searchable":              "public",
	"target_type":             "entity_type",
	"remote_photo_path":       "remote_path",
	"remote_photo_name":       "remote_name",
	"status_message_guid":     "linked_guid",
	"author_signature":        "signature",
	"parent_author_signature": "parent_signature",
}

func transform(fields []field) attrs {
	a := make(attrs, len(fields))
	for _, f := range fields {
		name := f.name
		if canonical, ok := attributeNames[name]; ok {
			name = canonical
		}
		value := f.value
		if name != "raw_content" {
			value = strings.TrimSpace(value)
		}
		a[name] = value
	}
	return a
}

func (a attrs) boolean(name string) bool {
	return strings.EqualFold(a[name], "true")
}

func (a attrs) integer(name string) (int, error) {
	if a[name] == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(a[name])
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a number: %q", domain.ErrValidation, name, a[name])
	}
	return n, nil
}

func (a attrs) timestamp(name string) (time.Time, error) {
	raw := a[name]
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{timeLayout, time.RFC3339, legacyTimeLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s is not a timestamp: %q", domain.ErrValidation, name, raw)
}

func (a attrs) base() (domain.Base, error) {
	created, err := a.timestamp("created_at")
	if err != nil {
		return domain.Base{}, err
	}
	return domain.Base{
		ID:         a["guid"],
		ActorID:    a["handle"],
		TargetID:   a["target_guid"],
		Public:     a.boolean("public"),
		RawContent: a["raw_content"],
		CreatedAt:  created,
	}, nil
}

// inboundMapper builds an entity from its element and transformed fields.
type inboundMapper func(el *element, a attrs) (Entity, error)

var inboundMappings map[string]inboundMapper

func init() {
	inboundMappings = map[string]inboundMapper{
		"status_message":       postFromElement,
		"photo":                imageFromElement,
		"comment":              commentFromElement,
		"like":                 likeFromElement,
		"request":              requestFromElement,
		"contact":              contactFromElement,
		"profile":              profileFromElement,
		"retraction":           retractionFromElement,
		"signed_retraction":    retractionFromElement,
		"relayable_retraction": retractionFromElement,
		"reshare":              reshareFromElement,
	}
}

// requiredFields lists what relayables cannot do without, by canonical name.
var requiredFields = map[string][]string{
	"comment": {"guid", "target_guid", "raw_content", "handle"},
	"like":    {"guid", "target_guid", "positive", "handle"},
}

func checkRequired(tag string, a attrs) error {
	var missing []string
	for _, name := range requiredFields[tag] {
		if strings.TrimSpace(a[name]) == "" {
			missing = append(missing, name)
		}
	}
	if missing != nil {
		return fmt.Errorf("%w: %s lacks %s", domain.ErrValidation, tag, strings.Join(missing, ", "))
	}
	return nil
}

func withSignatures(e Entity, el *element, a attrs) Entity {
	s := e.signing()
	s.AuthorSignature = a["signature"]
	s.ParentAuthorSignature = a["parent_signature"]
	if _, ok := e.(relayable); ok {
		for _, f := range el.fields() {
			if !signatureFields[f.name] {
				s.received = append(s.received, f)
			}
		}
	}
	return e
}

func postFromElement(el *element, a attrs) (Entity, error) {
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	p := &Post{Post: domain.Post{Base: base, ProviderDisplayName: a["provider_display_name"]}}
	for _, child := range el.Children {
		if child.Name.Local != "photo" {
			continue
		}
		e, err := imageFromElement(child, transform(child.fields()))
		if err != nil {
			// the post survives a broken photo, the error travels with it
			p.dropped = append(p.dropped, fmt.Errorf("photo of post %s: %w", p.ID, err))
			continue
		}
		img := e.(*Image)
		if img.ActorID == "" {
			img.ActorID = p.ActorID
		}
		if img.LinkedID == "" {
			img.LinkedType = domain.VariantPost.String()
			img.LinkedID = p.ID
		}
		img.Public = p.Public
		p.Children = append(p.Children, &img.Image)
		p.MediaURLs = append(p.MediaURLs, img.URL())
	}
	return withSignatures(p, el, a), nil
}

func imageFromElement(el *element, a attrs) (Entity, error) {
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	height, err := a.integer("height")
	if err != nil {
		return nil, err
	}
	width, err := a.integer("width")
	if err != nil {
		return nil, err
	}
	i := &Image{Image: domain.Image{
		Base:       base,
		RemotePath: a["remote_path"],
		RemoteName: a["remote_name"],
		Height:     height,
		Width:      width,
	}}
	if linked := a["linked_guid"]; linked != "" {
		i.LinkedType = domain.VariantPost.String()
		i.LinkedID = linked
	}
	return withSignatures(i, el, a), nil
}

func commentFromElement(el *element, a attrs) (Entity, error) {
	if err := checkRequired("comment", a); err != nil {
		return nil, err
	}
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	return withSignatures(&Comment{Comment: domain.Comment{Base: base}}, el, a), nil
}

// likeFromElement maps positive likes; dislikes fail validation later.
func likeFromElement(el *element, a attrs) (Entity, error) {
	if err := checkRequired("like", a); err != nil {
		return nil, err
	}
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	reaction := "like"
	if !a.boolean("positive") {
		reaction = "dislike"
	}
	r := &Reaction{Reaction: domain.Reaction{Base: base, Reaction: reaction}}
	return withSignatures(r, el, a), nil
}

func requestFromElement(el *element, a attrs) (Entity, error) {
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	base.TargetID = a["target_handle"]
	return withSignatures(&Follow{Follow: domain.Follow{Base: base, Following: true}}, el, a), nil
}

// contactFromElement maps a contact that shares without following to an
// Accept, everything else to a Follow.
func contactFromElement(el *element, a attrs) (Entity, error) {
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	base.TargetID = a["target_handle"]
	following, sharing := a.boolean("following"), a.boolean("sharing")
	if !following && sharing {
		return withSignatures(&Accept{Accept: domain.Accept{Base: base}}, el, a), nil
	}
	return withSignatures(&Follow{Follow: domain.Follow{Base: base, Following: following}}, el, a), nil
}

func profileFromElement(el *element, a attrs) (Entity, error) {
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	base.ID = base.ActorID
	p := &Profile{Profile: domain.Profile{
		Base:     base,
		Name:     strings.TrimSpace(a["name"] + " " + a["last_name"]),
		Gender:   a["gender"],
		Location: a["location"],
		NSFW:     a.boolean("nsfw"),
	}}
	images := map[string]string{}
	for _, size := range []string{"large", "medium", "small"} {
		if url := a["image_"+size]; url != "" {
			images[size] = url
		}
	}
	if len(images) > 0 {
		p.ImageURLs = images
	}
	for _, tag := range strings.Fields(a["tag_string"]) {
		if tag = strings.TrimPrefix(tag, "#"); tag != "" {
			p.TagList = append(p.TagList, tag)
		}
	}
	return withSignatures(p, el, a), nil
}

// retractionTypes maps wire target types to canonical variant names.
var retractionTypes = map[string]domain.Variant{
	"StatusMessage": domain.VariantPost,
	"Post":          domain.VariantPost,
	"Comment":       domain.VariantComment,
	"Like":          domain.VariantReaction,
	"Photo":         domain.VariantImage,
	"Person":        domain.VariantProfile,
	"Reshare":       domain.VariantReshare,
}

func retractionFromElement(el *element, a attrs) (Entity, error) {
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	base.ID = ""
	base.TargetID = a["target_guid"]
	entityType := a["entity_type"]
	if entityType == "" {
		// legacy retractions name the target type as type
		entityType = a["type"]
	}
	if v, ok := retractionTypes[entityType]; ok {
		entityType = v.String()
	}
	r := &Retraction{Retraction: domain.Retraction{Base: base, EntityType: entityType}}
	return withSignatures(r, el, a), nil
}

// reshareRule decides what a reshare points at. The first rule that
// applies wins.
type reshareRule struct {
	applies func(a attrs) bool
	resolve func(a attrs) (string, error)
}

var reshareTargets = map[string]domain.Variant{
	"Post":          domain.VariantPost,
	"StatusMessage": domain.VariantPost,
	"Comment":       domain.VariantComment,
}

var reshareRules = []reshareRule{
	{
		applies: func(a attrs) bool { return a["entity_type"] != "" },
		resolve: func(a attrs) (string, error) {
			v, ok := reshareTargets[a["entity_type"]]
			if !ok {
				return "", fmt.Errorf("%w: cannot reshare a %q", domain.ErrValidation, a["entity_type"])
			}
			return v.String(), nil
		},
	},
	{
		applies: func(attrs) bool { return true },
		resolve: func(attrs) (string, error) { return domain.VariantPost.String(), nil },
	},
}

func reshareFromElement(el *element, a attrs) (Entity, error) {
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	r := &Reshare{Reshare: domain.Reshare{Base: base, TargetActorID: a["target_handle"]}}
	for _, rule := range reshareRules {
		if !rule.applies(a) {
			continue
		}
		if r.EntityType, err = rule.resolve(a); err != nil {
			return nil, err
		}
		break
	}
	return withSignatures(r, el, a), nil
}

// Canonicalize maps a parsed message to at most one candidate; photos
// nested in a post travel as its children.
func (*Protocol) Canonicalize(wire any) []domain.Candidate {
	msg, ok := wire.(*Message)
	if !ok {
		return []domain.Candidate{{Wire: wire, Err: fmt.Errorf("%w: unexpected wire object %T", domain.ErrValidation, wire)}}
	}
	if msg.Entity == nil {
		return nil
	}
	mapper, ok := inboundMappings[msg.Entity.Name.Local]
	if !ok {
		return nil
	}
	a := transform(msg.Entity.fields())
	e, err := mapper(msg.Entity, a)
	if err != nil {
		return []domain.Candidate{{Handle: a["handle"], Wire: msg, Err: err}}
	}
	c := domain.Candidate{Entity: e, Handle: e.Common().ActorID, Wire: msg}
	if p, ok := e.(*Post); ok {
		c.ChildErrs = p.dropped
	}
	return []domain.Candidate{c}
}

// Verify authenticates a candidate. A magic envelope must verify against
// its signer's key. Non-relayables must be authored by the envelope signer,
// or by the sender for bare payloads. Relayables may be relayed by someone
// else but then need a valid author signature.
func (*Protocol) Verify(ctx context.Context, c domain.Candidate, sender string, keys domain.KeyLookup) error {
	actor := c.Entity.Common().ActorID
	if keys == nil {
		return fmt.Errorf("%w: no key lookup configured for %s", domain.ErrAuthentication, actor)
	}
	msg, _ := c.Wire.(*Message)
	authenticated := false
	if msg != nil && msg.Envelope != nil {
		signer := msg.Author()
		if signer == "" {
			return fmt.Errorf("%w: envelope names no signer", domain.ErrAuthentication)
		}
		key, err := keys.LookupRemoteKey(ctx, signer)
		if err != nil {
			return fmt.Errorf("%w: failed to look up key of %s: %w", domain.ErrAuthentication, signer, err)
		}
		if err := msg.Envelope.Verify(key); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
		}
		authenticated = signer == actor
	} else {
		authenticated = sender != "" && sender == actor
	}

	rel, ok := c.Entity.(relayable)
	if !ok {
		if !authenticated {
			return fmt.Errorf("%w: %s is not authored by the sender", domain.ErrAuthentication, actor)
		}
		return nil
	}
	s := rel.signing()
	if s.AuthorSignature == "" {
		if authenticated {
			return nil
		}
		return fmt.Errorf("%w: relayed %s by %s carries no author signature", domain.ErrAuthentication, rel.tag(), actor)
	}
	key, err := keys.LookupRemoteKey(ctx, actor)
	if err != nil {
		return fmt.Errorf("%w: failed to look up key of %s: %w", domain.ErrAuthentication, actor, err)
	}
	if err := verifyFields(wireFields(rel), s.AuthorSignature, key); err != nil {
		return fmt.Errorf("%w: author signature of %s: %w", domain.ErrAuthentication, actor, err)
	}
	return nil
}

// outboundMapping copies a canonical entity into its Diaspora form.
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

// GetOutboundEntity returns the Diaspora form of e, signed with key.
// Entities that already are Diaspora entities are returned unchanged.
func GetOutboundEntity(e domain.Entity, key *rsa.PrivateKey) (Entity, error) {
	if d, ok := e.(Entity); ok {
		return d, nil
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
	assignGUIDs(outbound)
	if err := sign(outbound, key); err != nil {
		return nil, err
	}
	return outbound, nil
}

// assignGUIDs mints guids where the wire format requires one. Children
// are copied so the caller's entity is left alone.
func assignGUIDs(e Entity) {
	base := e.Common()
	switch e.(type) {
	case *Profile:
		if base.ID == "" {
			base.ID = base.ActorID
		}
		return
	case *Follow, *Accept, *Retraction:
		return
	}
	if base.ID == "" {
		base.ID = uuid.New().String()
	}
	if len(base.Children) == 0 {
		return
	}
	children := make([]domain.Entity, 0, len(base.Children))
	for _, child := range base.Children {
		if img, ok := child.(*domain.Image); ok {
			cp := *img
			if cp.ID == "" {
				cp.ID = uuid.New().String()
			}
			child = &cp
		}
		children = append(children, child)
	}
	base.Children = children
}

// sign computes the author signature over the wire fields, mirrors it
// into the parent author signature for relayables and seals the entity in
// a magic envelope. Existing signatures are kept.
func sign(e Entity, key *rsa.PrivateKey) error {
	s := e.signing()
	if s.AuthorSignature == "" {
		sig, err := signFields(wireFields(e), key)
		if err != nil {
			return fmt.Errorf("failed to sign %s: %w", e.Kind(), err)
		}
		s.AuthorSignature = sig
	}
	if _, ok := e.(relayable); ok && s.ParentAuthorSignature == "" {
		s.ParentAuthorSignature = s.AuthorSignature
	}
	payload, err := Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", e.Kind(), err)
	}
	env, err := NewEnvelope(payload, e.Common().ActorID, key)
	if err != nil {
		return err
	}
	s.Envelope = env
	return nil
}

// Render serializes a Diaspora entity as a magic envelope. An entity
// without one is signed first, which needs key.
func (*Protocol) Render(e domain.Specific, key *rsa.PrivateKey) ([]byte, error) {
	d, ok := e.(Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a Diaspora entity", domain.ErrUnmappedVariant, e.Kind())
	}
	return Render(d, key)
}

func Render(e Entity, key *rsa.PrivateKey) ([]byte, error) {
	if e.signing().Envelope == nil {
		if key == nil {
			return nil, domain.ErrMissingSigningKey
		}
		if err := sign(e, key); err != nil {
			return nil, err
		}
	}
	return e.signing().Envelope.Marshal()
}
