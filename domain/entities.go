package domain

import (
	"fmt"
	"time"
)

// Variant tags the canonical type of an entity.
type Variant uint8

const (
	VariantUnknown Variant = iota
	VariantProfile
	VariantPost
	VariantComment
	VariantReaction
	VariantFollow
	VariantAccept
	VariantRetraction
	VariantReshare
	VariantImage
)

var variantNames = map[Variant]string{
	VariantProfile:    "Profile",
	VariantPost:       "Post",
	VariantComment:    "Comment",
	VariantReaction:   "Reaction",
	VariantFollow:     "Follow",
	VariantAccept:     "Accept",
	VariantRetraction: "Retraction",
	VariantReshare:    "Reshare",
	VariantImage:      "Image",
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return "Unknown"
}

// Variants returns every canonical variant, in declaration order.
// Protocol adapters must map each of them in both directions.
func Variants() []Variant {
	return []Variant{
		VariantProfile,
		VariantPost,
		VariantComment,
		VariantReaction,
		VariantFollow,
		VariantAccept,
		VariantRetraction,
		VariantReshare,
		VariantImage,
	}
}

// Kind distinguishes canonical entities (empty Protocol) from
// protocol-specific ones.
type Kind struct {
	Protocol string
	Variant  Variant
}

// Specific reports whether the kind belongs to a protocol-specific entity.
func (k Kind) Specific() bool {
	return k.Protocol != ""
}

func (k Kind) String() string {
	if k.Specific() {
		return fmt.Sprintf("%s/%s", k.Protocol, k.Variant)
	}
	return k.Variant.String()
}

// Entity is implemented by every canonical and protocol-specific entity.
type Entity interface {
	Kind() Kind
	Common() *Base
	Validate() error
}

// Specific is a protocol-specific entity: the same field contract as its
// canonical variant plus an attached signature.
type Specific interface {
	Entity
	Canonical() Entity
	Signature() string
}

// Base holds the attributes shared by all variants.
type Base struct {
	ID         string
	ActorID    string `validate:"required"`
	TargetID   string
	Public     bool
	RawContent string
	MediaURLs  []string
	CreatedAt  time.Time

	// Set by the inbound mapper only.
	SourceProtocol   string
	SourceObject     []byte
	ReceivingActorID string

	// Child entities carried by the same wire message, e.g. post images.
	Children []Entity
}

func (b *Base) Common() *Base {
	return b
}

type Profile struct {
	Base
	Name      string
	ImageURLs map[string]string
	Gender    string
	Location  string
	NSFW      bool
	TagList   []string
	PublicKey string
}

func (*Profile) Kind() Kind { return Kind{Variant: VariantProfile} }

func (p *Profile) Validate() error {
	return validateEntity(p, rule{"ID", p.ID, "required"})
}

type Post struct {
	Base
	ProviderDisplayName string
}

func (*Post) Kind() Kind { return Kind{Variant: VariantPost} }

func (p *Post) Validate() error {
	return validateEntity(p, rule{"ID", p.ID, "required"})
}

// Comment is a reply; TargetID is the parent entity.
type Comment struct {
	Base
}

func (*Comment) Kind() Kind { return Kind{Variant: VariantComment} }

func (c *Comment) Validate() error {
	return validateEntity(c,
		rule{"ID", c.ID, "required"},
		rule{"TargetID", c.TargetID, "required"},
		rule{"RawContent", c.RawContent, "required"},
	)
}

type Reaction struct {
	Base
	Reaction string `validate:"required,oneof=like"`
}

func (*Reaction) Kind() Kind { return Kind{Variant: VariantReaction} }

func (r *Reaction) Validate() error {
	return validateEntity(r,
		rule{"ID", r.ID, "required"},
		rule{"TargetID", r.TargetID, "required"},
	)
}

// Follow covers both follow and unfollow, told apart by Following.
type Follow struct {
	Base
	Following bool
}

func (*Follow) Kind() Kind { return Kind{Variant: VariantFollow} }

func (f *Follow) Validate() error {
	return validateEntity(f, rule{"TargetID", f.TargetID, "required"})
}

// Accept acknowledges a follow; TargetID is the accepted follow.
type Accept struct {
	Base
}

func (*Accept) Kind() Kind { return Kind{Variant: VariantAccept} }

func (a *Accept) Validate() error {
	return validateEntity(a, rule{"TargetID", a.TargetID, "required"})
}

// Retraction withdraws TargetID, an entity of EntityType.
type Retraction struct {
	Base
	EntityType string `validate:"required"`
}

func (*Retraction) Kind() Kind { return Kind{Variant: VariantRetraction} }

func (r *Retraction) Validate() error {
	return validateEntity(r, rule{"TargetID", r.TargetID, "required"})
}

// Reshare shares TargetID, authored by TargetActorID.
type Reshare struct {
	Base
	TargetActorID string
	EntityType    string `validate:"required"`
}

func (*Reshare) Kind() Kind { return Kind{Variant: VariantReshare} }

func (r *Reshare) Validate() error {
	return validateEntity(r,
		rule{"ID", r.ID, "required"},
		rule{"TargetID", r.TargetID, "required"},
	)
}

type Image struct {
	Base
	RemotePath string `validate:"required"`
	RemoteName string `validate:"required"`
	LinkedType string
	LinkedID   string
	MediaType  string
	Height     int `validate:"gte=0"`
	Width      int `validate:"gte=0"`
}

func (*Image) Kind() Kind { return Kind{Variant: VariantImage} }

func (i *Image) Validate() error {
	return validateEntity(i)
}

// URL joins the remote path and name.
func (i *Image) URL() string {
	return i.RemotePath + i.RemoteName
}

// New returns an empty canonical entity of the given variant.
func New(v Variant) (Entity, error) {
	switch v {
	case VariantProfile:
		return &Profile{}, nil
	case VariantPost:
		return &Post{}, nil
	case VariantComment:
		return &Comment{}, nil
	case VariantReaction:
		return &Reaction{Reaction: "like"}, nil
	case VariantFollow:
		return &Follow{Following: true}, nil
	case VariantAccept:
		return &Accept{}, nil
	case VariantRetraction:
		return &Retraction{}, nil
	case VariantReshare:
		return &Reshare{EntityType: VariantPost.String()}, nil
	case VariantImage:
		return &Image{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnmappedVariant, v)
}
