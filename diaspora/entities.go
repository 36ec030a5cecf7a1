package diaspora

import (
	"strconv"
	"strings"
	"time"

	"github.com/deemkeen/federation/domain"
)

const (
	timeLayout       = "2006-01-02T15:04:05Z"
	legacyTimeLayout = "2006-01-02 15:04:05 MST"
)

// Entity is a Diaspora-specific entity that can be rendered as XML.
type Entity interface {
	domain.Specific
	tag() string
	fields() []field
	signing() *signed
}

// relayable entities are relayed by the parent author and carry the
// author's own signature.
type relayable interface {
	Entity
	relayable()
}

// signed holds the signatures of a specific entity. received keeps the
// fields of an inbound entity in wire order for signature checks.
type signed struct {
	AuthorSignature       string
	ParentAuthorSignature string
	Envelope              *Envelope
	received              []field
}

func (s *signed) Signature() string { return s.AuthorSignature }
func (s *signed) signing() *signed { return s }

func kind(v domain.Variant) domain.Kind {
	return domain.Kind{Protocol: ProtocolName, Variant: v}
}

type Post struct {
	domain.Post
	signed
	// photos that failed to map
	dropped []error
}

func (*Post) Kind() domain.Kind { return kind(domain.VariantPost) }
func (p *Post) Canonical() domain.Entity { c := p.Post; return &c }
func (*Post) tag() string { return "status_message" }

func (p *Post) fields() []field {
	var f fields
	f.add("author", p.ActorID)
	f.add("guid", p.ID)
	f.opt("created_at", formatTime(p.CreatedAt))
	f.add("public", formatBool(p.Public))
	f.add("text", p.RawContent)
	f.opt("provider_display_name", p.ProviderDisplayName)
	return f
}

// photos returns the image children as photo entities linked to p.
func (p *Post) photos() []*Image {
	var out []*Image
	for _, child := range p.Children {
		img, ok := child.(*domain.Image)
		if !ok {
			continue
		}
		photo := &Image{Image: *img}
		if photo.ActorID == "" {
			photo.ActorID = p.ActorID
		}
		if photo.LinkedID == "" {
			photo.LinkedType = domain.VariantPost.String()
			photo.LinkedID = p.ID
		}
		photo.Public = p.Public
		out = append(out, photo)
	}
	return out
}

type Image struct {
	domain.Image
	signed
}

func (*Image) Kind() domain.Kind { return kind(domain.VariantImage) }
func (i *Image) Canonical() domain.Entity { c := i.Image; return &c }
func (*Image) tag() string { return "photo" }

func (i *Image) fields() []field {
	var f fields
	f.add("guid", i.ID)
	f.add("author", i.ActorID)
	f.add("public", formatBool(i.Public))
	f.opt("created_at", formatTime(i.CreatedAt))
	f.add("remote_photo_path", i.RemotePath)
	f.add("remote_photo_name", i.RemoteName)
	f.opt("text", i.RawContent)
	f.opt("status_message_guid", i.LinkedID)
	if i.Height > 0 {
		f.add("height", strconv.Itoa(i.Height))
	}
	if i.Width > 0 {
		f.add("width", strconv.Itoa(i.Width))
	}
	return f
}

type Comment struct {
	domain.Comment
	signed
}

func (*Comment) Kind() domain.Kind { return kind(domain.VariantComment) }
func (c *Comment) Canonical() domain.Entity { cc := c.Comment; return &cc }
func (*Comment) tag() string { return "comment" }
func (*Comment) relayable() {}

func (c *Comment) fields() []field {
	var f fields
	f.add("guid", c.ID)
	f.add("parent_guid", c.TargetID)
	f.add("text", c.RawContent)
	f.add("author", c.ActorID)
	return f
}

type Reaction struct {
	domain.Reaction
	signed
}

func (*Reaction) Kind() domain.Kind { return kind(domain.VariantReaction) }
func (r *Reaction) Canonical() domain.Entity { c := r.Reaction; return &c }
func (*Reaction) tag() string { return "like" }
func (*Reaction) relayable() {}

func (r *Reaction) fields() []field {
	var f fields
	f.add("parent_type", "Post")
	f.add("guid", r.ID)
	f.add("parent_guid", r.TargetID)
	f.add("positive", formatBool(r.Reaction.Reaction == "like"))
	f.add("author", r.ActorID)
	return f
}

// Follow renders as a contact that follows and shares, or neither.
type Follow struct {
	domain.Follow
	signed
}

func (*Follow) Kind() domain.Kind { return kind(domain.VariantFollow) }
func (f *Follow) Canonical() domain.Entity { c := f.Follow; return &c }
func (*Follow) tag() string { return "contact" }

func (f *Follow) fields() []field {
	var out fields
	out.add("author", f.ActorID)
	out.add("recipient", f.TargetID)
	out.add("following", formatBool(f.Following))
	out.add("sharing", formatBool(f.Following))
	return out
}

// Accept renders as a contact that shares with the follower without
// following back.
type Accept struct {
	domain.Accept
	signed
}

func (*Accept) Kind() domain.Kind { return kind(domain.VariantAccept) }
func (a *Accept) Canonical() domain.Entity { c := a.Accept; return &c }
func (*Accept) tag() string { return "contact" }

func (a *Accept) fields() []field {
	var f fields
	f.add("author", a.ActorID)
	f.add("recipient", a.TargetID)
	f.add("following", "false")
	f.add("sharing", "true")
	return f
}

type Profile struct {
	domain.Profile
	signed
}

func (*Profile) Kind() domain.Kind { return kind(domain.VariantProfile) }
func (p *Profile) Canonical() domain.Entity { c := p.Profile; return &c }
func (*Profile) tag() string { return "profile" }

func (p *Profile) fields() []field {
	var f fields
	f.add("author", p.ActorID)
	f.opt("first_name", p.Name)
	f.opt("image_url", p.ImageURLs["large"])
	f.opt("image_url_medium", p.ImageURLs["medium"])
	f.opt("image_url_small", p.ImageURLs["small"])
	f.opt("bio", p.RawContent)
	f.opt("gender", p.Gender)
	f.opt("location", p.Location)
	f.add("searchable", formatBool(p.Public))
	f.add("nsfw", formatBool(p.NSFW))
	if len(p.TagList) > 0 {
		tags := make([]string, 0, len(p.TagList))
		for _, t := range p.TagList {
			tags = append(tags, "#"+t)
		}
		f.add("tag_string", strings.Join(tags, " "))
	}
	return f
}

type Retraction struct {
	domain.Retraction
	signed
}

func (*Retraction) Kind() domain.Kind { return kind(domain.VariantRetraction) }
func (r *Retraction) Canonical() domain.Entity { c := r.Retraction; return &c }
func (*Retraction) tag() string { return "retraction" }

func (r *Retraction) fields() []field {
	var f fields
	f.add("author", r.ActorID)
	f.add("target_guid", r.TargetID)
	targetType := r.EntityType
	if wire, ok := wireTargetTypes[r.EntityType]; ok {
		targetType = wire
	}
	f.add("target_type", targetType)
	return f
}

type Reshare struct {
	domain.Reshare
	signed
}

func (*Reshare) Kind() domain.Kind { return kind(domain.VariantReshare) }
func (r *Reshare) Canonical() domain.Entity { c := r.Reshare; return &c }
func (*Reshare) tag() string { return "reshare" }

func (r *Reshare) fields() []field {
	var f fields
	f.add("author", r.ActorID)
	f.add("guid", r.ID)
	f.opt("created_at", formatTime(r.CreatedAt))
	f.add("root_author", r.TargetActorID)
	f.add("root_guid", r.TargetID)
	if r.EntityType != domain.VariantPost.String() {
		f.add("entity_type", r.EntityType)
	}
	f.opt("text", r.RawContent)
	f.add("public", formatBool(r.Public))
	return f
}

var wireTargetTypes = map[string]string{
	domain.VariantPost.String():     "Post",
	domain.VariantComment.String():  "Comment",
	domain.VariantReaction.String(): "Like",
	domain.VariantImage.String():    "Photo",
	domain.VariantProfile.String():  "Person",
	domain.VariantReshare.String():  "Reshare",
}

type fields []field

// add appends a field with line endings normalized, as XML parsers do.
func (f *fields) add(name, value string) {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	value = strings.ReplaceAll(value, "\r", "\n")
	*f = append(*f, field{name: name, value: value})
}

func (f *fields) opt(name, value string) {
	if value != "" {
		f.add(name, value)
	}
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// wireFields are the fields a signature covers: the received ones for
// inbound entities, the generated ones otherwise.
func wireFields(e Entity) []field {
	if received := e.signing().received; received != nil {
		return received
	}
	return e.fields()
}

// Marshal renders the entity XML, signatures and photo children included.
func Marshal(e Entity) ([]byte, error) {
	f := fields(wireFields(e))
	if _, ok := e.(relayable); ok {
		s := e.signing()
		f.opt("author_signature", s.AuthorSignature)
		f.opt("parent_author_signature", s.ParentAuthorSignature)
	}
	var children [][]byte
	if p, ok := e.(*Post); ok {
		for _, photo := range p.photos() {
			b, err := Marshal(photo)
			if err != nil {
				return nil, err
			}
			children = append(children, b)
		}
	}
	return marshalEntity(e.tag(), f, children...)
}
