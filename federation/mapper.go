package federation

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"slices"

	"github.com/deemkeen/federation/domain"
)

// Hook runs after an inbound entity passed verification. It may enrich the
// entity in place; an error drops the entity.
type Hook func(ctx context.Context, e domain.Entity, profiles domain.ProfileLookup) error

// Mapper converts inbound payloads to canonical entities and canonical
// entities to signed protocol-specific ones. It is read-only after
// construction.
type Mapper struct {
	protocols []Protocol
	byName    map[string]Protocol
	order     []string
	keys      domain.KeyLookup
	profiles  domain.ProfileLookup
	hooks     map[domain.Variant]Hook
	log       Diagnostics
}

type Option func(*Mapper)

// WithProtocolOrder restricts and reorders the adapters by name.
func WithProtocolOrder(names ...string) Option {
	return func(m *Mapper) {
		m.order = names
	}
}

func WithKeyLookup(keys domain.KeyLookup) Option {
	return func(m *Mapper) {
		m.keys = keys
	}
}

func WithProfileLookup(profiles domain.ProfileLookup) Option {
	return func(m *Mapper) {
		m.profiles = profiles
	}
}

// WithHook registers the post-receive hook of a variant, replacing any
// earlier one.
func WithHook(v domain.Variant, h Hook) Option {
	return func(m *Mapper) {
		m.hooks[v] = h
	}
}

func WithDiagnostics(d Diagnostics) Option {
	return func(m *Mapper) {
		if d != nil {
			m.log = d
		}
	}
}

// NewMapper builds a mapper and checks that every adapter can send every
// canonical variant.
func NewMapper(opts ...Option) (*Mapper, error) {
	m := &Mapper{
		protocols: DefaultProtocols(),
		hooks:     map[domain.Variant]Hook{},
		log:       discardDiagnostics(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.byName = make(map[string]Protocol, len(m.protocols))
	for _, p := range m.protocols {
		if _, dup := m.byName[p.Name()]; dup {
			return nil, fmt.Errorf("protocol %s registered twice", p.Name())
		}
		if missing := missingVariants(p); len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s cannot send %v", ErrUnmappedVariant, p.Name(), missing)
		}
		m.byName[p.Name()] = p
	}
	if m.order != nil {
		ordered := make([]Protocol, 0, len(m.order))
		for _, name := range m.order {
			p, ok := m.byName[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, name)
			}
			ordered = append(ordered, p)
		}
		m.protocols = ordered
		m.byName = make(map[string]Protocol, len(ordered))
		for _, p := range ordered {
			m.byName[p.Name()] = p
		}
	}
	if len(m.protocols) == 0 {
		return nil, fmt.Errorf("no protocols configured")
	}
	for v, h := range m.hooks {
		if _, err := domain.New(v); err != nil {
			return nil, fmt.Errorf("hook for %w", err)
		}
		if h == nil {
			delete(m.hooks, v)
		}
	}
	return m, nil
}

func missingVariants(p Protocol) []domain.Variant {
	supported := p.Variants()
	var missing []domain.Variant
	for _, v := range domain.Variants() {
		if !slices.Contains(supported, v) {
			missing = append(missing, v)
		}
	}
	return missing
}

// Protocols returns the adapter names in identification order.
func (m *Mapper) Protocols() []string {
	names := make([]string, 0, len(m.protocols))
	for _, p := range m.protocols {
		names = append(names, p.Name())
	}
	return names
}

// IdentifyRequest returns the first protocol, by priority, that claims
// the request.
func (m *Mapper) IdentifyRequest(req domain.Request) (string, bool) {
	if p := m.identify(req); p != nil {
		return p.Name(), true
	}
	return "", false
}

// IdentifyID returns the first protocol, by priority, whose identifiers
// look like id.
func (m *Mapper) IdentifyID(id string) (string, bool) {
	for _, p := range m.protocols {
		if p.IdentifyID(id) {
			return p.Name(), true
		}
	}
	return "", false
}

func (m *Mapper) identify(req domain.Request) Protocol {
	for _, p := range m.protocols {
		if p.IdentifyRequest(req) {
			return p
		}
	}
	return nil
}

type receiveOptions struct {
	receivingActor string
}

type ReceiveOption func(*receiveOptions)

// WithReceivingActor records the local actor the payload was addressed to.
func WithReceivingActor(id string) ReceiveOption {
	return func(o *receiveOptions) {
		o.receivingActor = id
	}
}

// MessageToObjects maps an inbound payload to verified canonical-contract
// entities. sender is the identifier the transport authenticated, empty
// if none. Nothing the payload contains makes it fail: unidentified
// payloads yield nothing silently, every other dropped payload or entity
// is reported to the diagnostics sink.
func (m *Mapper) MessageToObjects(ctx context.Context, req domain.Request, sender string, opts ...ReceiveOption) (entities []domain.Entity) {
	var o receiveOptions
	for _, opt := range opts {
		opt(&o)
	}
	// Find the adapter that claims the payload
	p := m.identify(req)
	if p == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Panic while mapping payload", "protocol", p.Name(), "sender", sender, "err", r)
			entities = nil
		}
	}()

	// Parse once, then map each candidate on its own
	wire, err := p.Parse(req)
	if err != nil {
		m.log.Error("Failed to parse payload", "protocol", p.Name(), "sender", sender, "err", err)
		return nil
	}
	for _, c := range p.Canonicalize(wire) {
		e := m.admit(ctx, p, c, sender)
		if e == nil {
			continue
		}
		m.stamp(e, p.Name(), req.Body, o.receivingActor)
		// Run the hook before handing the entity out
		if h, ok := m.hooks[e.Kind().Variant]; ok {
			if err := h(ctx, e, m.profiles); err != nil {
				m.log.Error("Post-receive hook failed", "protocol", p.Name(), "handle", e.Common().ActorID, "id", e.Common().ID, "err", err)
				continue
			}
		}
		entities = append(entities, e)
	}
	return entities
}

// admit validates and verifies one candidate, returning nil when it has to
// be dropped.
func (m *Mapper) admit(ctx context.Context, p Protocol, c domain.Candidate, sender string) domain.Entity {
	if c.Err != nil {
		report(m.log, "Dropped invalid entity", c.Err, "protocol", p.Name(), "handle", c.Handle)
		return nil
	}
	if c.Entity == nil {
		return nil
	}
	base := c.Entity.Common()
	if err := c.Entity.Validate(); err != nil {
		report(m.log, "Dropped invalid entity", err, "protocol", p.Name(), "handle", base.ActorID, "id", base.ID)
		return nil
	}
	if err := p.Verify(ctx, c, sender, m.keys); err != nil {
		report(m.log, "Dropped unauthenticated entity", err, "protocol", p.Name(), "handle", base.ActorID, "id", base.ID, "sender", sender)
		return nil
	}
	for _, err := range c.ChildErrs {
		report(m.log, "Dropped invalid child entity", err, "protocol", p.Name(), "handle", base.ActorID, "parent", base.ID)
	}
	children := base.Children[:0:0]
	for _, child := range base.Children {
		if err := child.Validate(); err != nil {
			report(m.log, "Dropped invalid child entity", err, "protocol", p.Name(), "handle", base.ActorID, "id", child.Common().ID, "parent", base.ID)
			continue
		}
		children = append(children, child)
	}
	base.Children = children
	return c.Entity
}

// stamp records where an entity came from, on its children too.
func (m *Mapper) stamp(e domain.Entity, protocol string, body []byte, receivingActor string) {
	base := e.Common()
	base.SourceProtocol = protocol
	base.SourceObject = bytes.Clone(body)
	base.ReceivingActorID = receivingActor
	for _, child := range base.Children {
		m.stamp(child, protocol, body, receivingActor)
	}
}

// GetOutboundEntity returns e in the form of the named protocol, signed
// with key. An entity that already is of that protocol is returned as is.
func (m *Mapper) GetOutboundEntity(e domain.Entity, protocol string, key *rsa.PrivateKey) (domain.Specific, error) {
	p, ok := m.byName[protocol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, protocol)
	}
	if s, ok := e.(domain.Specific); ok && e.Kind().Protocol == protocol {
		return s, nil
	}
	return p.Outbound(e, key)
}

// Render serializes a protocol-specific entity for transport.
func (m *Mapper) Render(e domain.Specific, key *rsa.PrivateKey) ([]byte, error) {
	p, ok := m.byName[e.Kind().Protocol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, e.Kind().Protocol)
	}
	return p.Render(e, key)
}
