package activitypub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"
	ContextSecurity        = "https://w3id.org/security/v1"
	PublicCollection       = "https://www.w3.org/ns/activitystreams#Public"
)

var errNotAnObject = errors.New("document is not a JSON object")

// Object is a decoded JSON-LD node. Properties are read without
// dereferencing any remote identifiers.
type Object map[string]any

// decodeDocument decodes a JSON body into an Object. Bodies that were
// JSON-encoded twice (a JSON string holding the document) are unwrapped once.
func decodeDocument(body []byte) (Object, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if s, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("failed to decode embedded JSON: %w", err)
		}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errNotAnObject
	}
	return Object(m), nil
}

// ID returns the node identifier.
func (o Object) ID() string {
	return o.String("id")
}

// Type returns the first declared type of the node.
func (o Object) Type() string {
	switch t := o["type"].(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				return s
			}
		}
	}
	return ""
}

// String returns a string property or "".
func (o Object) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Ref returns the identifier a property points to. The value may be a
// plain URI, an embedded node or an array of either; the first usable
// entry wins.
func (o Object) Ref(key string) string {
	return refOf(o[key])
}

func refOf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if id, ok := val["id"].(string); ok {
			return id
		}
		if href, ok := val["href"].(string); ok {
			return href
		}
	case []any:
		for _, item := range val {
			if ref := refOf(item); ref != "" {
				return ref
			}
		}
	}
	return ""
}

// Object returns an embedded node, or nil when the property is a bare
// reference or absent.
func (o Object) Object(key string) Object {
	switch val := o[key].(type) {
	case map[string]any:
		return Object(val)
	case []any:
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				return Object(m)
			}
		}
	}
	return nil
}

// Objects returns every embedded node of a property.
func (o Object) Objects(key string) []Object {
	switch val := o[key].(type) {
	case map[string]any:
		return []Object{Object(val)}
	case []any:
		objects := make([]Object, 0, len(val))
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				objects = append(objects, Object(m))
			}
		}
		return objects
	}
	return nil
}

// Refs returns all identifiers of an addressing-style property.
func (o Object) Refs(key string) []string {
	switch val := o[key].(type) {
	case string:
		return []string{val}
	case []any:
		refs := make([]string, 0, len(val))
		for _, item := range val {
			if ref := refOf(item); ref != "" {
				refs = append(refs, ref)
			}
		}
		return refs
	case map[string]any:
		if ref := refOf(val); ref != "" {
			return []string{ref}
		}
	}
	return nil
}

// Int returns a numeric property as int.
func (o Object) Int(key string) int {
	switch n := o[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

// Time parses an xsd:dateTime property.
func (o Object) Time(key string) time.Time {
	t, err := time.Parse(time.RFC3339, o.String(key))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// IsPublic reports whether the node is addressed to the public collection.
func (o Object) IsPublic() bool {
	for _, key := range []string{"to", "cc"} {
		for _, ref := range o.Refs(key) {
			if isPublicCollection(ref) {
				return true
			}
		}
	}
	return false
}

func isPublicCollection(ref string) bool {
	return ref == PublicCollection || ref == "as:Public" || ref == "Public"
}

// without returns a shallow copy of o lacking key.
func (o Object) without(key string) Object {
	c := make(Object, len(o))
	for k, v := range o {
		if k != key {
			c[k] = v
		}
	}
	return c
}

// stripFragment drops the "#main-key" style fragment of a key id.
func stripFragment(uri string) string {
	if i := strings.Index(uri, "#"); i >= 0 {
		return uri[:i]
	}
	return uri
}
