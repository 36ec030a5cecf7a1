package diaspora

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	ProtocolNS    = "https://joindiaspora.com/protocol"
	MagicEnvNS    = "http://salmon-protocol.org/ns/magic-env"
	magicEnvAlias = "me"
)

var errEmptyDocument = errors.New("empty XML document")

// element is a parsed XML node. Child order is kept since relayable
// signatures are computed over the fields in the order they were received.
type element struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Children []*element
}

// field is one leaf value of an entity, in wire order.
type field struct {
	name  string
	value string
}

func parseElement(data []byte) (*element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root *element
	var stack []*element
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{Name: t.Name, Attrs: t.Copy().Attr}
			switch {
			case len(stack) > 0:
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			case root == nil:
				root = el
			default:
				return nil, fmt.Errorf("failed to parse XML: more than one root element")
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, errEmptyDocument
	}
	return root, nil
}

// child returns the first direct child with the given local name.
func (e *element) child(local string) *element {
	for _, c := range e.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

// find searches the subtree depth first, e itself included.
func (e *element) find(local string) *element {
	if e.Name.Local == local {
		return e
	}
	for _, c := range e.Children {
		if found := c.find(local); found != nil {
			return found
		}
	}
	return nil
}

func (e *element) attr(local string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// fields returns the leaf children of e in document order.
func (e *element) fields() []field {
	var out []field
	for _, c := range e.Children {
		if len(c.Children) == 0 {
			out = append(out, field{name: c.Name.Local, value: c.Text})
		}
	}
	return out
}

func (e *element) text() string {
	return strings.TrimSpace(e.Text)
}

func isMagicEnv(name xml.Name) bool {
	return name.Local == "env" && (name.Space == MagicEnvNS || name.Space == magicEnvAlias)
}

func isDiasporaRoot(name xml.Name) bool {
	return name.Local == "diaspora" && name.Space == ProtocolNS
}

// marshalEntity writes an entity element: its fields as leaves followed by
// nested child entities.
func marshalEntity(tag string, fields []field, children ...[]byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	start := xml.StartElement{Name: xml.Name{Local: tag}}
	if err := enc.EncodeToken(start); err != nil {
		return nil, err
	}
	for _, f := range fields {
		if err := enc.EncodeElement(f.value, xml.StartElement{Name: xml.Name{Local: f.name}}); err != nil {
			return nil, err
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	for _, c := range children {
		buf.Write(c)
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
