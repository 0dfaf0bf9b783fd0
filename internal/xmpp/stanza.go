package xmpp

import (
	"encoding/xml"
	"strings"
)

// Attribute is a single name/value pair on a Stanza.
type Attribute struct {
	Name  string
	Value string
}

// Stanza is a mutable attributed XML tree. A node either carries a name and
// children or is a bare text node (name empty, Text set). Attribute order is
// preserved for serialization.
type Stanza struct {
	Name       string
	Attributes []Attribute
	Children   []*Stanza
	Text       string
}

// NewStanza constructs a named stanza, optionally with an xmlns attribute.
func NewStanza(name string, xmlns ...string) *Stanza {
	s := &Stanza{Name: name}
	if len(xmlns) > 0 && xmlns[0] != "" {
		s.SetAttribute("xmlns", xmlns[0])
	}
	return s
}

// IsText reports whether this node is a bare text node.
func (s *Stanza) IsText() bool {
	return s.Name == ""
}

func (s *Stanza) HasAttribute(name string) bool {
	for _, a := range s.Attributes {
		if a.Name == name {
			return true
		}
	}
	return false
}

func (s *Stanza) GetAttribute(name string) string {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

func (s *Stanza) SetAttribute(name, value string) *Stanza {
	for i, a := range s.Attributes {
		if a.Name == name {
			s.Attributes[i].Value = value
			return s
		}
	}
	s.Attributes = append(s.Attributes, Attribute{Name: name, Value: value})
	return s
}

// NewChild appends a named child, optionally with an xmlns attribute, and
// returns it.
func (s *Stanza) NewChild(name string, xmlns ...string) *Stanza {
	child := NewStanza(name, xmlns...)
	s.Children = append(s.Children, child)
	return child
}

// SetText replaces the node's children with a single text node.
func (s *Stanza) SetText(text string) *Stanza {
	s.Children = []*Stanza{{Text: text}}
	return s
}

// ChildByName returns the first named child matching name, and, when given,
// whose xmlns attribute matches ns.
func (s *Stanza) ChildByName(name string, ns ...string) *Stanza {
	for _, c := range s.Children {
		if c.Name != name {
			continue
		}
		if len(ns) > 0 && ns[0] != "" && c.GetAttribute("xmlns") != ns[0] {
			continue
		}
		return c
	}
	return nil
}

// TextChild returns the first text-bearing descendant, depth first.
func (s *Stanza) TextChild() *Stanza {
	for _, c := range s.Children {
		if c.IsText() {
			return c
		}
		if t := c.TextChild(); t != nil {
			return t
		}
	}
	return nil
}

// ChildText returns the text carried by the first text descendant of the
// named child, or "".
func (s *Stanza) ChildText(name string) string {
	c := s.ChildByName(name)
	if c == nil {
		return ""
	}
	if t := c.TextChild(); t != nil {
		return t.Text
	}
	return ""
}

// String serializes the stanza to wire text, escaping attribute values and
// character data.
func (s *Stanza) String() string {
	var sb strings.Builder
	s.write(&sb)
	return sb.String()
}

func (s *Stanza) write(sb *strings.Builder) {
	if s.IsText() {
		sb.WriteString(escapeText(s.Text))
		return
	}
	sb.WriteString("<")
	sb.WriteString(s.Name)
	for _, a := range s.Attributes {
		sb.WriteString(" ")
		sb.WriteString(a.Name)
		sb.WriteString("='")
		sb.WriteString(escapeAttr(a.Value))
		sb.WriteString("'")
	}
	if len(s.Children) == 0 {
		sb.WriteString("/>")
		return
	}
	sb.WriteString(">")
	for _, c := range s.Children {
		c.write(sb)
	}
	sb.WriteString("</")
	sb.WriteString(s.Name)
	sb.WriteString(">")
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

func escapeAttr(s string) string { return attrEscaper.Replace(s) }
func escapeText(s string) string { return textEscaper.Replace(s) }

// fromXMLName flattens an xml.Name back to its prefixed wire form where the
// decoder expanded a known XMPP prefix.
func fromXMLName(n xml.Name) string {
	switch n.Space {
	case "http://etherx.jabber.org/streams":
		return "stream:" + n.Local
	case "":
		return n.Local
	default:
		return n.Local
	}
}
