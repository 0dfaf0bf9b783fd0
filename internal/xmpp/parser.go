package xmpp

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

const streamsNamespace = "http://etherx.jabber.org/streams"

// errStreamClosed is returned by the stream reader when the peer closes its
// side with </stream:stream>.
var errStreamClosed = errors.New("xmpp: stream closed by peer")

// streamReader turns a byte stream into stanza trees. It understands the
// XMPP framing rules: the <stream:stream> open element is delivered on its
// own (its subtree is the rest of the connection), every other top-level
// element is delivered as a complete tree, and inter-stanza whitespace is
// discarded (clients and this server both use it as keepalive).
type streamReader struct {
	dec *xml.Decoder
}

func newStreamReader(r io.Reader) *streamReader {
	return &streamReader{dec: xml.NewDecoder(r)}
}

// Next returns the next top-level element. streamOpen is true when the
// element is the stream header, in which case only its attributes are
// populated.
func (sr *streamReader) Next() (st *Stanza, streamOpen bool, err error) {
	for {
		tok, err := sr.dec.Token()
		if err != nil {
			return nil, false, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == streamsNamespace && t.Name.Local == "stream" {
				return startToStanza(t), true, nil
			}
			st, err := sr.readSubtree(t)
			return st, false, err
		case xml.EndElement:
			// Only the stream close can appear as a bare end element here.
			return nil, false, errStreamClosed
		case xml.CharData:
			// keepalive whitespace
			if strings.TrimSpace(string(t)) != "" {
				return nil, false, errors.New("xmpp: unexpected character data")
			}
		case xml.ProcInst, xml.Comment, xml.Directive:
			// ignore
		}
	}
}

// readSubtree builds the tree rooted at start, consuming tokens through the
// matching end element.
func (sr *streamReader) readSubtree(start xml.StartElement) (*Stanza, error) {
	root := startToStanza(start)
	stack := []*Stanza{root}

	for len(stack) > 0 {
		tok, err := sr.dec.Token()
		if err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]

		switch t := tok.(type) {
		case xml.StartElement:
			child := startToStanza(t)
			top.Children = append(top.Children, child)
			stack = append(stack, child)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			text := string(t)
			if strings.TrimSpace(text) == "" {
				// indentation between sibling elements
				continue
			}
			top.Children = append(top.Children, &Stanza{Text: text})
		}
	}
	return root, nil
}

func startToStanza(start xml.StartElement) *Stanza {
	s := &Stanza{Name: fromXMLName(start.Name)}
	for _, a := range start.Attr {
		switch {
		case a.Name.Space == "xmlns":
			s.SetAttribute("xmlns:"+a.Name.Local, a.Value)
		case a.Name.Space == "" || a.Name.Local == "xmlns":
			s.SetAttribute(a.Name.Local, a.Value)
		default:
			// Attribute in a resolved namespace; the only one the protocol
			// uses is xml:lang, which the decoder reports with the XML
			// namespace URI as its space.
			if a.Name.Space == "http://www.w3.org/XML/1998/namespace" || a.Name.Space == "xml" {
				s.SetAttribute("xml:"+a.Name.Local, a.Value)
			} else {
				s.SetAttribute(a.Name.Local, a.Value)
			}
		}
	}
	return s
}
