package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// node is a namespace-resolved element tree used for decoding responses.
// Response shapes vary by server version and prefix choice, so decoding works
// on local names rather than on fixed struct tags.
type node struct {
	name     string
	space    string
	attrs    map[string]string
	text     string
	children []*node
}

func parseTree(data []byte) (*node, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	var stack []*node
	var root *node
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local, space: t.Name.Space}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				if n.attrs == nil {
					n.attrs = make(map[string]string, len(t.Attr))
				}
				n.attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("empty document")
	}
	return root, nil
}

// child returns the first child with the given local name.
func (n *node) child(name string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// all returns every child with the given local name.
func (n *node) all(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// path walks nested children by local name.
func (n *node) path(names ...string) *node {
	cur := n
	for _, name := range names {
		cur = cur.child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// elems returns the element children, or nil for a nil node.
func (n *node) elems() []*node {
	if n == nil {
		return nil
	}
	return n.children
}

func (n *node) attr(name string) string {
	if n == nil {
		return ""
	}
	return n.attrs[name]
}

// value returns the trimmed text content, or "" for a nil node.
func (n *node) value() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.text)
}

// xsiType returns the local part of the i:type attribute.
func (n *node) xsiType() string {
	t := n.attr("type")
	if i := strings.IndexByte(t, ':'); i >= 0 {
		return t[i+1:]
	}
	return t
}

func (n *node) isNil() bool {
	return n.attr("nil") == "true"
}

// rawChildren returns the verbatim bytes of every child element of the
// element reached by path (matched on local names from the document root).
// The returned slices are copies.
func rawChildren(data []byte, path ...string) ([][]byte, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	var (
		stack []string
		out   [][]byte
		start int64 = -1
	)
	for {
		off := d.InputOffset()
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan elements: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if start < 0 && matchPath(stack, path) {
				start = off
			}
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("scan elements: unbalanced end element")
			}
			stack = stack[:len(stack)-1]
			if start >= 0 && matchPath(stack, path) {
				end := d.InputOffset()
				out = append(out, bytes.Clone(data[start:end]))
				start = -1
			}
		}
	}
	return out, nil
}

func matchPath(stack, path []string) bool {
	if len(stack) != len(path) {
		return false
	}
	for i := range stack {
		if stack[i] != path[i] {
			return false
		}
	}
	return true
}

// escapeText returns s escaped for use as XML character data or attribute value.
func escapeText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
