// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package htmlutil

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element returns a new element node with the given attributes (as key/value pairs) and children.
func Element(tag string, attrs []html.Attribute, children ...*html.Node) *html.Node {
	node := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Lookup([]byte(tag)),
		Data:     tag,
		Attr:     attrs,
	}
	for _, child := range children {
		node.AppendChild(child)
	}
	return node
}

func Attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func Text(str string) *html.Node {
	return &html.Node{
		Type: html.TextNode,
		Data: str,
	}
}

// Document wraps an <html> element in a document node with an HTML5 doctype.
func Document(root *html.Node) *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{
		Type: html.DoctypeNode,
		Data: "html",
	})
	doc.AppendChild(root)
	return doc
}

// Render writes the document followed by a trailing newline.
func Render(w io.Writer, doc *html.Node) error {
	if err := html.Render(w, doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// TextContent returns the concatenation of all text nodes under node.
func TextContent(node *html.Node) string {
	var ret strings.Builder
	_ = Walk(node, func(child *html.Node) error {
		if child.Type == html.TextNode {
			ret.WriteString(child.Data)
		}
		return nil
	})
	return ret.String()
}
