// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package htmlutil builds, renders, and searches golang.org/x/net/html trees.
package htmlutil

import (
	"errors"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrSkipChildren may be returned by a Walk callback to not descend into the node.
var ErrSkipChildren = errors.New("skip children")

// Walk calls fn for node and then for each of its descendants, in document order.  An error
// from fn other than ErrSkipChildren stops the walk and is returned.
func Walk(node *html.Node, fn func(*html.Node) error) error {
	if err := fn(node); err != nil {
		if errors.Is(err, ErrSkipChildren) {
			return nil
		}
		return err
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if err := Walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// FindAll returns node and its descendants that are tag elements, in document order.
func FindAll(node *html.Node, tag atom.Atom) []*html.Node {
	var ret []*html.Node
	_ = Walk(node, func(n *html.Node) error {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			ret = append(ret, n)
		}
		return nil
	})
	return ret
}

// GetAttr returns the value of node's namespace:key attribute.
func GetAttr(node *html.Node, namespace, key string) (string, bool) {
	if node == nil {
		return "", false
	}
	for _, attr := range node.Attr {
		if attr.Namespace == namespace && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
