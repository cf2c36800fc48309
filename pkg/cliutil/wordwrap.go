// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"strings"
	"unicode"
)

// slop is how far short of the full width most lines are broken, so that a paragraph doesn't end
// with a lone short word.
const slop = 5

// Wrap word-wraps s to width columns.  A width of 0 means no wrapping.
func Wrap(width int, s string) string {
	return WrapIndent(0, width, s)
}

// WrapIndent word-wraps s for a column that starts at indent; continuation lines are prefixed
// with indent spaces, and the first line is assumed to already be at that column.  A width of 0
// means no wrapping.
//
// The last column is left empty.  Lines are broken before width-slop, unless the rest of the line
// fits.  Existing newlines are kept, and so is the spacing between words that stay on the same
// line.
func WrapIndent(indent, width int, s string) string {
	if width <= 0 {
		return s
	}
	avail := width - indent - 1
	target := avail - slop
	if target < 1 {
		target = 1
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = wrapLine(line, target, avail, strings.Repeat(" ", indent))
	}
	return strings.Join(lines, "\n")
}

type word struct {
	space string
	text  string
}

// splitWords splits a line into words, each with the whitespace that precedes it.
func splitWords(line string) []word {
	var words []word
	for len(line) > 0 {
		textStart := strings.IndexFunc(line, func(r rune) bool { return !unicode.IsSpace(r) })
		if textStart < 0 {
			words = append(words, word{space: line})
			break
		}
		textEnd := strings.IndexFunc(line[textStart:], unicode.IsSpace)
		if textEnd < 0 {
			textEnd = len(line)
		} else {
			textEnd += textStart
		}
		words = append(words, word{space: line[:textStart], text: line[textStart:textEnd]})
		line = line[textEnd:]
	}
	return words
}

func wrapLine(line string, target, avail int, prefix string) string {
	words := splitWords(line)
	var out strings.Builder
	col := 0
	for i, w := range words {
		if col > 0 && w.text != "" && col+len(w.space)+len(w.text) > target && col+restLen(words[i:]) > avail {
			out.WriteString("\n")
			out.WriteString(prefix)
			out.WriteString(w.text)
			col = len(w.text)
			continue
		}
		out.WriteString(w.space)
		out.WriteString(w.text)
		col += len(w.space) + len(w.text)
	}
	return out.String()
}

func restLen(words []word) int {
	n := 0
	for _, w := range words {
		n += len(w.space) + len(w.text)
	}
	return n
}
