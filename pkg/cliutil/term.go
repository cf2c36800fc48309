// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"io"
	"os"
	"strconv"

	"golang.org/x/term"
)

// TerminalWidth returns the width that text written to w should be wrapped to, or 0 if it should
// not be wrapped.  $COLUMNS wins if it is set; otherwise only a terminal gets wrapped.
func TerminalWidth(w io.Writer) int {
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil {
		return cols
	}
	file, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return 0
	}
	fd := int(file.Fd())
	if cols, _, err := term.GetSize(fd); err == nil {
		return cols
	}
	if term.IsTerminal(fd) {
		// A terminal that won't report its size.
		return 80
	}
	return 0
}
