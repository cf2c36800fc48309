// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"fmt"
)

// State is a step of an upload.  An upload moves forward through the states in order, or to
// Failed from any state before Committed.
type State int

const (
	Received State = iota
	Extracted
	Validated
	Stored
	Indexed
	Committed
	Failed
)

//nolint:gochecknoglobals // Would be 'const'.
var stateNames = map[State]string{
	Received:  "Received",
	Extracted: "Extracted",
	Validated: "Validated",
	Stored:    "Stored",
	Indexed:   "Indexed",
	Committed: "Committed",
	Failed:    "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Transition describes one state change of an upload.  Err is set when To is Failed.
type Transition struct {
	TxID     string
	Filename string
	From     State
	To       State
	Err      error
}

// An Observer is told about every state transition of every upload.  It is called synchronously
// from the upload, so it should not block.
type Observer func(ctx context.Context, tr Transition)
