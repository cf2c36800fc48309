// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// UsageError is an invalid invocation of Cmd.  Err is nil if Cmd's help text has already been
// shown instead.
type UsageError struct {
	Cmd *cobra.Command
	Err error
}

func (e *UsageError) Error() string {
	if e.Err == nil {
		return "invalid usage"
	}
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error { return e.Err }

// FlagErrorFunc is for (*cobra.Command).SetFlagErrorFunc.  It marks err as a UsageError, so that
// Report can tell bad usage apart from a failure of the command itself.
func FlagErrorFunc(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return err
	}
	return &UsageError{Cmd: cmd, Err: err}
}

// OnlySubcommands is like cobra.NoArgs, but suggests a subcommand for a typo.
func OnlySubcommands(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	err := fmt.Errorf("invalid subcommand %q", args[0])
	if cmd.SuggestionsMinimumDistance <= 0 {
		cmd.SuggestionsMinimumDistance = 2
	}
	if suggestions := cmd.SuggestionsFor(args[0]); len(suggestions) > 0 {
		err = fmt.Errorf("%w\nDid you mean one of these?\n\t%s", err, strings.Join(suggestions, "\n\t"))
	}
	return FlagErrorFunc(cmd, err)
}

// WrapPositionalArgs has errors from inner reported as bad usage.
func WrapPositionalArgs(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return FlagErrorFunc(cmd, inner(cmd, args))
	}
}

// RunSubcommands is the RunE of a command that only groups subcommands.  Running it by itself
// shows its help on stderr and fails, so that a mistyped invocation isn't a success.
func RunSubcommands(cmd *cobra.Command, args []string) error {
	cmd.SetOut(cmd.ErrOrStderr())
	cmd.HelpFunc()(cmd, args)
	return &UsageError{Cmd: cmd}
}

// Report writes err, returned by root's Execute, to w and returns the process exit code: 0 for
// no error, 2 for a UsageError, and 1 for anything else.
func Report(w io.Writer, root *cobra.Command, err error) int {
	if err == nil {
		return 0
	}
	var usageErr *UsageError
	if !errors.As(err, &usageErr) {
		fmt.Fprintf(w, "%s: error: %v\n", root.CommandPath(), err)
		return 1
	}
	if usageErr.Err == nil {
		return 2
	}
	cmd := usageErr.Cmd
	if cmd == nil {
		cmd = root
	}
	// A multi-line message gets a blank line before the pointer to --help.
	msg := strings.TrimRight(usageErr.Err.Error(), "\n")
	if strings.Contains(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprintf(w, "%s: %s\nSee '%s --help' for more information.\n",
		cmd.CommandPath(), msg, cmd.CommandPath())
	return 2
}
