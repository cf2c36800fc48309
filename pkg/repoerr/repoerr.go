// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package repoerr defines the kinds of failure that the repository core reports to its callers.
//
// Every error returned by the core wraps exactly one of the sentinel values below; use errors.Is
// (or Kind) to classify an error, and Retryable to decide whether an operation may be attempted
// again.
package repoerr

import (
	"errors"
)

var (
	// ErrMalformedArchive means that an uploaded file could not be read: unsupported format,
	// corrupt compression, bad checksums, or a filename that does not agree with the contents.
	ErrMalformedArchive = errors.New("malformed archive")

	// ErrMissingMetadata means that the archive was readable but it had no package descriptor,
	// or the descriptor lacks a required field.
	ErrMissingMetadata = errors.New("missing metadata")

	// ErrVersionConflict means that (name, version, filename) is already bound to different
	// content.
	ErrVersionConflict = errors.New("version conflict")

	// ErrStorageUnavailable means that the blob store failed or timed out.  It is retryable.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound means that a blob or an index record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedAcceptType means that a reader asked for a representation the responder
	// cannot produce.
	ErrUnsupportedAcceptType = errors.New("unsupported accept type")

	// ErrIntegrityViolation means that stored content does not match its digest.  It is fatal
	// to the enclosing transaction and must be surfaced to an operator.
	ErrIntegrityViolation = errors.New("integrity violation")
)

//nolint:gochecknoglobals // Would be 'const'.
var kinds = []error{
	ErrMalformedArchive,
	ErrMissingMetadata,
	ErrVersionConflict,
	ErrStorageUnavailable,
	ErrNotFound,
	ErrUnsupportedAcceptType,
	ErrIntegrityViolation,
}

// Kind returns the sentinel error that err wraps, or nil if err is not one of ours.
func Kind(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Retryable returns whether the operation that returned err may succeed if attempted again.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) && !errors.Is(err, ErrIntegrityViolation)
}

// Wrap returns an error that wraps both kind and err, so that errors.Is matches either of them.
// The message is "kind: err".
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: kind, err: err}
}

type wrapped struct {
	kind error
	err  error
}

func (e *wrapped) Error() string { return e.kind.Error() + ": " + e.err.Error() }
func (e *wrapped) Unwrap() error { return e.err }

func (e *wrapped) Is(target error) bool {
	return target == e.kind //nolint:errorlint,goerr113 // sentinel comparison
}
