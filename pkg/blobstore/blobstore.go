// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package blobstore is a content-addressable store for artifact bytes, keyed by sha256 digest.
//
// A Store only owns bytes; it knows nothing about which package a blob belongs to.  All errors
// returned by a Store are classified with pkg/repoerr: I/O failures and deadline expiry are
// repoerr.ErrStorageUnavailable, absent blobs are repoerr.ErrNotFound, and content that does not
// hash to its key is repoerr.ErrIntegrityViolation.
package blobstore

import (
	"bytes"
	"context"
	"fmt"

	ociv1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/datawire/pkgrepo/pkg/repoerr"
)

// Digest is the content address of a blob.
type Digest = ociv1.Hash

// Sum returns the sha256 digest of content.
func Sum(content []byte) Digest {
	// sha256 over a bytes.Reader can't fail.
	digest, _, _ := ociv1.SHA256(bytes.NewReader(content))
	return digest
}

// ParseDigest parses a "sha256:<hex>" string.
func ParseDigest(str string) (Digest, error) {
	digest, err := ociv1.NewHash(str)
	if err != nil {
		return Digest{}, fmt.Errorf("blobstore.ParseDigest: %w", err)
	}
	if digest.Algorithm != "sha256" {
		return Digest{}, fmt.Errorf("blobstore.ParseDigest: unsupported algorithm: %q", digest.Algorithm)
	}
	return digest, nil
}

type Store interface {
	// Put stores content and returns its digest.  Putting content that is already present is
	// a no-op.
	Put(ctx context.Context, content []byte) (Digest, error)
	// Get returns the content for digest, after verifying that it hashes to digest.
	Get(ctx context.Context, digest Digest) ([]byte, error)
	// Delete removes the blob for digest.
	Delete(ctx context.Context, digest Digest) error
	Has(ctx context.Context, digest Digest) (bool, error)
	// List returns every digest in the store, sorted.
	List(ctx context.Context) ([]Digest, error)
}

func verify(digest Digest, content []byte) error {
	if actual := Sum(content); actual != digest {
		return repoerr.Wrap(repoerr.ErrIntegrityViolation,
			fmt.Errorf("blob %s has content with digest %s", digest, actual))
	}
	return nil
}

// ctxErr returns a StorageUnavailable error if the context is done.
func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return repoerr.Wrap(repoerr.ErrStorageUnavailable, err)
	}
	return nil
}
