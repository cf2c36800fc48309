// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/repoerr"
	"github.com/datawire/pkgrepo/pkg/repoindex"
)

func (c *Coordinator) schedule(digest blobstore.Digest) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pending.Insert(digest.String())
}

// Pending returns the digests scheduled for a reference-count check, sorted.
func (c *Coordinator) Pending() []string {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.pending.List()
}

// reclaim deletes the blob if no record references it and no upload has it pinned.  It returns
// (false, nil) if the blob is still in use, or another reclaim of it is already running.
//
// Only the digest is reserved while the store deletes it; uploads of other content go ahead.
func (c *Coordinator) reclaim(ctx context.Context, digest blobstore.Digest) (bool, error) {
	var refs int
	release, ok := c.pins.Reserve(digest, func() bool {
		// Checked under the pin set's lock, so a Record can't slip in between: a
		// new record for this digest must have been pinned first.
		refs = c.index.Snapshot().References(digest)
		return refs == 0
	})
	if !ok {
		dlog.Debugf(ctx, "reclaim: %s is in use (%d references, or pinned by an in-flight upload)",
			digest, refs)
		return false, nil
	}
	defer release()

	err := blobstore.Retry(ctx, c.cfg.Backoff, func(ctx context.Context) error {
		return c.store.Delete(ctx, digest)
	})
	switch {
	case err == nil:
		dlog.Infof(ctx, "reclaim: deleted %s", digest)
		return true, nil
	case errors.Is(err, repoerr.ErrNotFound):
		dlog.Debugf(ctx, "reclaim: %s is already gone", digest)
		return false, nil
	default:
		return false, err
	}
}

// Sweep reclaims the blobs scheduled by failed uploads that are neither referenced nor pinned.
// Pinned blobs stay scheduled for the next sweep.  It returns the digests that were deleted.
func (c *Coordinator) Sweep(ctx context.Context) ([]blobstore.Digest, error) {
	c.pendingMu.Lock()
	candidates := c.pending.List()
	c.pending.Delete(candidates...)
	c.pendingMu.Unlock()

	var reclaimed []blobstore.Digest
	var errs derror.MultiError
	for _, str := range candidates {
		digest, err := blobstore.ParseDigest(str)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ok, err := c.reclaim(ctx, digest)
		switch {
		case err != nil:
			c.schedule(digest)
			errs = append(errs, fmt.Errorf("%s: %w", digest, err))
		case ok:
			reclaimed = append(reclaimed, digest)
		default:
			if c.pins.Pinned(digest) {
				c.schedule(digest)
			}
		}
	}
	if len(errs) > 0 {
		return reclaimed, fmt.Errorf("upload.Sweep: %w", errs)
	}
	return reclaimed, nil
}

// SweepAll reclaims every blob in the store that is neither referenced nor pinned.
func (c *Coordinator) SweepAll(ctx context.Context) ([]blobstore.Digest, error) {
	var digests []blobstore.Digest
	err := blobstore.Retry(ctx, c.cfg.Backoff, func(ctx context.Context) error {
		var err error
		digests, err = c.store.List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upload.SweepAll: %w", err)
	}
	var reclaimed []blobstore.Digest
	var errs derror.MultiError
	for _, digest := range digests {
		ok, err := c.reclaim(ctx, digest)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", digest, err))
		case ok:
			reclaimed = append(reclaimed, digest)
		}
	}
	if len(errs) > 0 {
		return reclaimed, fmt.Errorf("upload.SweepAll: %w", errs)
	}
	return reclaimed, nil
}

// Delete removes an artifact from the index, and deletes its blob if nothing else references it.
// The error is repoerr.ErrNotFound if the artifact isn't in the index.
func (c *Coordinator) Delete(ctx context.Context, key repoindex.Key) (*repoindex.ArtifactRecord, error) {
	eco := c.index.Ecosystem()
	key.Name = eco.NormalizeName(key.Name)
	key.Version = eco.NormalizeVersion(key.Version)
	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("upload.Delete: %w", err)
	}
	defer unlock()

	rec, err := c.index.Remove(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("upload.Delete: %w", err)
	}
	dlog.Infof(ctx, "delete: removed %s (%s)", key, rec.Digest)
	ok, err := c.reclaim(ctx, rec.Digest)
	if err != nil {
		c.schedule(rec.Digest)
		return rec, fmt.Errorf("upload.Delete: removed %s, but reclaiming the blob failed: %w", key, err)
	}
	if !ok && c.index.Snapshot().References(rec.Digest) == 0 {
		// Pinned by an in-flight upload; check again after it finishes.
		c.schedule(rec.Digest)
	}
	return rec, nil
}
