// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package upload coordinates an upload from raw bytes to a committed index record.
//
// An upload goes Received, Extracted, Validated, Stored, Indexed, Committed, and may go to Failed
// from any step before Committed.  Only one upload of a given (name, version, filename) runs
// between validation and commit at a time.  Blobs that a failed upload may have left behind are
// reclaimed by Sweep.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/metadata"
	"github.com/datawire/pkgrepo/pkg/python"
	"github.com/datawire/pkgrepo/pkg/repoerr"
	"github.com/datawire/pkgrepo/pkg/repoindex"
)

// Request is an already-authenticated upload.
type Request struct {
	Filename string
	Content  []byte
	Declared metadata.Declared
}

type Result struct {
	TxID   string
	Record *repoindex.ArtifactRecord
	// Created is false if an identical artifact was already in the index.
	Created bool
}

type Config struct {
	// Backoff controls retries of storage calls that fail with
	// repoerr.ErrStorageUnavailable.  The zero value means blobstore.DefaultBackoff.
	Backoff wait.Backoff
	// Now stamps upload times.  The default is time.Now.
	Now func() time.Time
	// Observer, if set, is told about every state transition.
	Observer Observer
	// OnIntegrityViolation, if set, is called when the store reports content that does not
	// match its digest.  The error is also logged at error level.
	OnIntegrityViolation func(ctx context.Context, digest blobstore.Digest, err error)
}

type Coordinator struct {
	index *repoindex.Index
	store blobstore.Store
	cfg   Config

	locks keyLocks
	pins  pinSet

	pendingMu sync.Mutex
	pending   sets.String
}

func New(index *repoindex.Index, store blobstore.Store, cfg Config) *Coordinator {
	if cfg.Backoff.Steps == 0 {
		cfg.Backoff = blobstore.DefaultBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		index:   index,
		store:   store,
		cfg:     cfg,
		pending: sets.NewString(),
	}
}

func (c *Coordinator) Index() *repoindex.Index { return c.index }
func (c *Coordinator) Store() blobstore.Store  { return c.store }

type transaction struct {
	*Coordinator
	id       string
	filename string
	state    State
}

func (tx *transaction) transition(ctx context.Context, to State, err error) {
	from := tx.state
	tx.state = to
	if to == Failed {
		if errors.Is(err, repoerr.ErrIntegrityViolation) {
			dlog.Errorf(ctx, "upload: %v -> %v: %v", from, to, err)
		} else {
			dlog.Infof(ctx, "upload: %v -> %v: %v", from, to, err)
		}
	} else {
		dlog.Debugf(ctx, "upload: %v -> %v", from, to)
	}
	if tx.cfg.Observer != nil {
		tx.cfg.Observer(ctx, Transition{
			TxID:     tx.id,
			Filename: tx.filename,
			From:     from,
			To:       to,
			Err:      err,
		})
	}
}

func (tx *transaction) fail(ctx context.Context, err error) (*Result, error) {
	tx.transition(ctx, Failed, err)
	return nil, fmt.Errorf("upload %q (tx %s): %w", tx.filename, tx.id, err)
}

func (c *Coordinator) integrityViolation(ctx context.Context, digest blobstore.Digest, err error) {
	dlog.Errorf(ctx, "INTEGRITY VIOLATION: blob %s: %v", digest, err)
	if c.cfg.OnIntegrityViolation != nil {
		c.cfg.OnIntegrityViolation(ctx, digest, err)
	}
}

// Upload runs an upload through to Committed or Failed.
//
// Re-uploading an artifact that is already in the index with the same digest succeeds with
// Result.Created false; with a different digest it fails with repoerr.ErrVersionConflict.
func (c *Coordinator) Upload(ctx context.Context, req Request) (*Result, error) {
	tx := &transaction{
		Coordinator: c,
		id:          uuid.New().String(),
		filename:    req.Filename,
		state:       Received,
	}
	ctx = dlog.WithField(ctx, "upload.tx", tx.id)
	ctx = dlog.WithField(ctx, "upload.filename", req.Filename)
	eco := c.index.Ecosystem()
	dlog.Debugf(ctx, "upload: received %d bytes", len(req.Content))

	// Extract
	md, err := metadata.Extract(ctx, eco, req.Filename, req.Content)
	if err != nil {
		return tx.fail(ctx, err)
	}
	tx.transition(ctx, Extracted, nil)

	// Validate
	if err := metadata.Validate(md, req.Filename); err != nil {
		return tx.fail(ctx, err)
	}
	if err := req.Declared.Check(md); err != nil {
		return tx.fail(ctx, err)
	}
	key := repoindex.Key{
		Name:     eco.NormalizeName(md.Name),
		Version:  eco.NormalizeVersion(md.Version),
		Filename: req.Filename,
	}
	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return tx.fail(ctx, err)
	}
	defer unlock()
	digest := blobstore.Sum(req.Content)
	if existing := c.index.Snapshot().Get(key); existing != nil {
		if existing.Digest != digest {
			return tx.fail(ctx, repoerr.Wrap(repoerr.ErrVersionConflict,
				fmt.Errorf("%s already exists with digest %s", key, existing.Digest)))
		}
		dlog.Infof(ctx, "upload: %s is already present with digest %s", key, digest)
		tx.transition(ctx, Validated, nil)
		tx.transition(ctx, Committed, nil)
		return &Result{TxID: tx.id, Record: existing, Created: false}, nil
	}
	md5sum, err := python.Hexdigest("md5", req.Content)
	if err != nil {
		return tx.fail(ctx, err)
	}
	tx.transition(ctx, Validated, nil)

	// Store
	if err := c.pins.Pin(ctx, digest); err != nil {
		return tx.fail(ctx, err)
	}
	defer c.pins.Unpin(digest)
	err = blobstore.Retry(ctx, c.cfg.Backoff, func(ctx context.Context) error {
		stored, err := c.store.Put(ctx, req.Content)
		if err == nil && stored != digest {
			err = repoerr.Wrap(repoerr.ErrIntegrityViolation,
				fmt.Errorf("store returned digest %s for content with digest %s", stored, digest))
		}
		return err
	})
	if err != nil {
		if errors.Is(err, repoerr.ErrIntegrityViolation) {
			c.integrityViolation(ctx, digest, err)
		} else {
			// A put that timed out may still land.
			c.schedule(digest)
		}
		return tx.fail(ctx, err)
	}
	tx.transition(ctx, Stored, nil)

	// Index
	if err := ctx.Err(); err != nil {
		c.schedule(digest)
		return tx.fail(ctx, err)
	}
	rec := &repoindex.ArtifactRecord{
		Key:        key,
		Digest:     digest,
		Size:       int64(len(req.Content)),
		MD5:        md5sum,
		UploadTime: c.cfg.Now().UTC(),
		Metadata:   md,
	}
	created, err := c.index.Record(ctx, rec)
	if err != nil {
		c.schedule(digest)
		return tx.fail(ctx, err)
	}
	tx.transition(ctx, Indexed, nil)

	// Commit
	if stored := c.index.Snapshot().Get(key); stored != nil {
		// The index may spell the version differently.
		rec = stored
	}
	tx.transition(ctx, Committed, nil)
	dlog.Infof(ctx, "upload: committed %s as %s", key, digest)
	return &Result{TxID: tx.id, Record: rec, Created: created}, nil
}
