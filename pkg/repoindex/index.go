// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package repoindex is the repository index: the set of artifact records, organized by package
// and version.
//
// Writers build a new Snapshot from the current one and publish it with a compare-and-swap, so
// readers never block and never see a partial update.
package repoindex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pkgrepo/pkg/metadata"
	"github.com/datawire/pkgrepo/pkg/repoerr"
)

// A PublishFunc is called after each snapshot is published.  Calls may run concurrently and
// out of order; use Snapshot.Generation to tell which snapshot is newest.
type PublishFunc func(ctx context.Context, snap *Snapshot)

type Index struct {
	current atomic.Pointer[Snapshot]

	hooksMu sync.RWMutex
	hooks   []PublishFunc
}

// New returns an empty index.
func New(eco metadata.Ecosystem) *Index {
	return newFromSnapshot(emptySnapshot(eco))
}

func newFromSnapshot(snap *Snapshot) *Index {
	idx := &Index{}
	idx.current.Store(snap)
	return idx
}

func (idx *Index) Ecosystem() metadata.Ecosystem {
	return idx.Snapshot().Ecosystem()
}

// Snapshot returns the current snapshot.  It never blocks.
func (idx *Index) Snapshot() *Snapshot {
	return idx.current.Load()
}

// Lookup is shorthand for idx.Snapshot().Lookup(name).
func (idx *Index) Lookup(name string) []PackageVersion {
	return idx.Snapshot().Lookup(name)
}

// OnPublish registers fn to be called after every publish.
func (idx *Index) OnPublish(fn PublishFunc) {
	idx.hooksMu.Lock()
	defer idx.hooksMu.Unlock()
	idx.hooks = append(idx.hooks, fn)
}

func (idx *Index) publish(ctx context.Context, update func(*Snapshot) (*Snapshot, error)) (*Snapshot, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		old := idx.current.Load()
		next, err := update(old)
		if err != nil || next == nil {
			return nil, err
		}
		if idx.current.CompareAndSwap(old, next) {
			dlog.Debugf(ctx, "repoindex: published generation %d (%d records)", next.Generation(), next.Len())
			idx.hooksMu.RLock()
			hooks := idx.hooks
			idx.hooksMu.RUnlock()
			for _, hook := range hooks {
				hook(ctx, next)
			}
			return next, nil
		}
		dlog.Debugf(ctx, "repoindex: lost publish race at generation %d, retrying", old.Generation())
	}
}

// Record adds rec to the index.  A version equal to one the package already has is filed under
// the existing spelling.  If a record with the same key and digest already exists, nothing
// is changed and created is false.  If a record with the same key has a different digest, the
// error is repoerr.ErrVersionConflict.
func (idx *Index) Record(ctx context.Context, rec *ArtifactRecord) (created bool, err error) {
	eco := idx.Ecosystem()
	norm := *rec
	norm.Key.Name = eco.NormalizeName(rec.Key.Name)
	norm.Key.Version = eco.NormalizeVersion(rec.Key.Version)

	_, err = idx.publish(ctx, func(old *Snapshot) (*Snapshot, error) {
		next := norm
		next.Key = old.canonicalKey(norm.Key)
		if existing := old.records[next.Key]; existing != nil {
			if existing.Digest == next.Digest {
				created = false
				return nil, nil
			}
			return nil, repoerr.Wrap(repoerr.ErrVersionConflict,
				fmt.Errorf("%s is already recorded with digest %s, not %s", next.Key, existing.Digest, next.Digest))
		}
		created = true
		return old.withRecord(&next), nil
	})
	if err != nil {
		return false, fmt.Errorf("repoindex.Record: %w", err)
	}
	return created, nil
}

// Remove deletes the record for key, and returns it.  The error is repoerr.ErrNotFound if there
// is no such record.
func (idx *Index) Remove(ctx context.Context, key Key) (*ArtifactRecord, error) {
	eco := idx.Ecosystem()
	key.Name = eco.NormalizeName(key.Name)
	key.Version = eco.NormalizeVersion(key.Version)

	var removed *ArtifactRecord
	_, err := idx.publish(ctx, func(old *Snapshot) (*Snapshot, error) {
		removed = old.Get(key)
		if removed == nil {
			return nil, fmt.Errorf("%s: %w", key, repoerr.ErrNotFound)
		}
		return old.withoutRecord(removed), nil
	})
	if err != nil {
		return nil, fmt.Errorf("repoindex.Remove: %w", err)
	}
	return removed, nil
}
