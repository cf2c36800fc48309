// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/datawire/pkgrepo/pkg/repoerr"
)

// MemStore is an in-memory Store.  The zero value is ready to use.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[Digest][]byte
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Put(ctx context.Context, content []byte) (Digest, error) {
	if err := ctxErr(ctx); err != nil {
		return Digest{}, fmt.Errorf("blobstore.MemStore.Put: %w", err)
	}
	digest := Sum(content)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blobs == nil {
		s.blobs = make(map[Digest][]byte)
	}
	if existing, ok := s.blobs[digest]; ok {
		if err := verify(digest, existing); err != nil {
			return Digest{}, fmt.Errorf("blobstore.MemStore.Put: %w", err)
		}
		return digest, nil
	}
	s.blobs[digest] = append([]byte(nil), content...)
	return digest, nil
}

func (s *MemStore) Get(ctx context.Context, digest Digest) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, fmt.Errorf("blobstore.MemStore.Get: %w", err)
	}
	s.mu.RLock()
	content, ok := s.blobs[digest]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("blobstore.MemStore.Get: %s: %w", digest, repoerr.ErrNotFound)
	}
	if err := verify(digest, content); err != nil {
		return nil, fmt.Errorf("blobstore.MemStore.Get: %w", err)
	}
	return append([]byte(nil), content...), nil
}

func (s *MemStore) Delete(ctx context.Context, digest Digest) error {
	if err := ctxErr(ctx); err != nil {
		return fmt.Errorf("blobstore.MemStore.Delete: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[digest]; !ok {
		return fmt.Errorf("blobstore.MemStore.Delete: %s: %w", digest, repoerr.ErrNotFound)
	}
	delete(s.blobs, digest)
	return nil
}

func (s *MemStore) Has(ctx context.Context, digest Digest) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, fmt.Errorf("blobstore.MemStore.Has: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[digest]
	return ok, nil
}

func (s *MemStore) List(ctx context.Context) ([]Digest, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, fmt.Errorf("blobstore.MemStore.List: %w", err)
	}
	s.mu.RLock()
	ret := make([]Digest, 0, len(s.blobs))
	for digest := range s.blobs {
		ret = append(ret, digest)
	}
	s.mu.RUnlock()
	sortDigests(ret)
	return ret, nil
}

func sortDigests(digests []Digest) {
	sort.Slice(digests, func(i, j int) bool {
		return digests[i].String() < digests[j].String()
	})
}
