// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"sync"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/repoindex"
)

// keyLocks is a set of mutexes, one per key, that can be abandoned when the context is done.
type keyLocks struct {
	mu    sync.Mutex
	locks map[repoindex.Key]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func (l *keyLocks) acquire(key repoindex.Key) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[repoindex.Key]*keyLock)
	}
	kl := l.locks[key]
	if kl == nil {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *keyLocks) release(key repoindex.Key, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Lock blocks until it holds the lock for key or ctx is done.
func (l *keyLocks) Lock(ctx context.Context, key repoindex.Key) (unlock func(), err error) {
	kl := l.acquire(key)
	select {
	case kl.ch <- struct{}{}:
		return func() {
			<-kl.ch
			l.release(key, kl)
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}
}

// pinSet counts in-flight uploads per digest, and tracks the digests that are being reclaimed.
// A digest is never pinned and reclaiming at the same time: Pin waits for a reclaim of the same
// digest to finish, and Reserve refuses a pinned digest.  Other digests are not held up.
type pinSet struct {
	mu         sync.Mutex
	pins       map[blobstore.Digest]int
	reclaiming map[blobstore.Digest]chan struct{}
}

// Pin blocks until digest is not being reclaimed or ctx is done.
func (p *pinSet) Pin(ctx context.Context, digest blobstore.Digest) error {
	for {
		p.mu.Lock()
		done, busy := p.reclaiming[digest]
		if !busy {
			if p.pins == nil {
				p.pins = make(map[blobstore.Digest]int)
			}
			p.pins[digest]++
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *pinSet) Unpin(digest blobstore.Digest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pins[digest] <= 1 {
		delete(p.pins, digest)
	} else {
		p.pins[digest]--
	}
}

func (p *pinSet) Pinned(digest blobstore.Digest) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pins[digest] > 0
}

// Reserve marks digest as being reclaimed, provided that it is not pinned, not already being
// reclaimed, and check passes.  check runs with the set locked.  The returned func ends the
// reservation and wakes any uploads waiting in Pin.
func (p *pinSet) Reserve(digest blobstore.Digest, check func() bool) (release func(), ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pins[digest] > 0 {
		return nil, false
	}
	if _, busy := p.reclaiming[digest]; busy {
		return nil, false
	}
	if !check() {
		return nil, false
	}
	if p.reclaiming == nil {
		p.reclaiming = make(map[blobstore.Digest]chan struct{})
	}
	done := make(chan struct{})
	p.reclaiming[digest] = done
	return func() {
		p.mu.Lock()
		delete(p.reclaiming, digest)
		p.mu.Unlock()
		close(done)
	}, true
}
