// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/datawire/pkgrepo/pkg/repoerr"
)

// DefaultBackoff is used for storage retries when the configuration doesn't say otherwise.
//
//nolint:gochecknoglobals // Would be 'const'.
var DefaultBackoff = wait.Backoff{
	Duration: 50 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    5,
	Cap:      2 * time.Second,
}

// Retry calls op until it succeeds, returns an error that is not repoerr.Retryable, the context
// is done, or backoff.Steps attempts have been made.  The last error is returned.
func Retry(ctx context.Context, backoff wait.Backoff, op func(context.Context) error) error {
	attempts := backoff.Steps
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil || !repoerr.Retryable(err) || attempt >= attempts {
			return err
		}
		delay := backoff.Step()
		dlog.Warnf(ctx, "storage attempt %d/%d failed, retrying in %v: %v", attempt, attempts, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

type timeoutStore struct {
	inner   Store
	timeout time.Duration

	mu       sync.Mutex
	deleting map[Digest]chan struct{}
}

// WithTimeout wraps a Store so that every call gets a deadline of timeout after it starts (or the
// caller's deadline, if that is sooner).  A call that hits the deadline returns
// repoerr.ErrStorageUnavailable without waiting for the inner Store to notice.
//
// A Delete that was given up on may still be running in the inner Store.  Until it returns,
// later calls for the same digest wait for it (within their own deadline), so a Put can't be
// undone by a Delete that started before it.
func WithTimeout(inner Store, timeout time.Duration) Store {
	return &timeoutStore{inner: inner, timeout: timeout}
}

// settle waits until no Delete of digest is running in the inner store.  If exclusive, it then
// registers a new Delete, and the returned func must be called once that Delete returns.
func (s *timeoutStore) settle(ctx context.Context, digest Digest, exclusive bool) (func(), error) {
	for {
		s.mu.Lock()
		running, busy := s.deleting[digest]
		if !busy {
			if !exclusive {
				s.mu.Unlock()
				return func() {}, nil
			}
			done := make(chan struct{})
			if s.deleting == nil {
				s.deleting = make(map[Digest]chan struct{})
			}
			s.deleting[digest] = done
			s.mu.Unlock()
			return func() {
				s.mu.Lock()
				delete(s.deleting, digest)
				s.mu.Unlock()
				close(done)
			}, nil
		}
		s.mu.Unlock()
		select {
		case <-running:
		case <-ctx.Done():
			return nil, repoerr.Wrap(repoerr.ErrStorageUnavailable,
				fmt.Errorf("waiting for an earlier delete of %s: %w", digest, ctx.Err()))
		}
	}
}

// do runs op with a deadline.  If digest is non-nil, op is ordered after any running Delete of
// that digest; a Delete passes exclusive.
func (s *timeoutStore) do(ctx context.Context, digest *Digest, exclusive bool, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	finished := func() {}
	if digest != nil {
		var err error
		if finished, err = s.settle(ctx, *digest, exclusive); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		defer finished()
		defer func() {
			if perr := derror.PanicToError(recover()); perr != nil {
				errCh <- repoerr.Wrap(repoerr.ErrStorageUnavailable, perr)
			}
		}()
		errCh <- op(ctx)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return repoerr.Wrap(repoerr.ErrStorageUnavailable, ctx.Err())
	}
}

func (s *timeoutStore) Put(ctx context.Context, content []byte) (Digest, error) {
	var digest Digest
	want := Sum(content)
	err := s.do(ctx, &want, false, func(ctx context.Context) error {
		var err error
		digest, err = s.inner.Put(ctx, content)
		return err
	})
	if err != nil {
		return Digest{}, fmt.Errorf("blobstore.Put: %w", err)
	}
	return digest, nil
}

func (s *timeoutStore) Get(ctx context.Context, digest Digest) ([]byte, error) {
	var content []byte
	err := s.do(ctx, &digest, false, func(ctx context.Context) error {
		var err error
		content, err = s.inner.Get(ctx, digest)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore.Get: %w", err)
	}
	return content, nil
}

func (s *timeoutStore) Delete(ctx context.Context, digest Digest) error {
	if err := s.do(ctx, &digest, true, func(ctx context.Context) error {
		return s.inner.Delete(ctx, digest)
	}); err != nil {
		return fmt.Errorf("blobstore.Delete: %w", err)
	}
	return nil
}

func (s *timeoutStore) Has(ctx context.Context, digest Digest) (bool, error) {
	var has bool
	err := s.do(ctx, &digest, false, func(ctx context.Context) error {
		var err error
		has, err = s.inner.Has(ctx, digest)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("blobstore.Has: %w", err)
	}
	return has, nil
}

func (s *timeoutStore) List(ctx context.Context) ([]Digest, error) {
	var digests []Digest
	err := s.do(ctx, nil, false, func(ctx context.Context) error {
		var err error
		digests, err = s.inner.List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore.List: %w", err)
	}
	return digests, nil
}
