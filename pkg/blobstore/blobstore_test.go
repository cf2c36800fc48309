// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package blobstore_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/repoerr"
)

func stores(t *testing.T) map[string]func(t *testing.T) blobstore.Store {
	t.Helper()
	return map[string]func(t *testing.T) blobstore.Store{
		"mem": func(t *testing.T) blobstore.Store {
			return &blobstore.MemStore{}
		},
		"fs": func(t *testing.T) blobstore.Store {
			store, err := blobstore.NewFSStore(t.TempDir())
			require.NoError(t, err)
			return store
		},
		"fs-timeout": func(t *testing.T) blobstore.Store {
			store, err := blobstore.NewFSStore(t.TempDir())
			require.NoError(t, err)
			return blobstore.WithTimeout(store, time.Minute)
		},
	}
}

func TestSum(t *testing.T) {
	t.Parallel()
	digest := blobstore.Sum([]byte("hello\n"))
	assert.Equal(t, "sha256:5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03", digest.String())

	parsed, err := blobstore.ParseDigest(digest.String())
	require.NoError(t, err)
	assert.Equal(t, digest, parsed)

	_, err = blobstore.ParseDigest("md5:d41d8cd98f00b204e9800998ecf8427e")
	assert.Error(t, err)
	_, err = blobstore.ParseDigest("sha256:xyz")
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	t.Parallel()
	for storeName, newStore := range stores(t) {
		newStore := newStore
		t.Run(storeName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, true)
			store := newStore(t)

			content := []byte("artifact bytes")
			digest, err := store.Put(ctx, content)
			require.NoError(t, err)
			assert.Equal(t, blobstore.Sum(content), digest)

			// Round trip.
			got, err := store.Get(ctx, digest)
			require.NoError(t, err)
			assert.Equal(t, content, got)

			// Idempotent.
			again, err := store.Put(ctx, content)
			require.NoError(t, err)
			assert.Equal(t, digest, again)

			other, err := store.Put(ctx, []byte("other bytes"))
			require.NoError(t, err)

			list, err := store.List(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []blobstore.Digest{digest, other}, list)

			has, err := store.Has(ctx, digest)
			require.NoError(t, err)
			assert.True(t, has)

			require.NoError(t, store.Delete(ctx, digest))
			has, err = store.Has(ctx, digest)
			require.NoError(t, err)
			assert.False(t, has)

			_, err = store.Get(ctx, digest)
			assert.ErrorIs(t, err, repoerr.ErrNotFound)
			assert.ErrorIs(t, store.Delete(ctx, digest), repoerr.ErrNotFound)

			list, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []blobstore.Digest{other}, list)
		})
	}
}

func TestStoreConcurrentPut(t *testing.T) {
	t.Parallel()
	for storeName, newStore := range stores(t) {
		newStore := newStore
		t.Run(storeName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, true)
			store := newStore(t)

			content := []byte("the same bytes from every uploader")
			const n = 16
			var wg sync.WaitGroup
			digests := make([]blobstore.Digest, n)
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				i := i
				wg.Add(1)
				go func() {
					defer wg.Done()
					digests[i], errs[i] = store.Put(ctx, content)
				}()
			}
			wg.Wait()
			for i := 0; i < n; i++ {
				require.NoError(t, errs[i])
				assert.Equal(t, blobstore.Sum(content), digests[i])
			}
			list, err := store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestFSStoreLayout(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	dir := t.TempDir()
	store, err := blobstore.NewFSStore(dir)
	require.NoError(t, err)

	digest, err := store.Put(ctx, []byte("hello\n"))
	require.NoError(t, err)
	filename := filepath.Join(dir, "blobs", "sha256", digest.Hex[:2], digest.Hex)
	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))

	// A stray temporary file is not a blob.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blobs", "sha256", digest.Hex[:2], ".tmp-junk"), nil, 0o644))
	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []blobstore.Digest{digest}, list)
}

func TestFSStoreIntegrity(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()
	store, err := blobstore.NewFSStore(dir)
	require.NoError(t, err)

	content := []byte("original")
	digest, err := store.Put(ctx, content)
	require.NoError(t, err)

	filename := filepath.Join(dir, "blobs", "sha256", digest.Hex[:2], digest.Hex)
	require.NoError(t, os.WriteFile(filename, []byte("tampered"), 0o644))

	_, err = store.Get(ctx, digest)
	assert.ErrorIs(t, err, repoerr.ErrIntegrityViolation)
	assert.False(t, repoerr.Retryable(err))

	_, err = store.Put(ctx, content)
	assert.ErrorIs(t, err, repoerr.ErrIntegrityViolation)
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()
	for storeName, newStore := range stores(t) {
		newStore := newStore
		t.Run(storeName, func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.WithCancel(dlog.NewTestContext(t, true))
			cancel()
			store := newStore(t)
			_, err := store.Put(ctx, []byte("x"))
			assert.ErrorIs(t, err, repoerr.ErrStorageUnavailable)
			assert.True(t, repoerr.Retryable(err))
		})
	}
}

// slowStore blocks every call until its context is done.
type slowStore struct {
	blobstore.MemStore
}

func (*slowStore) Put(ctx context.Context, _ []byte) (blobstore.Digest, error) {
	<-ctx.Done()
	return blobstore.Digest{}, ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	store := blobstore.WithTimeout(&slowStore{}, 10*time.Millisecond)
	start := time.Now()
	_, err := store.Put(ctx, []byte("x"))
	assert.ErrorIs(t, err, repoerr.ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	// Calls that don't block go through.
	has, err := store.Has(ctx, blobstore.Sum(nil))
	require.NoError(t, err)
	assert.False(t, has)
}

// lingeringStore is a MemStore whose Delete ignores its context, and doesn't remove anything
// until release is closed.
type lingeringStore struct {
	blobstore.MemStore
	release chan struct{}
}

func (s *lingeringStore) Delete(_ context.Context, digest blobstore.Digest) error {
	<-s.release
	return s.MemStore.Delete(context.Background(), digest)
}

func TestWithTimeoutAbandonedDelete(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	inner := &lingeringStore{release: make(chan struct{})}
	store := blobstore.WithTimeout(inner, 10*time.Millisecond)
	content := []byte("still wanted")

	digest, err := store.Put(ctx, content)
	require.NoError(t, err)
	err = store.Delete(ctx, digest)
	assert.ErrorIs(t, err, repoerr.ErrStorageUnavailable)

	// The inner Delete is still running; a Put of the same content can't finish before it.
	_, err = store.Put(ctx, content)
	assert.ErrorIs(t, err, repoerr.ErrStorageUnavailable)

	// Other digests are not held up.
	other, err := store.Put(ctx, []byte("unrelated"))
	require.NoError(t, err)
	has, err := store.Has(ctx, other)
	require.NoError(t, err)
	assert.True(t, has)

	time.AfterFunc(50*time.Millisecond, func() { close(inner.release) })
	err = blobstore.Retry(ctx, wait.Backoff{Duration: 10 * time.Millisecond, Factor: 1, Steps: 100},
		func(ctx context.Context) error {
			_, err := store.Put(ctx, content)
			return err
		})
	require.NoError(t, err)

	got, err := inner.MemStore.Get(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

// flakyStore fails the first n Puts with StorageUnavailable.
type flakyStore struct {
	blobstore.MemStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) Put(ctx context.Context, content []byte) (blobstore.Digest, error) {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return blobstore.Digest{}, repoerr.Wrap(repoerr.ErrStorageUnavailable, fmt.Errorf("disk on fire"))
	}
	return s.MemStore.Put(ctx, content)
}

func TestRetry(t *testing.T) {
	t.Parallel()
	backoff := wait.Backoff{Duration: time.Millisecond, Factor: 2, Steps: 4}
	testcases := map[string]struct {
		Failures  int
		ExpCalls  int
		ExpResult error
	}{
		"no-failures":   {0, 1, nil},
		"one-failure":   {1, 2, nil},
		"three-failure": {3, 4, nil},
		"exhausted":     {4, 4, repoerr.ErrStorageUnavailable},
	}
	for tcName, tcData := range testcases {
		tcData := tcData
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, false)
			store := &flakyStore{failures: tcData.Failures}
			err := blobstore.Retry(ctx, backoff, func(ctx context.Context) error {
				_, err := store.Put(ctx, []byte("content"))
				return err
			})
			if tcData.ExpResult == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tcData.ExpResult)
			}
			assert.Equal(t, tcData.ExpCalls, store.calls)
		})
	}

	t.Run("not-retryable", func(t *testing.T) {
		t.Parallel()
		ctx := dlog.NewTestContext(t, false)
		calls := 0
		err := blobstore.Retry(ctx, backoff, func(context.Context) error {
			calls++
			return repoerr.Wrap(repoerr.ErrIntegrityViolation, fmt.Errorf("bad"))
		})
		assert.ErrorIs(t, err, repoerr.ErrIntegrityViolation)
		assert.Equal(t, 1, calls)
	})
}
