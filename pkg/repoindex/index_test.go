// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package repoindex_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/metadata"
	"github.com/datawire/pkgrepo/pkg/repoerr"
	"github.com/datawire/pkgrepo/pkg/repoindex"
)

func record(name, version, filename, content string) *repoindex.ArtifactRecord {
	return &repoindex.ArtifactRecord{
		Key: repoindex.Key{
			Name:     name,
			Version:  version,
			Filename: filename,
		},
		Digest:     blobstore.Sum([]byte(content)),
		Size:       int64(len(content)),
		UploadTime: time.Date(2022, 1, 2, 3, 4, 5, 600000000, time.UTC),
		Metadata: &metadata.PackageMetadata{
			Ecosystem: metadata.PyPI,
			Name:      name,
			Version:   version,
		},
	}
}

func versions(pvs []repoindex.PackageVersion) []string {
	ret := make([]string, 0, len(pvs))
	for _, pv := range pvs {
		ret = append(ret, pv.Version)
	}
	return ret
}

func TestRecord(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	idx := repoindex.New(metadata.PyPI)
	before := idx.Snapshot()

	created, err := idx.Record(ctx, record("Foo_Bar", "1.0", "foo_bar-1.0.tar.gz", "a"))
	require.NoError(t, err)
	assert.True(t, created)

	// Identical digest: idempotent.
	created, err = idx.Record(ctx, record("foo-bar", "1.0", "foo_bar-1.0.tar.gz", "a"))
	require.NoError(t, err)
	assert.False(t, created)

	// Different digest: conflict.
	created, err = idx.Record(ctx, record("foo-bar", "1.0", "foo_bar-1.0.tar.gz", "b"))
	assert.False(t, created)
	assert.ErrorIs(t, err, repoerr.ErrVersionConflict)
	assert.Equal(t, repoerr.ErrVersionConflict, repoerr.Kind(err))

	after := idx.Snapshot()
	assert.Equal(t, uint64(0), before.Generation())
	assert.Equal(t, uint64(1), after.Generation())
	assert.Empty(t, before.Lookup("foo-bar"), "old snapshots are immutable")
	assert.Equal(t, []string{"foo-bar"}, after.Names())

	pvs := idx.Lookup("FOO.bar")
	require.Len(t, pvs, 1)
	assert.Equal(t, "foo-bar", pvs[0].Name)
	require.Len(t, pvs[0].Artifacts, 1)
	assert.Equal(t, blobstore.Sum([]byte("a")), pvs[0].Artifacts[0].Digest)

	assert.Equal(t, 1, after.References(blobstore.Sum([]byte("a"))))
	assert.Equal(t, 0, after.References(blobstore.Sum([]byte("b"))))
	assert.Nil(t, idx.Lookup("unknown"))
}

func TestOrdering(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	idx := repoindex.New(metadata.PyPI)
	for i, ver := range []string{"1.10", "1.2", "not-a-version", "1.0rc1", "1.0", "1.0.post1", "2.0.dev0"} {
		_, err := idx.Record(ctx, record("pkg", ver, fmt.Sprintf("pkg-%s.tar.gz", ver), fmt.Sprint(i)))
		require.NoError(t, err)
	}
	// Several artifacts for one version, recorded out of order.
	for _, filename := range []string{"pkg-1.2.zip", "pkg-1.2-py3-none-any.whl"} {
		_, err := idx.Record(ctx, record("pkg", "1.2", filename, filename))
		require.NoError(t, err)
	}

	pvs := idx.Lookup("pkg")
	assert.Equal(t,
		[]string{"1.0rc1", "1.0", "1.0.post1", "1.2", "1.10", "2.0.dev0", "not-a-version"},
		versions(pvs))

	var filenames []string
	for _, rec := range pvs[3].Artifacts {
		filenames = append(filenames, rec.Key.Filename)
	}
	assert.Equal(t, []string{"pkg-1.2-py3-none-any.whl", "pkg-1.2.tar.gz", "pkg-1.2.zip"}, filenames)
}

func TestEquivalentVersions(t *testing.T) {
	t.Parallel()
	type testcase struct {
		Ecosystem   metadata.Ecosystem
		ExpVersions []string
	}
	testcases := map[string]testcase{
		"pypi":  {metadata.PyPI, []string{"1.0"}},
		"conda": {metadata.Conda, []string{"1.0", "1.0.0"}},
	}
	for tcName, tcData := range testcases {
		tcData := tcData
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, true)
			idx := repoindex.New(tcData.Ecosystem)
			_, err := idx.Record(ctx, record("pkg", "1.0", "pkg-1.0.tar.gz", "a"))
			require.NoError(t, err)
			created, err := idx.Record(ctx, record("pkg", "1.0.0", "pkg-1.0.0-py3-none-any.whl", "b"))
			require.NoError(t, err)
			assert.True(t, created)

			pvs := idx.Lookup("pkg")
			assert.Equal(t, tcData.ExpVersions, versions(pvs))
			if tcData.Ecosystem != metadata.PyPI {
				return
			}
			require.Len(t, pvs[0].Artifacts, 2)
			for _, rec := range pvs[0].Artifacts {
				assert.Equal(t, "1.0", rec.Key.Version)
			}

			// Any spelling finds the record.
			rec := idx.Snapshot().Get(repoindex.Key{Name: "pkg", Version: "1.0.0", Filename: "pkg-1.0.tar.gz"})
			require.NotNil(t, rec)
			assert.Equal(t, blobstore.Sum([]byte("a")), rec.Digest)

			// Re-recording under the other spelling is idempotent, not a second record.
			created, err = idx.Record(ctx, record("pkg", "1.0.0", "pkg-1.0.tar.gz", "a"))
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, 2, idx.Snapshot().Len())

			removed, err := idx.Remove(ctx, repoindex.Key{Name: "pkg", Version: "1.0.0", Filename: "pkg-1.0.0-py3-none-any.whl"})
			require.NoError(t, err)
			assert.Equal(t, "1.0", removed.Key.Version)
			assert.Equal(t, []string{"1.0"}, versions(idx.Lookup("pkg")))
		})
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	idx := repoindex.New(metadata.PyPI)

	shared := "shared bytes"
	_, err := idx.Record(ctx, record("a", "1.0", "a-1.0.tar.gz", shared))
	require.NoError(t, err)
	_, err = idx.Record(ctx, record("b", "1.0", "b-1.0.tar.gz", shared))
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Snapshot().References(blobstore.Sum([]byte(shared))))

	removed, err := idx.Remove(ctx, repoindex.Key{Name: "A", Version: "1.0", Filename: "a-1.0.tar.gz"})
	require.NoError(t, err)
	assert.Equal(t, "a", removed.Key.Name)

	snap := idx.Snapshot()
	assert.Equal(t, 1, snap.References(blobstore.Sum([]byte(shared))))
	assert.Equal(t, []string{"b"}, snap.Names())
	assert.Nil(t, snap.Lookup("a"))
	require.Len(t, snap.Removed(), 1)
	assert.Equal(t, "a-1.0.tar.gz", snap.Removed()[0].Key.Filename)

	_, err = idx.Remove(ctx, repoindex.Key{Name: "a", Version: "1.0", Filename: "a-1.0.tar.gz"})
	assert.ErrorIs(t, err, repoerr.ErrNotFound)

	// Re-uploading clears the tombstone.
	_, err = idx.Record(ctx, record("a", "1.0", "a-1.0.tar.gz", "new bytes"))
	require.NoError(t, err)
	assert.Empty(t, idx.Snapshot().Removed())
}

func TestOnPublish(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	idx := repoindex.New(metadata.Conda)
	var generations []uint64
	idx.OnPublish(func(_ context.Context, snap *repoindex.Snapshot) {
		generations = append(generations, snap.Generation())
	})
	_, err := idx.Record(ctx, record("pkg", "1", "pkg-1-0.conda", "x"))
	require.NoError(t, err)
	_, err = idx.Record(ctx, record("pkg", "1", "pkg-1-0.conda", "x"))
	require.NoError(t, err)
	_, err = idx.Remove(ctx, repoindex.Key{Name: "pkg", Version: "1", Filename: "pkg-1-0.conda"})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, generations)
}

func TestConcurrentRecord(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	idx := repoindex.New(metadata.PyPI)

	const n = 32
	var wg sync.WaitGroup
	created := make([]bool, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Half race on the same key, half write distinct versions.
			if i%2 == 0 {
				created[i], errs[i] = idx.Record(ctx, record("pkg", "1.0", "pkg-1.0.tar.gz", "same"))
			} else {
				ver := fmt.Sprintf("2.%d", i)
				created[i], errs[i] = idx.Record(ctx, record("pkg", ver, "pkg-"+ver+".tar.gz", ver))
			}
		}()
	}
	wg.Wait()

	numCreated := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if i%2 == 0 && created[i] {
			numCreated++
		}
		if i%2 == 1 {
			assert.True(t, created[i])
		}
	}
	assert.Equal(t, 1, numCreated)

	snap := idx.Snapshot()
	assert.Equal(t, 1+n/2, snap.Len())
	assert.Equal(t, uint64(1+n/2), snap.Generation())
	assert.Len(t, snap.Lookup("pkg"), 1+n/2)
}

func TestCanceledRecord(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(dlog.NewTestContext(t, true))
	cancel()
	idx := repoindex.New(metadata.PyPI)
	_, err := idx.Record(ctx, record("pkg", "1.0", "pkg-1.0.tar.gz", "x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, idx.Snapshot().Len())
}
