// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package repoindex_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pkgrepo/pkg/metadata"
	"github.com/datawire/pkgrepo/pkg/repoindex"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	idx := repoindex.New(metadata.PyPI)
	for _, rec := range []*repoindex.ArtifactRecord{
		record("pkg", "1.0", "pkg-1.0.tar.gz", "a"),
		record("pkg", "1.0", "pkg-1.0-py3-none-any.whl", "b"),
		record("other", "0.1", "other-0.1.zip", "a"),
		record("gone", "0.1", "gone-0.1.zip", "c"),
	} {
		_, err := idx.Record(ctx, rec)
		require.NoError(t, err)
	}
	_, err := idx.Remove(ctx, repoindex.Key{Name: "gone", Version: "0.1", Filename: "gone-0.1.zip"})
	require.NoError(t, err)

	snap := idx.Snapshot()
	data, err := repoindex.Encode(snap)
	require.NoError(t, err)
	again, err := repoindex.Encode(snap)
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding is deterministic")

	decoded, err := repoindex.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, snap.Generation(), decoded.Generation())
	assert.Equal(t, snap.Ecosystem(), decoded.Ecosystem())
	assert.Equal(t, snap.Names(), decoded.Names())
	assert.Equal(t, snap.Records(), decoded.Records())
	assert.Equal(t, snap.Removed(), decoded.Removed())
	assert.Equal(t, snap.Lookup("pkg"), decoded.Lookup("pkg"))
	assert.Equal(t, 2, decoded.References(record("", "", "", "a").Digest))

	_, err = repoindex.Decode([]byte("garbage"))
	assert.Error(t, err)
}

func TestFilePersister(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	filename := filepath.Join(t.TempDir(), "index.cbor")

	// Missing file: empty index.
	idx, err := repoindex.Load(ctx, metadata.PyPI, filename)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Snapshot().Len())

	persister := &repoindex.FilePersister{Filename: filename}
	idx.OnPublish(persister.Hook)

	_, err = idx.Record(ctx, record("pkg", "1.0", "pkg-1.0.tar.gz", "a"))
	require.NoError(t, err)
	stale := idx.Snapshot()
	_, err = idx.Record(ctx, record("pkg", "1.1", "pkg-1.1.tar.gz", "b"))
	require.NoError(t, err)
	require.NoError(t, persister.Err())

	// An older generation does not overwrite a newer one.
	require.NoError(t, persister.Persist(ctx, stale))

	loaded, err := repoindex.Load(ctx, metadata.PyPI, filename)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.Snapshot().Generation())
	assert.Equal(t, []string{"1.0", "1.1"}, versions(loaded.Lookup("pkg")))

	// Ecosystem mismatch.
	_, err = repoindex.Load(ctx, metadata.Conda, filename)
	assert.Error(t, err)

	// Corrupt file.
	require.NoError(t, os.WriteFile(filename, []byte("not cbor"), 0o644))
	_, err = repoindex.Load(ctx, metadata.PyPI, filename)
	assert.Error(t, err)
}
