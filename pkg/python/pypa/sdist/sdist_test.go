// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package sdist_test

import (
	"errors"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pkgrepo/pkg/python/pypa/sdist"
	"github.com/datawire/pkgrepo/pkg/testutil"
)

func TestParseFilename(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Distribution string
		Version      string
		Extension    string
	}{
		"artipietestpkg-0.0.3.tar.gz":    {"artipietestpkg", "0.0.3", ".tar.gz"},
		"ABtests-0.0.2.1.zip":            {"ABtests", "0.0.2.1", ".zip"},
		"py-3to2-1.0.tgz":                {"py-3to2", "1.0", ".tgz"},
		"pkg-1.0-1.tar.bz2":              {"pkg", "1.0.post1", ".tar.bz2"},
		"friendly_bard-2.0rc1.tar.xz":    {"friendly_bard", "2.0rc1", ".tar.xz"},
		"artipietestpkg-0.0.3.tar":       {"artipietestpkg", "0.0.3", ".tar"},
		"artipietestpkg-0.0.3-py3.8.egg": {"artipietestpkg", "0.0.3", ".egg"},
		"artipietestpkg-0.0.3.egg":       {"artipietestpkg", "0.0.3", ".egg"},
	}
	for filename, tc := range testcases {
		filename, tc := filename, tc
		t.Run(filename, func(t *testing.T) {
			t.Parallel()
			data, err := sdist.ParseFilename(filename)
			require.NoError(t, err)
			assert.Equal(t, tc.Distribution, data.Distribution)
			assert.Equal(t, tc.Version, data.Version.String())
			assert.Equal(t, tc.Extension, data.Extension)
		})
	}

	for _, bad := range []string{
		"artipietestpkg-0.0.3.rar",
		"artipietestpkg.tar.gz",
		"artipietestpkg-latest.tar.gz",
		".tar.gz",
		"-1.0.tar.gz",
	} {
		_, err := sdist.ParseFilename(bad)
		assert.Error(t, err, bad)
	}
}

func TestReadMetadata(t *testing.T) {
	t.Parallel()
	pkg := testutil.ArtipieTestPkg()
	for _, ext := range sdist.Extensions {
		ext := ext
		t.Run(ext, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, true)
			filename, content := pkg.Sdist(t, ext)
			md, err := sdist.ReadMetadata(ctx, filename, content)
			require.NoError(t, err)
			assert.Equal(t, "artipietestpkg", md.Name)
			assert.Equal(t, "0.0.3", md.Version)
			assert.Equal(t, "Artipie User", md.Author)
			assert.Equal(t, "example@artipie.com", md.AuthorEmail)
			assert.Equal(t, ">=2.6", md.RequiresPython)
			assert.Equal(t, pkg.Classifiers, md.Classifiers)
		})
	}
}

func TestReadMetadataPrefersTopLevel(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	top := testutil.PyPackage{Name: "top", Version: "1.0"}
	nested := testutil.PyPackage{Name: "nested", Version: "2.0"}
	content := testutil.Gzip(t, testutil.Tar(t,
		testutil.File{Name: "top-1.0/nested.egg-info/PKG-INFO", Content: nested.PKGInfo()},
		testutil.File{Name: "top-1.0/PKG-INFO", Content: top.PKGInfo()},
	))
	md, err := sdist.ReadMetadata(ctx, "top-1.0.tar.gz", content)
	require.NoError(t, err)
	assert.Equal(t, "top", md.Name)
}

func TestReadMetadataErrors(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Filename        string
		Content         []byte
		MissingMetadata bool
	}{
		"corrupt-gzip": {
			Filename: "x-1.0.tar.gz",
			Content:  []byte("definitely not gzip"),
		},
		"corrupt-zip": {
			Filename: "x-1.0.zip",
			Content:  []byte("definitely not zip"),
		},
		"unsupported": {
			Filename: "x-1.0.rar",
			Content:  []byte("whatever"),
		},
		"no-pkg-info": {
			Filename: "x-1.0.tar.gz",
			Content: testutil.Gzip(t, testutil.Tar(t,
				testutil.File{Name: "x-1.0/setup.py", Content: []byte("from setuptools import setup\n")})),
			MissingMetadata: true,
		},
		"no-pkg-info-zip": {
			Filename:        "x-1.0.zip",
			Content:         testutil.Zip(t, testutil.File{Name: "x-1.0/README"}),
			MissingMetadata: true,
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, false)
			_, err := sdist.ReadMetadata(ctx, tc.Filename, tc.Content)
			require.Error(t, err)
			assert.Equal(t, tc.MissingMetadata, errors.Is(err, sdist.ErrMissingMetadata))
		})
	}
}
