// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package responder_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/metadata"
	"github.com/datawire/pkgrepo/pkg/python/pep503"
	"github.com/datawire/pkgrepo/pkg/python/pep629"
	"github.com/datawire/pkgrepo/pkg/python/pep691"
	"github.com/datawire/pkgrepo/pkg/repoerr"
	"github.com/datawire/pkgrepo/pkg/repoindex"
	"github.com/datawire/pkgrepo/pkg/responder"
	"github.com/datawire/pkgrepo/pkg/testutil"
)

func TestNegotiate(t *testing.T) {
	t.Parallel()
	type testcase struct {
		Ecosystem   metadata.Ecosystem
		Accept      string
		ContentType string
		Format      responder.Format
	}
	testcases := map[string]testcase{
		"pypi-empty":   {metadata.PyPI, "", "text/html", responder.FormatHTML},
		"pypi-any":     {metadata.PyPI, "*/*", "text/html", responder.FormatHTML},
		"pypi-html":    {metadata.PyPI, "text/html", "text/html", responder.FormatHTML},
		"pypi-v1-html": {metadata.PyPI, "application/vnd.pypi.simple.v1+html", "application/vnd.pypi.simple.v1+html", responder.FormatHTML},
		"pypi-v1-json": {metadata.PyPI, "application/vnd.pypi.simple.v1+json", "application/vnd.pypi.simple.v1+json", responder.FormatJSON},
		"pypi-latest":  {metadata.PyPI, "application/vnd.pypi.simple.latest+json", "application/vnd.pypi.simple.v1+json", responder.FormatJSON},
		"pypi-pip": {
			metadata.PyPI,
			"application/vnd.pypi.simple.v1+json, application/vnd.pypi.simple.v1+html; q=0.1, text/html; q=0.01",
			"application/vnd.pypi.simple.v1+json", responder.FormatJSON,
		},
		"pypi-q-order": {
			metadata.PyPI,
			"application/vnd.pypi.simple.v1+json;q=0.2, text/html",
			"text/html", responder.FormatHTML,
		},
		"pypi-skip-unknown": {metadata.PyPI, "image/png, text/html;q=0.5", "text/html", responder.FormatHTML},
		"pypi-case":         {metadata.PyPI, "Text/HTML", "text/html", responder.FormatHTML},
		"conda-json":        {metadata.Conda, "application/json", "application/json", responder.FormatRepodata},
		"conda-any":         {metadata.Conda, "*/*", "application/json", responder.FormatRepodata},
	}
	for tcName, tcData := range testcases {
		tcData := tcData
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			contentType, format, err := responder.Negotiate(tcData.Ecosystem, tcData.Accept)
			require.NoError(t, err)
			assert.Equal(t, tcData.ContentType, contentType)
			assert.Equal(t, tcData.Format, format)
		})
	}

	for _, bad := range []struct {
		Ecosystem metadata.Ecosystem
		Accept    string
	}{
		{metadata.PyPI, "application/json"},
		{metadata.PyPI, "image/png"},
		{metadata.PyPI, "text/html;q=0"},
		{metadata.PyPI, "application/vnd.pypi.simple.v2+json"},
		{metadata.Conda, "text/html"},
	} {
		_, _, err := responder.Negotiate(bad.Ecosystem, bad.Accept)
		assert.ErrorIs(t, err, repoerr.ErrUnsupportedAcceptType, bad.Accept)
	}
}

func pypiSnapshot(t *testing.T) *repoindex.Snapshot {
	t.Helper()
	ctx := dlog.NewTestContext(t, true)
	idx := repoindex.New(metadata.PyPI)
	for _, rec := range []*repoindex.ArtifactRecord{
		{
			Key:        repoindex.Key{Name: "artipietestpkg", Version: "0.0.3", Filename: "artipietestpkg-0.0.3.tar.gz"},
			Digest:     blobstore.Sum([]byte("sdist")),
			Size:       5,
			UploadTime: time.Date(2022, 1, 2, 3, 4, 5, 600000000, time.UTC),
			Metadata:   &metadata.PackageMetadata{RequiresPython: ">=3.5, <4"},
		},
		{
			Key:        repoindex.Key{Name: "artipietestpkg", Version: "0.0.2", Filename: "artipietestpkg-0.0.2-py3-none-any.whl"},
			Digest:     blobstore.Sum([]byte("wheel")),
			Size:       5,
			UploadTime: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
			Metadata:   &metadata.PackageMetadata{},
		},
		{
			Key:      repoindex.Key{Name: "other", Version: "1.0", Filename: "other-1.0.zip"},
			Digest:   blobstore.Sum([]byte("other")),
			Size:     5,
			Metadata: &metadata.PackageMetadata{},
		},
	} {
		_, err := idx.Record(ctx, rec)
		require.NoError(t, err)
	}
	return idx.Snapshot()
}

func TestProjectHTML(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	snap := pypiSnapshot(t)
	resp, err := responder.Responder{BaseURL: "https://repo.example.com/simple/"}.Project(snap, "ArtipieTestPkg", "text/html")
	require.NoError(t, err)
	assert.Equal(t, "text/html", resp.ContentType)
	assert.Contains(t, string(resp.Body), `<meta name="pypi:repository-version" content="1.0"/>`)
	assert.Contains(t, string(resp.Body), `data-requires-python="&gt;=3.5, &lt;4"`)

	doc, err := html.Parse(bytes.NewReader(resp.Body))
	require.NoError(t, err)
	require.NoError(t, pep629.HTMLVersionCheck(ctx, doc))
	links, err := pep503.ParseLinks(doc, nil)
	require.NoError(t, err)
	sdist := blobstore.Sum([]byte("sdist"))
	wheel := blobstore.Sum([]byte("wheel"))
	assert.Equal(t, []pep503.Link{
		{
			Text:      "artipietestpkg-0.0.2-py3-none-any.whl",
			HRef:      "https://repo.example.com/simple/artipietestpkg/artipietestpkg-0.0.2-py3-none-any.whl#sha256=" + wheel.Hex,
			DataAttrs: map[string]string{},
		},
		{
			Text:      "artipietestpkg-0.0.3.tar.gz",
			HRef:      "https://repo.example.com/simple/artipietestpkg/artipietestpkg-0.0.3.tar.gz#sha256=" + sdist.Hex,
			DataAttrs: map[string]string{"data-requires-python": ">=3.5, <4"},
		},
	}, links)
}

func TestProjectJSON(t *testing.T) {
	t.Parallel()
	snap := pypiSnapshot(t)
	resp, err := responder.Responder{}.Project(snap, "artipietestpkg", "application/vnd.pypi.simple.v1+json")
	require.NoError(t, err)
	assert.Equal(t, pep691.ContentType, resp.ContentType)

	var project pep691.Project
	require.NoError(t, json.Unmarshal(resp.Body, &project))
	assert.Equal(t, pep691.Project{
		Meta:     pep691.Meta{APIVersion: "1.1"},
		Name:     "artipietestpkg",
		Versions: []string{"0.0.2", "0.0.3"},
		Files: []pep691.File{
			{
				Filename:   "artipietestpkg-0.0.2-py3-none-any.whl",
				URL:        "/artipietestpkg/artipietestpkg-0.0.2-py3-none-any.whl",
				Hashes:     map[string]string{"sha256": blobstore.Sum([]byte("wheel")).Hex},
				Size:       5,
				UploadTime: "2022-01-01T00:00:00.000000Z",
			},
			{
				Filename:       "artipietestpkg-0.0.3.tar.gz",
				URL:            "/artipietestpkg/artipietestpkg-0.0.3.tar.gz",
				Hashes:         map[string]string{"sha256": blobstore.Sum([]byte("sdist")).Hex},
				RequiresPython: ">=3.5, <4",
				Size:           5,
				UploadTime:     "2022-01-02T03:04:05.600000Z",
			},
		},
	}, project)
	// HTML-significant characters are not escaped.
	assert.Contains(t, string(resp.Body), `">=3.5, <4"`)
}

func TestUnknownProject(t *testing.T) {
	t.Parallel()
	snap := pypiSnapshot(t)
	r := responder.Responder{}

	resp, err := r.Project(snap, "does-not-exist", "")
	require.NoError(t, err)
	doc, err := html.Parse(bytes.NewReader(resp.Body))
	require.NoError(t, err)
	links, err := pep503.ParseLinks(doc, nil)
	require.NoError(t, err)
	assert.Empty(t, links)

	resp, err = r.Project(snap, "does-not-exist", pep691.ContentType)
	require.NoError(t, err)
	assert.JSONEq(t, `{"meta": {"api-version": "1.1"}, "name": "does-not-exist", "files": [], "versions": []}`,
		string(resp.Body))
}

func TestIndex(t *testing.T) {
	t.Parallel()
	snap := pypiSnapshot(t)
	r := responder.Responder{BaseURL: "/simple"}

	resp, err := r.Index(snap, "text/html")
	require.NoError(t, err)
	doc, err := html.Parse(bytes.NewReader(resp.Body))
	require.NoError(t, err)
	links, err := pep503.ParseLinks(doc, nil)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "artipietestpkg", links[0].Text)
	assert.Equal(t, "/simple/artipietestpkg/", links[0].HRef)
	assert.Equal(t, "other", links[1].Text)

	resp, err = r.Index(snap, "application/vnd.pypi.simple.latest+json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"meta": {"api-version": "1.1"}, "projects": [{"name": "artipietestpkg"}, {"name": "other"}]}`,
		string(resp.Body))

	_, err = r.Index(snap, "application/xml")
	assert.ErrorIs(t, err, repoerr.ErrUnsupportedAcceptType)
}

func TestRepodata(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	pkg := testutil.ExampleCondaPackage()
	idx := repoindex.New(metadata.Conda)
	record := func(filename, subdir string) *repoindex.ArtifactRecord {
		return &repoindex.ArtifactRecord{
			Key:    repoindex.Key{Name: pkg.Name, Version: pkg.Version, Filename: filename},
			Digest: blobstore.Sum([]byte(filename)),
			Size:   int64(len(filename)),
			MD5:    "d41d8cd98f00b204e9800998ecf8427e",
			Metadata: &metadata.PackageMetadata{
				Ecosystem: metadata.Conda,
				Name:      pkg.Name,
				Version:   pkg.Version,
				Subdir:    subdir,
				IndexJSON: pkg.IndexJSON(t),
			},
		}
	}
	for _, rec := range []*repoindex.ArtifactRecord{
		record("example-package-0.0.1-0.tar.bz2", "linux-64"),
		record("example-package-0.0.1-0.conda", "linux-64"),
		record("example-package-0.0.1-1.conda", "linux-64"),
		record("example-package-0.0.1-0.zzz.conda", "osx-64"),
	} {
		_, err := idx.Record(ctx, rec)
		require.NoError(t, err)
	}
	_, err := idx.Remove(ctx, repoindex.Key{Name: pkg.Name, Version: pkg.Version, Filename: "example-package-0.0.1-1.conda"})
	require.NoError(t, err)
	snap := idx.Snapshot()

	assert.Equal(t, []string{"linux-64", "osx-64"}, responder.Subdirs(snap))

	resp, err := responder.Responder{}.Repodata(snap, "linux-64", "application/json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.ContentType)

	var repodata struct {
		Info struct {
			Subdir string `json:"subdir"`
		} `json:"info"`
		Packages        map[string]map[string]interface{} `json:"packages"`
		PackagesConda   map[string]map[string]interface{} `json:"packages.conda"`
		Removed         []string                          `json:"removed"`
		RepodataVersion int                               `json:"repodata_version"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &repodata))
	assert.Equal(t, "linux-64", repodata.Info.Subdir)
	assert.Equal(t, 1, repodata.RepodataVersion)
	assert.Equal(t, []string{"example-package-0.0.1-1.conda"}, repodata.Removed)
	require.Contains(t, repodata.Packages, "example-package-0.0.1-0.tar.bz2")
	assert.Len(t, repodata.Packages, 1)
	require.Contains(t, repodata.PackagesConda, "example-package-0.0.1-0.conda")
	assert.Len(t, repodata.PackagesConda, 1)
	entry := repodata.PackagesConda["example-package-0.0.1-0.conda"]
	assert.Equal(t, "example-package", entry["name"])
	assert.Equal(t, blobstore.Sum([]byte("example-package-0.0.1-0.conda")).Hex, entry["sha256"])
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", entry["md5"])
	assert.Equal(t, float64(len("example-package-0.0.1-0.conda")), entry["size"])

	// An empty subdir is an empty document, not an error.
	resp, err = responder.Responder{}.Repodata(snap, "win-64", "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"info": {"subdir": "win-64"}, "packages": {}, "packages.conda": {}, "removed": [], "repodata_version": 1}`,
		string(resp.Body))

}

func TestWrongEcosystemPage(t *testing.T) {
	t.Parallel()
	pypi := pypiSnapshot(t)
	conda := repoindex.New(metadata.Conda).Snapshot()
	r := responder.Responder{}
	jsonAccept := "application/vnd.pypi.simple.v1+json"
	testcases := map[string]func() (*responder.Response, error){
		"conda-index":        func() (*responder.Response, error) { return r.Index(conda, "") },
		"conda-project":      func() (*responder.Response, error) { return r.Project(conda, "pkg", "application/json") },
		"pypi-repodata":      func() (*responder.Response, error) { return r.Repodata(pypi, "noarch", "") },
		"pypi-json-repodata": func() (*responder.Response, error) { return r.Repodata(pypi, "noarch", jsonAccept) },
	}
	for tcName, tcData := range testcases {
		tcData := tcData
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			resp, err := tcData()
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, repoerr.ErrUnsupportedAcceptType)
			assert.Equal(t, repoerr.ErrUnsupportedAcceptType, repoerr.Kind(err))
		})
	}
}
