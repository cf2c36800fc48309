// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// PyPackage describes a fake Python package, the way its setup.py would.
type PyPackage struct {
	Name           string
	Version        string
	Author         string
	AuthorEmail    string
	Summary        string
	Description    string
	Classifiers    []string
	RequiresDist   []string
	RequiresPython string
}

// ArtipieTestPkg is the package that most tests upload.
func ArtipieTestPkg() PyPackage {
	return PyPackage{
		Name:        "artipietestpkg",
		Version:     "0.0.3",
		Author:      "Artipie User",
		AuthorEmail: "example@artipie.com",
		Summary:     "An example poetry project",
		Description: "An example poetry project",
		Classifiers: []string{
			"Programming Language :: Python :: 3",
			"License :: OSI Approved :: MIT License",
			"Operating System :: OS Independent",
		},
		RequiresPython: ">=2.6",
	}
}

// PKGInfo renders the package as a metadata 2.1 PKG-INFO/METADATA file.
func (p PyPackage) PKGInfo() []byte {
	var ret strings.Builder
	header := func(key, val string) {
		if val != "" {
			fmt.Fprintf(&ret, "%s: %s\n", key, val)
		}
	}
	header("Metadata-Version", "2.1")
	header("Name", p.Name)
	header("Version", p.Version)
	header("Summary", p.Summary)
	header("Author", p.Author)
	header("Author-email", p.AuthorEmail)
	for _, classifier := range p.Classifiers {
		header("Classifier", classifier)
	}
	header("Requires-Python", p.RequiresPython)
	for _, req := range p.RequiresDist {
		header("Requires-Dist", req)
	}
	if p.Description != "" {
		fmt.Fprintf(&ret, "\n%s\n", p.Description)
	}
	return []byte(ret.String())
}

//nolint:gochecknoglobals // Would be 'const'.
var reEscape = regexp.MustCompile(`[-_.]+`)

func (p PyPackage) escapedName() string {
	return reEscape.ReplaceAllLiteralString(p.Name, "_")
}

func recordHash(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256=" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// WheelFiles returns the files that make up a well-formed pure-Python wheel, with a correct
// RECORD.
func (p PyPackage) WheelFiles() []File {
	distInfo := p.escapedName() + "-" + p.Version + ".dist-info"
	files := []File{
		{Name: p.escapedName() + "/__init__.py", Content: []byte("__version__ = '" + p.Version + "'\n")},
		{Name: distInfo + "/METADATA", Content: p.PKGInfo()},
		{Name: distInfo + "/WHEEL", Content: []byte("" +
			"Wheel-Version: 1.0\n" +
			"Generator: bdist_wheel (0.37.1)\n" +
			"Root-Is-Purelib: true\n" +
			"Tag: py3-none-any\n")},
	}
	var record strings.Builder
	for _, file := range files {
		fmt.Fprintf(&record, "%s,%s,%d\n", file.Name, recordHash(file.Content), len(file.Content))
	}
	fmt.Fprintf(&record, "%s/RECORD,,\n", distInfo)
	return append(files, File{Name: distInfo + "/RECORD", Content: []byte(record.String())})
}

func (p PyPackage) WheelFilename() string {
	return p.escapedName() + "-" + p.Version + "-py3-none-any.whl"
}

// Wheel returns the filename and content of a wheel built from WheelFiles.
func (p PyPackage) Wheel(t testing.TB) (string, []byte) {
	t.Helper()
	return p.WheelFilename(), Zip(t, p.WheelFiles()...)
}

// SdistFiles returns the files in a source distribution, under the "{name}-{version}/" prefix.
func (p PyPackage) SdistFiles() []File {
	prefix := p.Name + "-" + p.Version + "/"
	return []File{
		{Name: prefix + "PKG-INFO", Content: p.PKGInfo()},
		{Name: prefix + "setup.py", Content: []byte("from setuptools import setup\nsetup()\n")},
		{Name: prefix + p.escapedName() + ".egg-info/PKG-INFO", Content: p.PKGInfo()},
	}
}

// Sdist returns the filename and content of a source distribution with the given extension
// (".tar.gz", ".tgz", ".tar.bz2", ".tar.xz", ".tar", ".zip", or ".egg").
func (p PyPackage) Sdist(t testing.TB, ext string) (string, []byte) {
	t.Helper()
	filename := p.Name + "-" + p.Version + ext
	switch ext {
	case ".tar.gz", ".tgz":
		return filename, Gzip(t, Tar(t, p.SdistFiles()...))
	case ".tar.bz2":
		return filename, Bzip2(t, Tar(t, p.SdistFiles()...))
	case ".tar.xz":
		return filename, XZ(t, Tar(t, p.SdistFiles()...))
	case ".tar":
		return filename, Tar(t, p.SdistFiles()...)
	case ".zip":
		return filename, Zip(t, p.SdistFiles()...)
	case ".egg":
		return p.escapedName() + "-" + p.Version + "-py3.8.egg", Zip(t,
			File{Name: "EGG-INFO/PKG-INFO", Content: p.PKGInfo()},
			File{Name: p.escapedName() + "/__init__.py", Content: nil})
	default:
		t.Fatalf("unsupported sdist extension: %q", ext)
		return "", nil
	}
}

// CondaPackage describes a fake conda package.
type CondaPackage struct {
	Name        string
	Version     string
	Build       string
	BuildNumber int
	Subdir      string
	Depends     []string
	License     string
}

// ExampleCondaPackage is the conda package that most tests upload.
func ExampleCondaPackage() CondaPackage {
	return CondaPackage{
		Name:        "example-package",
		Version:     "0.0.1",
		Build:       "0",
		BuildNumber: 0,
		Subdir:      "linux-64",
		Depends:     []string{"python >=3.6"},
		License:     "MIT",
	}
}

func (p CondaPackage) IndexJSON(t testing.TB) []byte {
	t.Helper()
	depends := p.Depends
	if depends == nil {
		depends = []string{}
	}
	data, err := json.Marshal(map[string]interface{}{
		"name":         p.Name,
		"version":      p.Version,
		"build":        p.Build,
		"build_number": p.BuildNumber,
		"subdir":       p.Subdir,
		"depends":      depends,
		"license":      p.License,
		"arch":         nil,
		"platform":     nil,
		"timestamp":    fixtureTime.UnixMilli(),
	})
	require.NoError(t, err)
	return data
}

func (p CondaPackage) basename() string {
	return p.Name + "-" + p.Version + "-" + p.Build
}

// TarBz2 returns the filename and content of a v1 ".tar.bz2" conda package.
func (p CondaPackage) TarBz2(t testing.TB) (string, []byte) {
	t.Helper()
	return p.basename() + ".tar.bz2", Bzip2(t, Tar(t,
		File{Name: "info/index.json", Content: p.IndexJSON(t)},
		File{Name: "info/files", Content: []byte("lib/example.py\n")},
		File{Name: "lib/example.py", Content: []byte("print('hello')\n")},
	))
}

// Conda returns the filename and content of a v2 ".conda" package.
func (p CondaPackage) Conda(t testing.TB) (string, []byte) {
	t.Helper()
	return p.basename() + ".conda", Zip(t,
		File{Name: "metadata.json", Content: []byte(`{"conda_pkg_format_version": 2}`)},
		File{Name: "pkg-" + p.basename() + ".tar.zst", Content: Zstd(t, Tar(t,
			File{Name: "lib/example.py", Content: []byte("print('hello')\n")},
		))},
		File{Name: "info-" + p.basename() + ".tar.zst", Content: Zstd(t, Tar(t,
			File{Name: "info/index.json", Content: p.IndexJSON(t)},
			File{Name: "info/files", Content: []byte("lib/example.py\n")},
		))},
	)
}
