// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package sdist implements reading Python source distributions (and, since they carry the same
// PKG-INFO, legacy .egg files).
//
// https://packaging.python.org/specifications/source-distribution-format/
package sdist

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/datawire/dlib/dlog"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"

	"github.com/datawire/pkgrepo/pkg/python/pep345"
	"github.com/datawire/pkgrepo/pkg/python/pep440"
)

// ErrMissingMetadata is returned (wrapped) when the archive is readable but has no PKG-INFO.
var ErrMissingMetadata = errors.New("missing PKG-INFO")

// maxMetadataSize bounds how much of a PKG-INFO file is read.
const maxMetadataSize = 16 << 20

// Extensions lists the recognized file extensions, longest first so that they can be matched in
// order.
//
//nolint:gochecknoglobals // Would be 'const'.
var Extensions = []string{".tar.bz2", ".tar.gz", ".tar.xz", ".tgz", ".tar", ".zip", ".egg"}

// SplitExtension splits a filename into its base and one of the Extensions.
func SplitExtension(filename string) (base, ext string, ok bool) {
	for _, ext := range Extensions {
		if strings.HasSuffix(filename, ext) && len(filename) > len(ext) {
			return strings.TrimSuffix(filename, ext), ext, true
		}
	}
	return filename, "", false
}

// FileNameData is the information encoded in a source distribution filename,
// "{name}-{version}{ext}", or for eggs "{name}-{version}(-{pyver}(-{platform})?)?.egg".
type FileNameData struct {
	Distribution string
	Version      pep440.Version
	Extension    string
}

// ParseFilename splits the filename at the first "-" that is followed by a valid version.  Since
// neither a normalized version nor an escaped egg name contain "-", this is unambiguous for
// well-behaved uploads, and does the right thing for names such as "py-3to2-1.0.tar.gz".
func ParseFilename(filename string) (*FileNameData, error) {
	base, ext, ok := SplitExtension(filename)
	if !ok {
		return nil, fmt.Errorf("invalid sdist filename: %q: unsupported extension", filename)
	}
	if ext == ".egg" {
		parts := strings.Split(base, "-")
		if len(parts) < 2 || len(parts) > 4 || parts[0] == "" {
			return nil, fmt.Errorf("invalid egg filename: %q", filename)
		}
		ver, err := pep440.ParseVersion(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid egg filename: %q: %w", filename, err)
		}
		return &FileNameData{
			Distribution: parts[0],
			Version:      *ver,
			Extension:    ext,
		}, nil
	}
	for i := 1; i < len(base); i++ {
		if base[i] != '-' {
			continue
		}
		ver, err := pep440.ParseVersion(base[i+1:])
		if err != nil {
			continue
		}
		return &FileNameData{
			Distribution: base[:i],
			Version:      *ver,
			Extension:    ext,
		}, nil
	}
	return nil, fmt.Errorf("invalid sdist filename: %q: no version", filename)
}

// ReadMetadata reads the PKG-INFO from a source distribution.  If there are several (setuptools
// puts a copy in the .egg-info directory) the one closest to the root of the archive wins.
func ReadMetadata(ctx context.Context, filename string, content []byte) (*pep345.Metadata, error) {
	_, ext, ok := SplitExtension(filename)
	if !ok {
		return nil, fmt.Errorf("sdist.ReadMetadata: unsupported file extension: %q", filename)
	}

	var pkgInfo []byte
	var err error
	switch ext {
	case ".zip", ".egg":
		pkgInfo, err = findInZip(content)
	default:
		pkgInfo, err = findInTar(ext, content)
	}
	if err != nil {
		return nil, fmt.Errorf("sdist.ReadMetadata: %q: %w", filename, err)
	}
	dlog.Debugf(ctx, "sdist %q: found PKG-INFO (%d bytes)", filename, len(pkgInfo))

	md, err := pep345.ParseMetadata(bytes.NewReader(pkgInfo))
	if err != nil {
		return nil, fmt.Errorf("sdist.ReadMetadata: %q: PKG-INFO: %w", filename, err)
	}
	return md, nil
}

// candidate tracks the best PKG-INFO seen so far.
type candidate struct {
	depth   int
	content []byte
}

func (c *candidate) consider(name string, open func() (io.Reader, error)) error {
	name = path.Clean(name)
	if path.Base(name) != "PKG-INFO" {
		return nil
	}
	depth := strings.Count(name, "/")
	if c.content != nil && depth >= c.depth {
		return nil
	}
	reader, err := open()
	if err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(reader, maxMetadataSize))
	if err != nil {
		return err
	}
	c.depth = depth
	c.content = data
	return nil
}

func (c *candidate) result() ([]byte, error) {
	if c.content == nil {
		return nil, ErrMissingMetadata
	}
	return c.content, nil
}

func decompressor(ext string, content []byte) (io.Reader, error) {
	raw := bytes.NewReader(content)
	switch ext {
	case ".tar.gz", ".tgz":
		return gzip.NewReader(raw)
	case ".tar.bz2":
		return bzip2.NewReader(raw, nil)
	case ".tar.xz":
		return xz.NewReader(raw)
	case ".tar":
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported tar compression: %q", ext)
	}
}

func findInTar(ext string, content []byte) ([]byte, error) {
	stream, err := decompressor(ext, content)
	if err != nil {
		return nil, err
	}
	var best candidate
	tarReader := tar.NewReader(stream)
	for {
		header, err := tarReader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if err := best.consider(header.Name, func() (io.Reader, error) {
			return tarReader, nil
		}); err != nil {
			return nil, err
		}
	}
	return best.result()
}

func findInZip(content []byte) ([]byte, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	var best candidate
	for _, file := range zipReader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		var rc io.ReadCloser
		err := best.consider(file.Name, func() (io.Reader, error) {
			var err error
			rc, err = file.Open()
			return rc, err
		})
		if rc != nil {
			_ = rc.Close()
		}
		if err != nil {
			return nil, err
		}
	}
	return best.result()
}
