// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"net/textproto"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"
	"github.com/klauspost/compress/zip"

	"github.com/datawire/pkgrepo/pkg/python/pep345"
	"github.com/datawire/pkgrepo/pkg/python/pep425"
	"github.com/datawire/pkgrepo/pkg/python/pep440"
)

// ErrMissingMetadata is returned (wrapped) when a wheel is a well-formed archive but has no
// .dist-info/METADATA.
var ErrMissingMetadata = errors.New("missing wheel metadata")

//nolint:gochecknoglobals // Would be 'const'.
var specVersion, _ = pep440.ParseVersion("1.0")

// Wheel is everything about a wheel file that a package index needs.
type Wheel struct {
	FileNameData
	WheelVersion pep440.Version
	Generator    string
	// Tags is the expanded list of compatibility tags from the WHEEL file.
	Tags     []pep425.Tag
	Metadata pep345.Metadata
}

type wheel struct {
	zip *zip.Reader

	cachedDistInfoDir string
}

func (wh *wheel) Open(filename string) (io.ReadCloser, error) {
	filename = path.Clean(filename)
	for _, file := range wh.zip.File {
		if path.Clean(file.Name) == filename {
			return file.Open()
		}
	}
	return nil, fmt.Errorf("%w in wheel zip archive: %q", fs.ErrNotExist, filename)
}

// ReadWheel parses the filename of a wheel, verifies the archive against its RECORD, and reads
// the WHEEL and METADATA files.
func ReadWheel(ctx context.Context, filename string, content []byte) (*Wheel, error) {
	nameData, err := ParseFilename(filename)
	if err != nil {
		return nil, fmt.Errorf("bdist.ReadWheel: %w", err)
	}

	zipReader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("bdist.ReadWheel: open wheel: %w", err)
	}
	wh := &wheel{ //nolint:varnamelen // same as receiver name
		zip: zipReader,

		cachedDistInfoDir: "", // don't know it yet
	}

	if err := wh.integrityCheck(); err != nil {
		return nil, fmt.Errorf("bdist.ReadWheel: wheel integrity: %w", err)
	}

	ret := &Wheel{
		FileNameData: *nameData,
	}

	header, err := wh.parseDistInfoWheel()
	if err != nil {
		return nil, fmt.Errorf("bdist.ReadWheel: %w", err)
	}
	wheelVersion, err := pep440.ParseVersion(header.Get("Wheel-Version"))
	if err != nil {
		return nil, fmt.Errorf("bdist.ReadWheel: WHEEL: Wheel-Version: %w", err)
	}
	// A reader should warn if Wheel-Version is greater than the version it supports, and must
	// fail if Wheel-Version has a greater major version than the version it supports.
	if wheelVersion.Major() > specVersion.Major() {
		return nil, fmt.Errorf("bdist.ReadWheel: wheel file's Wheel-Version (%s) is not compatible with this reader",
			wheelVersion)
	} else if wheelVersion.Cmp(*specVersion) > 0 {
		dlog.Warnf(ctx, "wheel file %q Wheel-Version (%s) is newer than this reader",
			filename, wheelVersion)
	}
	ret.WheelVersion = *wheelVersion
	ret.Generator = header.Get("Generator")
	for _, tagStr := range header.Values("Tag") {
		tag, err := pep425.ParseTag(tagStr)
		if err != nil {
			return nil, fmt.Errorf("bdist.ReadWheel: WHEEL: %w", err)
		}
		ret.Tags = append(ret.Tags, tag.Decompress()...)
	}
	if len(ret.Tags) == 0 {
		ret.Tags = ret.CompatibilityTag.Decompress()
	}

	md, err := wh.parseDistInfoMetadata()
	if err != nil {
		return nil, fmt.Errorf("bdist.ReadWheel: %w", err)
	}
	ret.Metadata = *md

	return ret, nil
}

// distInfoDir returns the "{name}.dist-info" directory for the wheel file.
//
// This is based off of `pip/_internal/utils/wheel.py:wheel_dist_info_dir()`, since PEP 427 doesn't
// actually have much to say about resolving ambiguity.
func (wh *wheel) distInfoDir() (string, error) {
	if wh.cachedDistInfoDir != "" {
		return wh.cachedDistInfoDir, nil
	}
	infoDirs := make(map[string]struct{})
	for _, file := range wh.zip.File {
		dirname := strings.Split(path.Clean(file.FileHeader.Name), "/")[0]
		if !strings.HasSuffix(dirname, ".dist-info") {
			continue
		}
		infoDirs[dirname] = struct{}{}
	}

	switch len(infoDirs) {
	case 0:
		return "", fmt.Errorf("%w: .dist-info directory not found", ErrMissingMetadata)
	case 1:
		for infoDir := range infoDirs {
			wh.cachedDistInfoDir = infoDir
		}
		return wh.cachedDistInfoDir, nil
	default:
		list := make([]string, 0, len(infoDirs))
		for dir := range infoDirs {
			list = append(list, dir)
		}
		sort.Strings(list)
		return "", fmt.Errorf("multiple .dist-info directories found: %v", list)
	}
}

func (wh *wheel) readHeaderFile(name string) (io.ReadCloser, error) {
	infoDir, err := wh.distInfoDir()
	if err != nil {
		return nil, err
	}
	file, err := wh.Open(path.Join(infoDir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %v", ErrMissingMetadata, err)
		}
		return nil, err
	}
	return file, nil
}

// parseDistInfoWheel reads "{distribution}-{version}.dist-info/WHEEL", which is metadata about
// the archive itself in the same basic key: value format as METADATA:
//
//	Wheel-Version: 1.0
//	Generator: bdist_wheel 1.0
//	Root-Is-Purelib: true
//	Tag: py2-none-any
//	Tag: py3-none-any
//	Build: 1
func (wh *wheel) parseDistInfoWheel() (textproto.MIMEHeader, error) {
	wheelFile, err := wh.readHeaderFile("WHEEL")
	if err != nil {
		return nil, err
	}
	defer wheelFile.Close()

	// textproto.Reader.ReadMIMEHeader() expects a blank line to mark the end of the header and
	// the start of the body.  But in WHEEL there is no body, so the blank line should be
	// optional.
	kvReader := textproto.NewReader(bufio.NewReader(io.MultiReader(
		wheelFile,
		strings.NewReader("\r\n\r\n\r\n"),
	)))
	header, err := kvReader.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("WHEEL: %w", err)
	}
	return header, nil
}

func (wh *wheel) parseDistInfoMetadata() (*pep345.Metadata, error) {
	mdFile, err := wh.readHeaderFile("METADATA")
	if err != nil {
		return nil, err
	}
	defer mdFile.Close()
	md, err := pep345.ParseMetadata(mdFile)
	if err != nil {
		return nil, fmt.Errorf("METADATA: %w", err)
	}
	return md, nil
}

// strongHashes are the RECORD hash algorithms that are accepted; "md5 and sha1 are not permitted,
// as signed wheel files rely on the strong hashes in RECORD to validate the integrity of the
// archive".
//
//nolint:gochecknoglobals // Would be 'const'.
var strongHashes = map[string]func() hash.Hash{
	// The spec is an open-ended list of hashes, so here's what PIP 20.3.4
	// pip/_internal/utils/hashes.py includes:
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// integrityCheck verifies the hashes and sizes in RECORD against the archive contents.  Apart from
// RECORD and its signatures, every file in the archive must be both mentioned and correctly hashed
// in RECORD.
func (wh *wheel) integrityCheck() error {
	distInfoDir, err := wh.distInfoDir()
	if err != nil {
		return err
	}

	todo := make(map[string]struct{})
	for _, file := range wh.zip.File {
		if file.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(file.Name)
		switch name {
		case path.Join(distInfoDir, "RECORD.jws"), path.Join(distInfoDir, "RECORD.p7s"):
			// signatures are not mentioned in RECORD
		default:
			todo[name] = struct{}{}
		}
	}

	recordName := path.Join(distInfoDir, "RECORD")
	recordData, err := func() ([][]string, error) {
		reader, err := wh.Open(recordName)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = reader.Close()
		}()
		data, err := csv.NewReader(reader).ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", recordName, err)
		}
		return data, nil
	}()
	if err != nil {
		return err
	}

	checkFile := func(filename, algo string) (hashsum string, size int64, err error) {
		reader, err := wh.Open(filename)
		if err != nil {
			return "", 0, err
		}
		defer func() {
			_ = reader.Close()
		}()

		var (
			hasher hash.Hash
			dst    = io.Discard
		)
		if algo != "" {
			newHasher, ok := strongHashes[algo]
			if !ok {
				return "", 0, fmt.Errorf("unsupported hash algorithm: %q", algo)
			}
			hasher = newHasher()
			dst = hasher
		}

		size, err = io.Copy(dst, reader)
		if err != nil {
			return "", 0, err
		}

		if hasher != nil {
			hashsum = algo + "=" + base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))
		}

		return hashsum, size, nil
	}

	var errs derror.MultiError
	for i, row := range recordData {
		if len(row) != 3 {
			errs = append(errs, fmt.Errorf("RECORD row %d: does not have 3 columns: %q", i, row))
			continue
		}
		name, recHashsum, recSize := path.Clean(row[0]), row[1], row[2]
		delete(todo, name)
		if name == recordName {
			continue
		}
		if recHashsum == "" || recSize == "" {
			errs = append(errs, fmt.Errorf("RECORD row %d: missing hash or size: %q", i, row))
		}

		algo := strings.SplitN(recHashsum, "=", 2)[0]
		actHashsum, actSize, err := checkFile(name, algo)
		if err != nil {
			errs = append(errs, fmt.Errorf("RECORD row %d: file %q: %w", i, name, err))
			continue
		}
		if recHashsum != "" && actHashsum != recHashsum {
			errs = append(errs, fmt.Errorf("RECORD row %d: file %q: checksum mismatch: RECORD=%q actual=%q",
				i, name, recHashsum, actHashsum))
		}
		if recSize != "" && strconv.FormatInt(actSize, 10) != recSize {
			errs = append(errs, fmt.Errorf("RECORD row %d: file %q: size mismatch: RECORD=%s actual=%d",
				i, name, recSize, actSize))
		}
	}

	if len(todo) > 0 {
		todoNames := make([]string, 0, len(todo))
		for name := range todo {
			todoNames = append(todoNames, name)
		}
		sort.Strings(todoNames)
		errs = append(errs, fmt.Errorf("files not mentioned in RECORD: %q", todoNames))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
