// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package conda

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/datawire/dlib/dlog"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrMissingIndex is returned (wrapped) when the package is a readable archive but has no
// info/index.json.
var ErrMissingIndex = errors.New("missing info/index.json")

// ErrMissingField is returned (wrapped) when index.json lacks "name" or "version".
var ErrMissingField = errors.New("missing required field")

const maxIndexSize = 16 << 20

// Index is the parsed "info/index.json".  Raw keeps the exact bytes, since repodata.json entries
// carry every key, including ones that are not modeled here.
type Index struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Build       string   `json:"build"`
	BuildNumber int      `json:"build_number"`
	Depends     []string `json:"depends"`
	License     string   `json:"license,omitempty"`
	Subdir      string   `json:"subdir,omitempty"`
	Timestamp   int64    `json:"timestamp,omitempty"`

	Raw json.RawMessage `json:"-"`
}

const indexSchemaURL = "https://schemas.datawire.io/pkgrepo/conda-index.json"

const indexSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "version", "build", "build_number"],
  "properties": {
    "name":         {"type": "string", "pattern": "^[a-z0-9_.-]+$"},
    "version":      {"type": "string", "minLength": 1, "pattern": "^[^-]+$"},
    "build":        {"type": "string", "pattern": "^[^-]*$"},
    "build_number": {"type": "integer", "minimum": 0},
    "depends":      {"type": "array", "items": {"type": "string"}},
    "constrains":   {"type": "array", "items": {"type": "string"}},
    "license":      {"type": ["string", "null"]},
    "subdir":       {"type": "string"},
    "arch":         {"type": ["string", "null"]},
    "platform":     {"type": ["string", "null"]},
    "noarch":       {"type": ["string", "boolean", "null"]},
    "timestamp":    {"type": "integer", "minimum": 0}
  }
}`

//nolint:gochecknoglobals // Lazily compiled.
var (
	compiledIndexSchema     *jsonschema.Schema
	compiledIndexSchemaErr  error
	compiledIndexSchemaOnce sync.Once
)

func getIndexSchema() (*jsonschema.Schema, error) {
	compiledIndexSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(indexSchema))
		if err != nil {
			compiledIndexSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(indexSchemaURL, doc); err != nil {
			compiledIndexSchemaErr = err
			return
		}
		compiledIndexSchema, compiledIndexSchemaErr = compiler.Compile(indexSchemaURL)
	})
	return compiledIndexSchema, compiledIndexSchemaErr
}

// ParseIndex validates and parses the content of an "info/index.json" file.
func ParseIndex(raw []byte) (*Index, error) {
	schema, err := getIndexSchema()
	if err != nil {
		return nil, fmt.Errorf("conda.ParseIndex: compile schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("conda.ParseIndex: %w", err)
	}
	if obj, ok := inst.(map[string]interface{}); ok {
		for _, key := range []string{"name", "version"} {
			switch val := obj[key].(type) {
			case nil:
				return nil, fmt.Errorf("conda.ParseIndex: %w: %q", ErrMissingField, key)
			case string:
				if val == "" {
					return nil, fmt.Errorf("conda.ParseIndex: %w: %q", ErrMissingField, key)
				}
			}
		}
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("conda.ParseIndex: %w", err)
	}
	var index Index
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("conda.ParseIndex: %w", err)
	}
	index.Raw = append(json.RawMessage(nil), raw...)
	return &index, nil
}

// ReadIndex extracts and parses "info/index.json" from a ".tar.bz2" or ".conda" package.
func ReadIndex(ctx context.Context, filename string, content []byte) (*Index, error) {
	_, ext, ok := SplitExtension(filename)
	if !ok {
		return nil, fmt.Errorf("conda.ReadIndex: unsupported file extension: %q", filename)
	}
	var raw []byte
	var err error
	switch ext {
	case ExtTarBz2:
		var stream io.Reader
		stream, err = bzip2.NewReader(bytes.NewReader(content), nil)
		if err == nil {
			raw, err = findIndexInTar(stream)
		}
	case ExtConda:
		raw, err = findIndexInConda(content)
	}
	if err != nil {
		return nil, fmt.Errorf("conda.ReadIndex: %q: %w", filename, err)
	}
	dlog.Debugf(ctx, "conda package %q: found info/index.json (%d bytes)", filename, len(raw))
	return ParseIndex(raw)
}

func findIndexInTar(stream io.Reader) ([]byte, error) {
	tarReader := tar.NewReader(stream)
	for {
		header, err := tarReader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrMissingIndex
			}
			return nil, err
		}
		if header.Typeflag == tar.TypeReg && path.Clean(header.Name) == "info/index.json" {
			return io.ReadAll(io.LimitReader(tarReader, maxIndexSize))
		}
	}
}

// findIndexInConda looks in the "info-*.tar.zst" member of a v2 package.
func findIndexInConda(content []byte) ([]byte, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	for _, file := range zipReader.File {
		if !(strings.HasPrefix(file.Name, "info-") && strings.HasSuffix(file.Name, ".tar.zst")) {
			continue
		}
		compressed, err := func() ([]byte, error) {
			reader, err := file.Open()
			if err != nil {
				return nil, err
			}
			defer reader.Close()
			return io.ReadAll(reader)
		}()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.Name, err)
		}
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		infoTar, err := decoder.DecodeAll(compressed, nil)
		decoder.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.Name, err)
		}
		return findIndexInTar(bytes.NewReader(infoTar))
	}
	return nil, fmt.Errorf("%w: no info-*.tar.zst member", ErrMissingIndex)
}
