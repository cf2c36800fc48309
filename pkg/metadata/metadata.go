// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package metadata extracts a normalized package record from an uploaded archive, for any of the
// supported archive flavors.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/datawire/pkgrepo/pkg/conda"
	"github.com/datawire/pkgrepo/pkg/python/pep345"
	"github.com/datawire/pkgrepo/pkg/python/pypa/bdist"
	"github.com/datawire/pkgrepo/pkg/python/pypa/sdist"
	"github.com/datawire/pkgrepo/pkg/repoerr"
)

type Flavor string

const (
	FlavorWheel Flavor = "bdist_wheel"
	FlavorSdist Flavor = "sdist"
	FlavorConda Flavor = "conda"
)

// PackageMetadata is the record extracted from an archive.  Fields that a flavor doesn't have are
// left empty.
type PackageMetadata struct {
	Ecosystem Ecosystem `cbor:"ecosystem" yaml:"ecosystem"`
	Flavor    Flavor    `cbor:"flavor" yaml:"flavor"`

	Name           string   `cbor:"name" yaml:"name"`
	Version        string   `cbor:"version" yaml:"version"`
	Author         string   `cbor:"author,omitempty" yaml:"author,omitempty"`
	AuthorEmail    string   `cbor:"author_email,omitempty" yaml:"author_email,omitempty"`
	Summary        string   `cbor:"summary,omitempty" yaml:"summary,omitempty"`
	Description    string   `cbor:"description,omitempty" yaml:"description,omitempty"`
	License        string   `cbor:"license,omitempty" yaml:"license,omitempty"`
	HomePage       string   `cbor:"home_page,omitempty" yaml:"home_page,omitempty"`
	Classifiers    []string `cbor:"classifiers,omitempty" yaml:"classifiers,omitempty"`
	Requires       []string `cbor:"requires,omitempty" yaml:"requires,omitempty"`
	RequiresPython string   `cbor:"requires_python,omitempty" yaml:"requires_python,omitempty"`

	// Wheels only.
	Tags []string `cbor:"tags,omitempty" yaml:"tags,omitempty"`

	// Conda only.
	Build       string `cbor:"build,omitempty" yaml:"build,omitempty"`
	BuildNumber int    `cbor:"build_number,omitempty" yaml:"build_number,omitempty"`
	Subdir      string `cbor:"subdir,omitempty" yaml:"subdir,omitempty"`
	IndexJSON   []byte `cbor:"index_json,omitempty" yaml:"-"`
}

// RequiresPythonPredicate parses RequiresPython.
func (md *PackageMetadata) RequiresPythonPredicate() (pep345.Requirement, error) {
	return pep345.ParseRequiresPython(md.RequiresPython)
}

func fromPEP345(eco Ecosystem, flavor Flavor, in *pep345.Metadata) *PackageMetadata {
	return &PackageMetadata{
		Ecosystem:      eco,
		Flavor:         flavor,
		Name:           in.Name,
		Version:        in.Version,
		Author:         in.Author,
		AuthorEmail:    in.AuthorEmail,
		Summary:        in.Summary,
		Description:    in.Description,
		License:        in.License,
		HomePage:       in.HomePage,
		Classifiers:    in.Classifiers,
		Requires:       in.RequiresDist,
		RequiresPython: in.RequiresPython,
	}
}

// classify maps a reader error to MissingMetadata if it is one of the readers' "no descriptor"
// errors, and to MalformedArchive otherwise.
func classify(err error) error {
	for _, missing := range []error{
		bdist.ErrMissingMetadata,
		sdist.ErrMissingMetadata,
		conda.ErrMissingIndex,
		conda.ErrMissingField,
	} {
		if errors.Is(err, missing) {
			return repoerr.Wrap(repoerr.ErrMissingMetadata, err)
		}
	}
	return repoerr.Wrap(repoerr.ErrMalformedArchive, err)
}

// Extract reads the package descriptor out of an archive.  It fails with
// repoerr.ErrMalformedArchive if the archive can't be read, and with repoerr.ErrMissingMetadata
// if there is no descriptor or the descriptor lacks a name or version.
func Extract(ctx context.Context, eco Ecosystem, filename string, content []byte) (*PackageMetadata, error) {
	md, err := extract(ctx, eco, filename, content)
	if err != nil {
		return nil, fmt.Errorf("metadata.Extract: %w", err)
	}
	var missing []string
	if md.Name == "" {
		missing = append(missing, "name")
	}
	if md.Version == "" {
		missing = append(missing, "version")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("metadata.Extract: %q: %w", filename,
			repoerr.Wrap(repoerr.ErrMissingMetadata, fmt.Errorf("required fields absent: %s",
				strings.Join(missing, ", "))))
	}
	return md, nil
}

func extract(ctx context.Context, eco Ecosystem, filename string, content []byte) (*PackageMetadata, error) {
	switch eco {
	case PyPI:
		if strings.HasSuffix(filename, ".whl") {
			wheel, err := bdist.ReadWheel(ctx, filename, content)
			if err != nil {
				return nil, classify(err)
			}
			md := fromPEP345(eco, FlavorWheel, &wheel.Metadata)
			for _, tag := range wheel.Tags {
				md.Tags = append(md.Tags, tag.String())
			}
			return md, nil
		}
		if _, _, ok := sdist.SplitExtension(filename); ok {
			pkgInfo, err := sdist.ReadMetadata(ctx, filename, content)
			if err != nil {
				return nil, classify(err)
			}
			return fromPEP345(eco, FlavorSdist, pkgInfo), nil
		}
		return nil, repoerr.Wrap(repoerr.ErrMalformedArchive,
			fmt.Errorf("unsupported file type for %s: %q", eco, filename))
	case Conda:
		if _, _, ok := conda.SplitExtension(filename); !ok {
			return nil, repoerr.Wrap(repoerr.ErrMalformedArchive,
				fmt.Errorf("unsupported file type for %s: %q", eco, filename))
		}
		index, err := conda.ReadIndex(ctx, filename, content)
		if err != nil {
			return nil, classify(err)
		}
		return &PackageMetadata{
			Ecosystem:   eco,
			Flavor:      FlavorConda,
			Name:        index.Name,
			Version:     index.Version,
			License:     index.License,
			Requires:    index.Depends,
			Build:       index.Build,
			BuildNumber: index.BuildNumber,
			Subdir:      index.Subdir,
			IndexJSON:   index.Raw,
		}, nil
	default:
		return nil, fmt.Errorf("unknown ecosystem: %q", eco)
	}
}
