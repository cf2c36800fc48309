// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"fmt"
	"strings"

	"github.com/datawire/pkgrepo/pkg/conda"
	"github.com/datawire/pkgrepo/pkg/python/pep440"
	"github.com/datawire/pkgrepo/pkg/python/pep503"
	"github.com/datawire/pkgrepo/pkg/python/pypa/bdist"
	"github.com/datawire/pkgrepo/pkg/python/pypa/sdist"
	"github.com/datawire/pkgrepo/pkg/repoerr"
)

// Declared is the metadata that an uploader claims for a file.  Empty fields are not checked.
type Declared struct {
	Name    string
	Version string
}

// Validate checks the ecosystem's naming rules against the metadata, and checks that the filename
// agrees with the metadata.  Any violation is repoerr.ErrMalformedArchive.
func Validate(md *PackageMetadata, filename string) error {
	var err error
	switch md.Ecosystem {
	case PyPI:
		err = validatePyPI(md, filename)
	case Conda:
		err = validateConda(md, filename)
	default:
		err = fmt.Errorf("unknown ecosystem: %q", md.Ecosystem)
	}
	if err != nil {
		return fmt.Errorf("metadata.Validate: %q: %w", filename, repoerr.Wrap(repoerr.ErrMalformedArchive, err))
	}
	return nil
}

func validatePyPI(md *PackageMetadata, filename string) error {
	if err := pep503.ValidName(md.Name); err != nil {
		return err
	}
	ver, err := pep440.ParseVersion(md.Version)
	if err != nil {
		return fmt.Errorf("invalid version: %w", err)
	}
	if _, err := md.RequiresPythonPredicate(); err != nil {
		return fmt.Errorf("invalid Requires-Python: %w", err)
	}

	var fileDist string
	var fileVer pep440.Version
	switch md.Flavor {
	case FlavorWheel:
		data, err := bdist.ParseFilename(filename)
		if err != nil {
			return err
		}
		fileDist, fileVer = data.Distribution, data.Version
	case FlavorSdist:
		data, err := sdist.ParseFilename(filename)
		if err != nil {
			return err
		}
		fileDist, fileVer = data.Distribution, data.Version
	default:
		return fmt.Errorf("flavor %q is not a %s flavor", md.Flavor, md.Ecosystem)
	}
	if pep503.Normalize(fileDist) != pep503.Normalize(md.Name) {
		return fmt.Errorf("filename names distribution %q but metadata names %q", fileDist, md.Name)
	}
	if fileVer.Cmp(*ver) != 0 {
		return fmt.Errorf("filename has version %q but metadata has version %q", fileVer.String(), md.Version)
	}
	return nil
}

func validateConda(md *PackageMetadata, filename string) error {
	if err := conda.ValidName(md.Name); err != nil {
		return err
	}
	if strings.Contains(md.Version, "-") {
		return fmt.Errorf("invalid version: %q: may not contain %q", md.Version, "-")
	}
	if strings.Contains(md.Build, "-") {
		return fmt.Errorf("invalid build string: %q: may not contain %q", md.Build, "-")
	}
	data, err := conda.ParseFilename(filename)
	if err != nil {
		return err
	}
	if data.Name != md.Name || data.Version != md.Version || data.Build != md.Build {
		return fmt.Errorf("filename does not match index.json: expected %q",
			conda.FileNameData{
				Name:      md.Name,
				Version:   md.Version,
				Build:     md.Build,
				Extension: data.Extension,
			}.String())
	}
	return nil
}

// Check returns an error if the declared name or version disagree with the extracted metadata.
// Names are compared after normalization, and PyPI versions are compared as PEP 440 versions.
func (d Declared) Check(md *PackageMetadata) error {
	if d.Name != "" && md.Ecosystem.NormalizeName(d.Name) != md.Ecosystem.NormalizeName(md.Name) {
		return repoerr.Wrap(repoerr.ErrMalformedArchive,
			fmt.Errorf("declared name %q does not match archive name %q", d.Name, md.Name))
	}
	if d.Version != "" && !md.Ecosystem.SameVersion(d.Version, md.Version) {
		return repoerr.Wrap(repoerr.ErrMalformedArchive,
			fmt.Errorf("declared version %q does not match archive version %q", d.Version, md.Version))
	}
	return nil
}
