// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"fmt"

	"github.com/datawire/pkgrepo/pkg/conda"
	"github.com/datawire/pkgrepo/pkg/python/pep440"
	"github.com/datawire/pkgrepo/pkg/python/pep503"
)

// Ecosystem selects the naming, ordering, and archive rules for a repository.
type Ecosystem string

const (
	PyPI  Ecosystem = "pypi"
	Conda Ecosystem = "conda"
)

//nolint:gochecknoglobals // Would be 'const'.
var Ecosystems = []Ecosystem{PyPI, Conda}

func ParseEcosystem(str string) (Ecosystem, error) {
	for _, eco := range Ecosystems {
		if string(eco) == str {
			return eco, nil
		}
	}
	return "", fmt.Errorf("unknown ecosystem: %q (valid: %q)", str, Ecosystems)
}

func (eco Ecosystem) String() string {
	return string(eco)
}

// NormalizeName folds a package name to its canonical form; two names that normalize equal are
// the same package.
func (eco Ecosystem) NormalizeName(name string) string {
	switch eco {
	case PyPI:
		return pep503.Normalize(name)
	case Conda:
		return conda.Normalize(name)
	default:
		return name
	}
}

// CompareVersions orders two version strings.  Both ecosystems use PEP 440 ordering; strings
// that don't parse sort after ones that do.
func (eco Ecosystem) CompareVersions(a, b string) int {
	return pep440.CompareStrings(a, b)
}

// SameVersion returns whether two version strings name the same version.  PyPI versions are
// compared as PEP 440 versions, so "1.0" and "1.0.0" are the same; conda versions must be
// identical.
func (eco Ecosystem) SameVersion(a, b string) bool {
	if eco == PyPI {
		aVer, aErr := pep440.ParseVersion(a)
		bVer, bErr := pep440.ParseVersion(b)
		if aErr == nil && bErr == nil {
			return aVer.Cmp(*bVer) == 0
		}
	}
	return a == b
}

// NormalizeVersion returns the canonical spelling of a version.  PyPI versions that parse are
// put in PEP 440 normal form; anything else is returned unchanged.
func (eco Ecosystem) NormalizeVersion(version string) string {
	if eco == PyPI {
		if ver, err := pep440.ParseVersion(version); err == nil {
			return ver.String()
		}
	}
	return version
}
