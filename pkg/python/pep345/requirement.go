// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep345

import (
	"fmt"
	"strings"

	"github.com/datawire/pkgrepo/pkg/python/pep440"
)

// A Requirement is a parsed "Requires-Python" value.
type Requirement interface {
	Match(pep440.Version) bool
	String() string
}

var (
	_ Requirement = pep440.Specifier(nil)
	_ Requirement = VersionSpecifier(nil)
)

// ParseRequiresPython parses a "Requires-Python" value.  The PEP 440 specifier grammar is tried
// first; if that fails, the legacy PEP 345 grammar (which permits bare versions like "3") is tried.
// An empty string is a requirement that every version satisfies.
func ParseRequiresPython(str string) (Requirement, error) {
	str = strings.TrimSpace(str)
	spec, err := pep440.ParseSpecifier(str)
	if err == nil {
		return spec, nil
	}
	if strings.Contains(str, "===") {
		return nil, fmt.Errorf("pep345.ParseRequiresPython: %w", err)
	}
	legacy, legacyErr := ParseVersionSpecifier(str)
	if legacyErr != nil {
		return nil, fmt.Errorf("pep345.ParseRequiresPython: %w", err)
	}
	return legacy, nil
}

// HaveRequiredPython returns whether the `requirement` from the "Requires-Python" field is
// satisfied.
func HaveRequiredPython(have pep440.Version, requirement string) (bool, error) {
	req, err := ParseRequiresPython(requirement)
	if err != nil {
		return false, err
	}
	return req.Match(have), nil
}
