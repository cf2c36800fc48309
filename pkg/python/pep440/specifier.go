// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440

import (
	"fmt"
	"strings"
)

// Specifier is a comma-separated conjunction of version clauses, such as ">=3.5, <4".  The zero
// (empty) Specifier matches every version.
type Specifier []SpecifierClause

// ParseSpecifier parses a specifier string.  Empty clauses are ignored.
func ParseSpecifier(str string) (Specifier, error) {
	clauseStrs := strings.FieldsFunc(str, func(r rune) bool { return r == ',' })
	ret := make(Specifier, 0, len(clauseStrs))
	for _, clauseStr := range clauseStrs {
		clauseStr = strings.TrimSpace(clauseStr)
		if clauseStr == "" {
			continue
		}
		clause, err := parseSpecifierClause(clauseStr)
		if err != nil {
			return nil, fmt.Errorf("pep440.ParseSpecifier: %w", err)
		}
		ret = append(ret, clause)
	}
	return ret, nil
}

func (spec Specifier) String() string {
	clauses := make([]string, 0, len(spec))
	for _, clause := range spec {
		clauses = append(clauses, clause.String())
	}
	return strings.Join(clauses, ",")
}

// Match returns whether ver satisfies every clause.
func (spec Specifier) Match(ver Version) bool {
	for _, clause := range spec {
		if !clause.Match(ver) {
			return false
		}
	}
	return true
}

type CmpOp int

const (
	CmpOpCompatible    CmpOp = iota // ~=
	CmpOpStrictMatch                // ==
	CmpOpPrefixMatch                // ==X.*
	CmpOpStrictExclude              // !=
	CmpOpPrefixExclude              // !=X.*
	CmpOpLE                         // <=
	CmpOpGE                         // >=
	CmpOpLT                         // <
	CmpOpGT                         // >
	_CmpOpEnd
)

type cmpOpInfo struct {
	name  string
	op    string
	match func(spec, ver Version) bool
}

//nolint:gochecknoglobals // Would be 'const'.
var cmpOps = map[CmpOp]cmpOpInfo{
	CmpOpCompatible:    {"~=", "~=", matchCompatible},
	CmpOpStrictMatch:   {"strict ==", "==", matchStrictMatch},
	CmpOpPrefixMatch:   {"prefix ==", "==", matchPrefixMatch},
	CmpOpStrictExclude: {"strict !=", "!=", matchStrictExclude},
	CmpOpPrefixExclude: {"prefix !=", "!=", matchPrefixExclude},
	CmpOpLE:            {"<=", "<=", matchLE},
	CmpOpGE:            {">=", ">=", matchGE},
	CmpOpLT:            {"<", "<", matchLT},
	CmpOpGT:            {">", ">", matchGT},
}

func (op CmpOp) info() cmpOpInfo {
	info, ok := cmpOps[op]
	if !ok {
		panic(fmt.Errorf("invalid CmpOp: %d", op))
	}
	return info
}

func (op CmpOp) String() string {
	return op.info().name
}

type SpecifierClause struct {
	CmpOp   CmpOp
	Version Version
}

func parseSpecifierClause(str string) (SpecifierClause, error) {
	var ret SpecifierClause
	str = strings.TrimSpace(str)

	minSegments := 1
	devOK := true
	localOK := false

	prefixOp := func(op CmpOp, prefix string) {
		ret.CmpOp = op
		str = str[len(prefix):]
		if strings.HasSuffix(str, ".*") {
			ret.CmpOp++ // StrictMatch->PrefixMatch, StrictExclude->PrefixExclude
			str = strings.TrimSuffix(str, ".*")
			devOK = false
		} else {
			localOK = true
		}
	}

	switch {
	case strings.HasPrefix(str, "==="):
		return ret, fmt.Errorf("specifiers with === are not supported; versions must be PEP 440 compliant")
	case strings.HasPrefix(str, "~="):
		ret.CmpOp = CmpOpCompatible
		str = str[2:]
		minSegments = 2
	case strings.HasPrefix(str, "=="):
		prefixOp(CmpOpStrictMatch, "==")
	case strings.HasPrefix(str, "!="):
		prefixOp(CmpOpStrictExclude, "!=")
	case strings.HasPrefix(str, "<="):
		ret.CmpOp = CmpOpLE
		str = str[2:]
	case strings.HasPrefix(str, ">="):
		ret.CmpOp = CmpOpGE
		str = str[2:]
	case strings.HasPrefix(str, "<"):
		ret.CmpOp = CmpOpLT
		str = str[1:]
	case strings.HasPrefix(str, ">"):
		ret.CmpOp = CmpOpGT
		str = str[1:]
	default:
		return ret, fmt.Errorf("invalid comparison operator: %q", str)
	}

	ver, err := ParseVersion(str)
	if err != nil {
		return ret, err
	}
	if len(ver.Release) < minSegments {
		return ret, fmt.Errorf("at least %d release segments required in %s specifier clauses",
			minSegments, ret.CmpOp)
	}
	if ver.Dev != nil && !devOK {
		return ret, fmt.Errorf("dev-part not permitted in %s specifier clauses", ret.CmpOp)
	}
	if len(ver.Local) > 0 && !localOK {
		return ret, fmt.Errorf("local-part not permitted in %s specifier clauses", ret.CmpOp)
	}
	ret.Version = *ver
	return ret, nil
}

func (spec SpecifierClause) String() string {
	str := spec.CmpOp.info().op + spec.Version.String()
	if spec.CmpOp == CmpOpPrefixMatch || spec.CmpOp == CmpOpPrefixExclude {
		str += ".*"
	}
	return str
}

func (spec SpecifierClause) Match(ver Version) bool {
	return spec.CmpOp.info().match(spec.Version, ver)
}

// "~=V.N" is ">=V.N, ==V.*".
func matchCompatible(spec, ver Version) bool {
	prefix := spec
	prefix.Release = prefix.Release[:len(prefix.Release)-1]
	prefix.Pre = nil
	prefix.Post = nil
	prefix.Dev = nil
	return matchGE(spec, ver) && matchPrefixMatch(prefix, ver)
}

func matchStrictMatch(spec, ver Version) bool {
	// A specifier without a local label ignores the candidate's local label.
	if len(spec.Local) == 0 {
		return spec.PublicVersion.Cmp(ver.PublicVersion) == 0
	}
	return spec.Cmp(ver) == 0
}

func matchPrefixMatch(_spec, _ver Version) bool {
	spec, ver := _spec.PublicVersion, _ver.PublicVersion

	const (
		partRel = iota
		partPre
		partPost
	)
	var terminalPart int
	switch {
	case spec.Post != nil:
		terminalPart = partPost
	case spec.Pre != nil:
		terminalPart = partPre
	default:
		terminalPart = partRel
	}

	if cmpEpoch(spec, ver) != 0 {
		return false
	}

	if terminalPart == partRel && len(ver.Release) > len(spec.Release) {
		ver.Release = ver.Release[:len(spec.Release)]
	}
	if cmpRelease(spec, ver) != 0 {
		return false
	}
	if terminalPart == partRel {
		return true
	}

	if (ver.Pre == nil) != (spec.Pre == nil) {
		return false
	} else if spec.Pre != nil && (preReleaseOrder[ver.Pre.L] != preReleaseOrder[spec.Pre.L] ||
		ver.Pre.N != spec.Pre.N) {
		return false
	}
	if terminalPart == partPre {
		return true
	}

	return cmpPostRelease(spec, ver) == 0
}

func matchStrictExclude(spec, ver Version) bool {
	return !matchStrictMatch(spec, ver)
}

func matchPrefixExclude(spec, ver Version) bool {
	return !matchPrefixMatch(spec, ver)
}

func matchLE(spec, ver Version) bool { return spec.Cmp(ver) >= 0 }
func matchGE(spec, ver Version) bool { return spec.Cmp(ver) <= 0 }
func sameRelease(a, b PublicVersion) bool {
	return cmpEpoch(a, b) == 0 && cmpRelease(a, b) == 0
}

// "<V" does not admit pre-releases of V itself, unless V is a pre-release.
func matchLT(spec, ver Version) bool {
	if !spec.IsPreRelease() && ver.IsPreRelease() && sameRelease(spec.PublicVersion, ver.PublicVersion) {
		return false
	}
	return spec.Cmp(ver) > 0
}

// ">V" does not admit post-releases or local versions of V itself, unless V is a post-release.
func matchGT(spec, ver Version) bool {
	if spec.Post == nil && ver.Post != nil && sameRelease(spec.PublicVersion, ver.PublicVersion) {
		return false
	}
	if spec.PublicVersion.Cmp(ver.PublicVersion) == 0 {
		return false
	}
	return spec.Cmp(ver) < 0
}

// Select returns the greatest of choices that matches the specifier, preferring final releases
// over pre-releases.  It returns nil if nothing matches.
func (spec Specifier) Select(choices []Version) *Version {
	var best, bestPre *Version
	for _, choice := range choices {
		choice := choice
		if !spec.Match(choice) {
			continue
		}
		if choice.IsPreRelease() {
			if bestPre == nil || bestPre.Cmp(choice) < 0 {
				bestPre = &choice
			}
		} else {
			if best == nil || best.Cmp(choice) < 0 {
				best = &choice
			}
		}
	}
	if best != nil {
		return best
	}
	return bestPre
}
