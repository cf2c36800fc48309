// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440

import (
	"fmt"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// Version is a full version identifier, including any local version label.
type Version = LocalVersion

// ParseVersion parses and normalizes a version string.  Any of the alternative spellings that PEP
// 440 permits are accepted; the returned Version's String() is the normalized form.
func ParseVersion(str string) (*Version, error) {
	ver, err := parseVersion(str)
	if err != nil {
		return nil, fmt.Errorf("pep440.ParseVersion: %w", err)
	}
	return ver, nil
}

// PublicVersion is a version identifier without a local version label:
//
//	[N!]N(.N)*[{a|b|rc}N][.postN][.devN]
type PublicVersion struct {
	Epoch   int
	Release []int
	Pre     *PreRelease
	Post    *int
	Dev     *int
}

// PreRelease is the "{a|b|rc}N" segment.  L is always normalized to one of "a", "b", or "rc".
type PreRelease struct {
	L string
	N int
}

func (ver PublicVersion) GoString() string {
	pre := "nil"
	if ver.Pre != nil {
		pre = fmt.Sprintf("&%#v", *ver.Pre)
	}
	post := "nil"
	if ver.Post != nil {
		post = fmt.Sprintf("intPtr(%#v)", *ver.Post)
	}
	dev := "nil"
	if ver.Dev != nil {
		dev = fmt.Sprintf("intPtr(%#v)", *ver.Dev)
	}
	return fmt.Sprintf("pep440.PublicVersion{Epoch:%d, Release:%#v, Pre:%s, Post:%s, Dev:%s}",
		ver.Epoch, ver.Release, pre, post, dev)
}

func (ver PublicVersion) writeTo(ret *strings.Builder) {
	if ver.Epoch > 0 {
		fmt.Fprintf(ret, "%d!", ver.Epoch)
	}
	if len(ver.Release) == 0 {
		panic("invalid version: no release segments")
	}
	fmt.Fprintf(ret, "%d", ver.Release[0])
	for _, segment := range ver.Release[1:] {
		fmt.Fprintf(ret, ".%d", segment)
	}
	if ver.Pre != nil {
		fmt.Fprintf(ret, "%s%d", ver.Pre.L, ver.Pre.N)
	}
	if ver.Post != nil {
		fmt.Fprintf(ret, ".post%d", *ver.Post)
	}
	if ver.Dev != nil {
		fmt.Fprintf(ret, ".dev%d", *ver.Dev)
	}
}

func (ver PublicVersion) String() string {
	var ret strings.Builder
	ver.writeTo(&ret)
	return ret.String()
}

// LocalVersion is a PublicVersion followed by an optional "+label" local version label.
type LocalVersion struct {
	PublicVersion
	Local []intstr.IntOrString
}

func (ver LocalVersion) GoString() string {
	return fmt.Sprintf("pep440.LocalVersion{PublicVersion:%#v, Local:%#v}",
		ver.PublicVersion, ver.Local)
}

func (ver LocalVersion) String() string {
	var ret strings.Builder
	ver.PublicVersion.writeTo(&ret)
	sep := "+"
	for _, local := range ver.Local {
		ret.WriteString(sep)
		ret.WriteString(local.String())
		sep = "."
	}
	return ret.String()
}

// IsFinal returns whether the version is a final release (no pre, post, or dev segment).
func (ver PublicVersion) IsFinal() bool {
	return ver.Pre == nil && ver.Post == nil && ver.Dev == nil
}

func (ver LocalVersion) IsFinal() bool {
	return ver.PublicVersion.IsFinal() && len(ver.Local) == 0
}

// IsPreRelease returns whether the version is a pre-release or a developmental release.
func (ver PublicVersion) IsPreRelease() bool {
	return ver.Pre != nil || ver.Dev != nil
}

func (ver PublicVersion) releaseSegment(n int) int {
	if n < len(ver.Release) {
		return ver.Release[n]
	}
	return 0
}

func (ver PublicVersion) Major() int { return ver.releaseSegment(0) }
func (ver PublicVersion) Minor() int { return ver.releaseSegment(1) }
func (ver PublicVersion) Micro() int { return ver.releaseSegment(2) }

// Normalize round-trips the version through its string form.
func (ver LocalVersion) Normalize() (*LocalVersion, error) {
	return ParseVersion(ver.String())
}

// Comparison ////////////////////////////////////////////////////////////////////////////////////

//nolint:gochecknoglobals // Would be 'const'.
var preReleaseOrder = map[string]int{
	"a":       -3,
	"alpha":   -3,
	"b":       -2,
	"beta":    -2,
	"rc":      -1,
	"c":       -1,
	"pre":     -1,
	"preview": -1,
}

func cmpEpoch(a, b PublicVersion) int {
	return a.Epoch - b.Epoch
}

// cmpRelease compares release segments as if the shorter one were padded with zeros.
func cmpRelease(a, b PublicVersion) int {
	for i := 0; i < len(a.Release) || i < len(b.Release); i++ {
		if diff := a.releaseSegment(i) - b.releaseSegment(i); diff != 0 {
			return diff
		}
	}
	return 0
}

// cmpPreRelease sorts "X.devN" (with no pre or post segment) before every "XaN".
func cmpPreRelease(a, b PublicVersion) int {
	rank := func(ver PublicVersion) (l, n int) {
		switch {
		case ver.Pre != nil:
			order, ok := preReleaseOrder[ver.Pre.L]
			if !ok {
				panic(fmt.Errorf("invalid pre-release string: %q", ver.Pre.L))
			}
			return order, ver.Pre.N
		case ver.Dev != nil && ver.Post == nil:
			return -4, 0
		default:
			return 0, 0
		}
	}
	aL, aN := rank(a)
	bL, bN := rank(b)
	if aL != bL {
		return aL - bL
	}
	return aN - bN
}

func cmpPostRelease(a, b PublicVersion) int {
	aPost := -1
	if a.Post != nil {
		aPost = *a.Post
	}
	bPost := -1
	if b.Post != nil {
		bPost = *b.Post
	}
	return aPost - bPost
}

func cmpDevRelease(a, b PublicVersion) int {
	switch {
	case a.Dev == nil && b.Dev == nil:
		return 0
	case a.Dev == nil && b.Dev != nil:
		return 1
	case a.Dev != nil && b.Dev == nil:
		return -1
	default:
		return (*a.Dev) - (*b.Dev)
	}
}

// Cmp returns <0, 0, or >0 as 'a' is less than, equal to, or greater than 'b'.
func (a PublicVersion) Cmp(b PublicVersion) int {
	for _, cmp := range []func(a, b PublicVersion) int{
		cmpEpoch,
		cmpRelease,
		cmpPreRelease,
		cmpPostRelease,
		cmpDevRelease,
	} {
		if d := cmp(a, b); d != 0 {
			return d
		}
	}
	return 0
}

// cmpLocalSegment orders alphanumeric segments before numeric ones; a missing segment sorts
// first.
func cmpLocalSegment(a, b *intstr.IntOrString) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch {
	case a.Type == intstr.Int && b.Type == intstr.Int:
		return int(a.IntVal - b.IntVal)
	case a.Type == intstr.String && b.Type == intstr.String:
		return strings.Compare(a.StrVal, b.StrVal)
	case a.Type == intstr.Int:
		return 1
	default:
		return -1
	}
}

func cmpLocal(a, b LocalVersion) int {
	for i := 0; i < len(a.Local) || i < len(b.Local); i++ {
		var aSeg, bSeg *intstr.IntOrString
		if i < len(a.Local) {
			aSeg = &(a.Local[i])
		}
		if i < len(b.Local) {
			bSeg = &(b.Local[i])
		}
		if d := cmpLocalSegment(aSeg, bSeg); d != 0 {
			return d
		}
	}
	return 0
}

func (a LocalVersion) Cmp(b LocalVersion) int {
	if d := a.PublicVersion.Cmp(b.PublicVersion); d != 0 {
		return d
	}
	return cmpLocal(a, b)
}

// Sort sorts versions in ascending order.
func Sort(vers []Version) {
	sort.SliceStable(vers, func(i, j int) bool {
		return vers[i].Cmp(vers[j]) < 0
	})
}

// CompareStrings orders two version strings.  Strings that parse as PEP 440 versions are
// compared as versions and sort before strings that don't; two unparseable strings compare
// lexically.  This gives a total order over arbitrary strings, which is what is needed to list
// the releases of a project that (for whatever reason) has non-PEP-440 versions.
func CompareStrings(a, b string) int {
	aVer, aErr := parseVersion(a)
	bVer, bErr := parseVersion(b)
	switch {
	case aErr == nil && bErr == nil:
		if d := aVer.Cmp(*bVer); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
