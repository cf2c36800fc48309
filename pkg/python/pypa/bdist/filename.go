// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/datawire/pkgrepo/pkg/python/pep425"
	"github.com/datawire/pkgrepo/pkg/python/pep440"
)

// FileNameData is the information encoded in a wheel filename:
//
//	{distribution}-{version}(-{build tag})?-{python tag}-{abi tag}-{platform tag}.whl
type FileNameData struct {
	Distribution     string
	Version          pep440.Version
	BuildTag         *BuildTag
	CompatibilityTag pep425.Tag
}

//nolint:gochecknoglobals // Would be 'const'.
var (
	reFilename = regexp.MustCompile(regexp.MustCompile(`\s+`).ReplaceAllString(`
		^(?P<distribution>[^-]+)
		-(?P<version>[^-]+)
		(?:-(?P<build_n>[0-9]+)(?P<build_l>[^-0-9][^-]*)?)?
		-(?P<python>[^-]+)
		-(?P<abi>[^-]+)
		-(?P<platform>[^-]+)
		\.whl$`, ``))
	reDistributionEscape = regexp.MustCompile(`[-_.]+`)
)

func ParseFilename(filename string) (*FileNameData, error) {
	match := reFilename.FindStringSubmatch(filename)
	if match == nil {
		return nil, fmt.Errorf("invalid wheel filename: %q", filename)
	}
	group := func(name string) string {
		return match[reFilename.SubexpIndex(name)]
	}

	var ret FileNameData

	ret.Distribution = group("distribution")

	ver, err := pep440.ParseVersion(group("version"))
	if err != nil {
		return nil, fmt.Errorf("invalid wheel filename: %q: %w", filename, err)
	}
	ret.Version = *ver

	if buildN := group("build_n"); buildN != "" {
		n, err := strconv.Atoi(buildN)
		if err != nil {
			return nil, fmt.Errorf("invalid wheel filename: %q: build tag: %w", filename, err)
		}
		ret.BuildTag = &BuildTag{
			Int: n,
			Str: group("build_l"),
		}
	}

	ret.CompatibilityTag = pep425.Tag{
		Python:   group("python"),
		ABI:      group("abi"),
		Platform: group("platform"),
	}

	return &ret, nil
}

// BuildTag is the optional build number; it acts as a tie-breaker if two wheels have the same
// version.
type BuildTag struct {
	Int int
	Str string
}

func (t BuildTag) String() string {
	return fmt.Sprintf("%d%s", t.Int, t.Str)
}

func (a *BuildTag) Cmp(b *BuildTag) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	if d := a.Int - b.Int; d != 0 {
		return d
	}
	return strings.Compare(a.Str, b.Str)
}

// GenerateFilename is the inverse of ParseFilename.  The distribution name is escaped (runs of
// "-_." become "_") and the version is normalized.
func GenerateFilename(data FileNameData) (string, error) {
	var ret strings.Builder
	ret.WriteString(reDistributionEscape.ReplaceAllLiteralString(data.Distribution, "_"))
	ver, err := data.Version.Normalize()
	if err != nil {
		return "", err
	}
	ret.WriteString("-")
	ret.WriteString(ver.String())
	if data.BuildTag != nil {
		build := data.BuildTag.String()
		if strings.Contains(build, "-") {
			return "", fmt.Errorf("invalid build tag: contains dash: %q", build)
		}
		ret.WriteString("-")
		ret.WriteString(build)
	}
	compat := data.CompatibilityTag.String()
	if strings.Count(compat, "-") != 2 {
		return "", fmt.Errorf("invalid compatibility tag: %q", compat)
	}
	ret.WriteString("-")
	ret.WriteString(compat)
	ret.WriteString(".whl")
	return ret.String(), nil
}
