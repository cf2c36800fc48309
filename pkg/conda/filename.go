// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package conda

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	ExtTarBz2 = ".tar.bz2"
	ExtConda  = ".conda"
)

//nolint:gochecknoglobals // Would be 'const'.
var (
	reName    = regexp.MustCompile(`^[a-z0-9_.-]+$`)
	reVersion = regexp.MustCompile(`^[A-Za-z0-9_.+!]+$`)
	reBuild   = regexp.MustCompile(`^[A-Za-z0-9_.+]+$`)
)

// FileNameData is the information encoded in a package filename,
// "{name}-{version}-{build}{ext}".
type FileNameData struct {
	Name      string
	Version   string
	Build     string
	Extension string
}

func (d FileNameData) String() string {
	return d.Name + "-" + d.Version + "-" + d.Build + d.Extension
}

// SplitExtension returns the filename without its extension, and the extension.
func SplitExtension(filename string) (base, ext string, ok bool) {
	for _, ext := range []string{ExtTarBz2, ExtConda} {
		if strings.HasSuffix(filename, ext) {
			return strings.TrimSuffix(filename, ext), ext, true
		}
	}
	return filename, "", false
}

// ParseFilename parses a package filename.  The version and build string may not contain "-",
// so they are split off from the right; the name may contain "-".
func ParseFilename(filename string) (*FileNameData, error) {
	base, ext, ok := SplitExtension(filename)
	if !ok {
		return nil, fmt.Errorf("invalid conda filename: %q: unsupported extension", filename)
	}
	buildSep := strings.LastIndexByte(base, '-')
	if buildSep < 0 {
		return nil, fmt.Errorf("invalid conda filename: %q: missing build string", filename)
	}
	versionSep := strings.LastIndexByte(base[:buildSep], '-')
	if versionSep < 0 {
		return nil, fmt.Errorf("invalid conda filename: %q: missing version", filename)
	}
	ret := &FileNameData{
		Name:      base[:versionSep],
		Version:   base[versionSep+1 : buildSep],
		Build:     base[buildSep+1:],
		Extension: ext,
	}
	if err := ValidName(ret.Name); err != nil {
		return nil, fmt.Errorf("invalid conda filename: %q: %w", filename, err)
	}
	if !reVersion.MatchString(ret.Version) {
		return nil, fmt.Errorf("invalid conda filename: %q: invalid version: %q", filename, ret.Version)
	}
	if !reBuild.MatchString(ret.Build) {
		return nil, fmt.Errorf("invalid conda filename: %q: invalid build string: %q", filename, ret.Build)
	}
	return ret, nil
}

// ValidName returns an error if name is not a valid package name: lowercase ASCII letters,
// digits, "_", ".", and "-".
func ValidName(name string) error {
	if !reName.MatchString(name) {
		return fmt.Errorf("invalid package name: %q", name)
	}
	return nil
}

// Normalize returns the canonical form of a package name.
func Normalize(name string) string {
	return strings.ToLower(name)
}
