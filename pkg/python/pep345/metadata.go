// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep345

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strings"
)

// Metadata is the subset of the core metadata fields that a package repository cares about.
// Multiple-use fields keep the order in which they appear in the file.
type Metadata struct {
	MetadataVersion string
	Name            string
	Version         string
	Summary         string
	Description     string
	Keywords        string
	HomePage        string
	Author          string
	AuthorEmail     string
	License         string
	Classifiers     []string
	RequiresDist    []string
	RequiresPython  string
	ProjectURLs     []string
}

// ParseMetadata parses a PKG-INFO or METADATA file.  If there is no "Description" header, the
// message body (metadata 2.1+) is used as the description.
func ParseMetadata(r io.Reader) (*Metadata, error) {
	// textproto wants a blank line to terminate the header block, and a bare PKG-INFO might
	// not have one.
	tp := textproto.NewReader(bufio.NewReader(io.MultiReader(r, strings.NewReader("\r\n\r\n"))))
	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("pep345.ParseMetadata: %w", err)
	}
	body, err := io.ReadAll(tp.R)
	if err != nil {
		return nil, fmt.Errorf("pep345.ParseMetadata: %w", err)
	}

	md := &Metadata{
		MetadataVersion: header.Get("Metadata-Version"),
		Name:            strings.TrimSpace(header.Get("Name")),
		Version:         strings.TrimSpace(header.Get("Version")),
		Summary:         header.Get("Summary"),
		Description:     header.Get("Description"),
		Keywords:        header.Get("Keywords"),
		HomePage:        header.Get("Home-Page"),
		Author:          header.Get("Author"),
		AuthorEmail:     header.Get("Author-Email"),
		License:         header.Get("License"),
		Classifiers:     header.Values("Classifier"),
		RequiresDist:    header.Values("Requires-Dist"),
		RequiresPython:  strings.TrimSpace(header.Get("Requires-Python")),
		ProjectURLs:     header.Values("Project-Url"),
	}
	if md.Description == "UNKNOWN" {
		md.Description = ""
	}
	if md.Description == "" {
		md.Description = strings.TrimRight(string(body), "\r\n")
	}
	return md, nil
}
