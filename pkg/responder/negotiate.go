// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package responder

import (
	"fmt"
	"mime"
	"sort"
	"strconv"
	"strings"

	"github.com/datawire/pkgrepo/pkg/metadata"
	"github.com/datawire/pkgrepo/pkg/python/pep691"
	"github.com/datawire/pkgrepo/pkg/repoerr"
)

type Format int

const (
	FormatHTML Format = iota
	FormatJSON
	FormatRepodata
)

const (
	ContentTypeHTML       = "text/html"
	ContentTypeSimpleHTML = "application/vnd.pypi.simple.v1+html"
	ContentTypeSimpleJSON = pep691.ContentType
	ContentTypeJSON       = "application/json"
)

type offer struct {
	contentType string
	format      Format
}

// offers maps an acceptable media type to what we send for it.
//
//nolint:gochecknoglobals // Would be 'const'.
var offers = map[metadata.Ecosystem]map[string]offer{
	metadata.PyPI: {
		"text/html":                               {ContentTypeHTML, FormatHTML},
		"application/vnd.pypi.simple.v1+html":     {ContentTypeSimpleHTML, FormatHTML},
		"application/vnd.pypi.simple.latest+html": {ContentTypeSimpleHTML, FormatHTML},
		"application/vnd.pypi.simple.v1+json":     {ContentTypeSimpleJSON, FormatJSON},
		"application/vnd.pypi.simple.latest+json": {ContentTypeSimpleJSON, FormatJSON},
		"*/*": {ContentTypeHTML, FormatHTML},
	},
	metadata.Conda: {
		"application/json": {ContentTypeJSON, FormatRepodata},
		"*/*":              {ContentTypeJSON, FormatRepodata},
	},
}

type mediaRange struct {
	mediaType string
	q         float64
}

// parseAccept returns the media ranges in an Accept header, most preferred first.  Ranges that
// don't parse are ignored.
func parseAccept(accept string) []mediaRange {
	var ret []mediaRange
	for _, part := range strings.Split(accept, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		mediaType, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		q := 1.0
		if qStr, ok := params["q"]; ok {
			q, err = strconv.ParseFloat(qStr, 64)
			if err != nil || q < 0 || q > 1 {
				continue
			}
		}
		ret = append(ret, mediaRange{mediaType: mediaType, q: q})
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].q > ret[j].q
	})
	return ret
}

// Negotiate picks the response content type for an Accept header.  An empty header accepts
// anything.  If nothing acceptable is on offer, the error is repoerr.ErrUnsupportedAcceptType.
func Negotiate(eco metadata.Ecosystem, accept string) (contentType string, format Format, err error) {
	if strings.TrimSpace(accept) == "" {
		accept = "*/*"
	}
	for _, rng := range parseAccept(accept) {
		if rng.q == 0 {
			continue
		}
		if o, ok := offers[eco][rng.mediaType]; ok {
			return o.contentType, o.format, nil
		}
	}
	return "", 0, fmt.Errorf("responder.Negotiate: %w",
		repoerr.Wrap(repoerr.ErrUnsupportedAcceptType, fmt.Errorf("%s repository cannot satisfy Accept: %q", eco, accept)))
}
