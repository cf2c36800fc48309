// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package responder renders the read side of a repository from an index snapshot: PEP 503 HTML
// and PEP 691 JSON pages for PyPI, and repodata.json for conda channels.
//
// A Responder never fails because a package is unknown; it renders an empty page instead.
package responder

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/datawire/pkgrepo/pkg/conda"
	"github.com/datawire/pkgrepo/pkg/metadata"
	"github.com/datawire/pkgrepo/pkg/python/pep503"
	"github.com/datawire/pkgrepo/pkg/python/pep629"
	"github.com/datawire/pkgrepo/pkg/python/pep691"
	"github.com/datawire/pkgrepo/pkg/repoerr"
	"github.com/datawire/pkgrepo/pkg/repoindex"
)

type Response struct {
	ContentType string
	Body        []byte
}

type Responder struct {
	// BaseURL is prepended to "/{name}/{filename}" to make file URLs, and to "/{name}/" to make
	// project URLs.  It may be empty.
	BaseURL string
}

func (r Responder) base() string {
	return strings.TrimSuffix(r.BaseURL, "/")
}

func (r Responder) projectURL(name string) string {
	return r.base() + "/" + name + "/"
}

func (r Responder) fileURL(rec *repoindex.ArtifactRecord) string {
	return r.base() + "/" + rec.Key.Name + "/" + rec.Key.Filename
}

func (r Responder) negotiate(snap *repoindex.Snapshot, accept string, want ...Format) (string, Format, error) {
	contentType, format, err := Negotiate(snap.Ecosystem(), accept)
	if err != nil {
		return "", 0, err
	}
	for _, w := range want {
		if w == format {
			return contentType, format, nil
		}
	}
	return "", 0, repoerr.Wrap(repoerr.ErrUnsupportedAcceptType,
		fmt.Errorf("%s repositories do not serve this page as %s", snap.Ecosystem(), contentType))
}

func renderHTML(page pep503.Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := pep691.Write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Index renders the PyPI root page, listing every project.
func (r Responder) Index(snap *repoindex.Snapshot, accept string) (*Response, error) {
	contentType, format, err := r.negotiate(snap, accept, FormatHTML, FormatJSON)
	if err != nil {
		return nil, err
	}
	names := snap.Names()
	var body []byte
	switch format {
	case FormatJSON:
		body, err = renderJSON(pep691.NewProjectList(names))
	default:
		page := pep503.Page{
			Title: "Simple index",
			Head:  []*html.Node{pep629.MetaNode()},
		}
		for _, name := range names {
			page.Links = append(page.Links, pep503.Link{
				Text: name,
				HRef: r.projectURL(name),
			})
		}
		body, err = renderHTML(page)
	}
	if err != nil {
		return nil, fmt.Errorf("responder.Index: %w", err)
	}
	return &Response{ContentType: contentType, Body: body}, nil
}

// Project renders a PyPI project page, listing every file of every version in version order.
func (r Responder) Project(snap *repoindex.Snapshot, name, accept string) (*Response, error) {
	contentType, format, err := r.negotiate(snap, accept, FormatHTML, FormatJSON)
	if err != nil {
		return nil, err
	}
	name = metadata.PyPI.NormalizeName(name)
	versions := snap.Lookup(name)
	var body []byte
	switch format {
	case FormatJSON:
		project := pep691.Project{
			Meta:     pep691.Meta{APIVersion: pep691.APIVersion},
			Name:     name,
			Files:    []pep691.File{},
			Versions: []string{},
		}
		for _, pv := range versions {
			project.Versions = append(project.Versions, pv.Version)
			for _, rec := range pv.Artifacts {
				project.Files = append(project.Files, pep691.File{
					Filename:       rec.Key.Filename,
					URL:            r.fileURL(rec),
					Hashes:         map[string]string{rec.Digest.Algorithm: rec.Digest.Hex},
					RequiresPython: requiresPython(rec),
					Size:           rec.Size,
					UploadTime:     pep691.FormatUploadTime(rec.UploadTime),
				})
			}
		}
		body, err = renderJSON(project)
	default:
		page := pep503.Page{
			Title: "Links for " + name,
			Head:  []*html.Node{pep629.MetaNode()},
		}
		for _, pv := range versions {
			for _, rec := range pv.Artifacts {
				link := pep503.Link{
					Text: rec.Key.Filename,
					HRef: r.fileURL(rec) + "#" + rec.Digest.Algorithm + "=" + rec.Digest.Hex,
				}
				if rp := requiresPython(rec); rp != "" {
					link.DataAttrs = map[string]string{"data-requires-python": rp}
				}
				page.Links = append(page.Links, link)
			}
		}
		body, err = renderHTML(page)
	}
	if err != nil {
		return nil, fmt.Errorf("responder.Project: %w", err)
	}
	return &Response{ContentType: contentType, Body: body}, nil
}

func requiresPython(rec *repoindex.ArtifactRecord) string {
	if rec.Metadata == nil {
		return ""
	}
	return rec.Metadata.RequiresPython
}

// Repodata renders a conda channel subdir's repodata.json.
func (r Responder) Repodata(snap *repoindex.Snapshot, subdir, accept string) (*Response, error) {
	contentType, _, err := r.negotiate(snap, accept, FormatRepodata)
	if err != nil {
		return nil, err
	}
	repodata := conda.NewRepodata(subdir)
	for _, rec := range snap.Records() {
		if rec.Metadata == nil || rec.Metadata.Subdir != subdir {
			continue
		}
		if err := repodata.Add(rec.Key.Filename, rec.Metadata.IndexJSON, rec.Size, rec.MD5, rec.Digest.Hex); err != nil {
			return nil, fmt.Errorf("responder.Repodata: %w", err)
		}
	}
	for _, rec := range snap.Removed() {
		if rec.Metadata != nil && rec.Metadata.Subdir == subdir {
			repodata.MarkRemoved(rec.Key.Filename)
		}
	}
	var buf bytes.Buffer
	if err := repodata.Write(&buf); err != nil {
		return nil, fmt.Errorf("responder.Repodata: %w", err)
	}
	return &Response{ContentType: contentType, Body: buf.Bytes()}, nil
}

// Subdirs returns the conda subdirs that have packages (or removed packages) in the snapshot.
func Subdirs(snap *repoindex.Snapshot) []string {
	seen := make(map[string]struct{})
	var ret []string
	for _, recs := range [][]*repoindex.ArtifactRecord{snap.Records(), snap.Removed()} {
		for _, rec := range recs {
			if rec.Metadata == nil || rec.Metadata.Subdir == "" {
				continue
			}
			if _, dup := seen[rec.Metadata.Subdir]; !dup {
				seen[rec.Metadata.Subdir] = struct{}{}
				ret = append(ret, rec.Metadata.Subdir)
			}
		}
	}
	sort.Strings(ret)
	return ret
}
