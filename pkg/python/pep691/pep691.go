// Package pep691 implements PEP 691 -- JSON-based Simple API for Python Package Indexes, along with
// the PEP 700 additions to it ("versions", "size", and "upload-time").
//
// https://peps.python.org/pep-0691/
// https://peps.python.org/pep-0700/
package pep691

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const (
	ContentType = "application/vnd.pypi.simple.v1+json"
	// APIVersion is "1.1" rather than "1.0" because the PEP 700 keys are always emitted.
	APIVersion = "1.1"
)

type Meta struct {
	APIVersion string `json:"api-version"`
}

// ProjectList is the root page.
type ProjectList struct {
	Meta     Meta           `json:"meta"`
	Projects []ProjectEntry `json:"projects"`
}

type ProjectEntry struct {
	Name string `json:"name"`
}

// Project is a project page.
type Project struct {
	Meta     Meta     `json:"meta"`
	Name     string   `json:"name"`
	Files    []File   `json:"files"`
	Versions []string `json:"versions"`
}

type File struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	// Hashes maps a hashlib algorithm name to a lowercase hex digest.
	Hashes         map[string]string `json:"hashes"`
	RequiresPython string            `json:"requires-python,omitempty"`
	Size           int64             `json:"size"`
	UploadTime     string            `json:"upload-time,omitempty"`
}

// FormatUploadTime formats a time the way "upload-time" requires: UTC, with microseconds.
func FormatUploadTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

func NewProjectList(names []string) ProjectList {
	ret := ProjectList{
		Meta:     Meta{APIVersion: APIVersion},
		Projects: make([]ProjectEntry, 0, len(names)),
	}
	for _, name := range names {
		ret.Projects = append(ret.Projects, ProjectEntry{Name: name})
	}
	return ret
}

// Write encodes v (a ProjectList or a Project) as indented JSON.
func Write(w io.Writer, v interface{}) error {
	switch v.(type) {
	case ProjectList, *ProjectList, Project, *Project:
	default:
		return fmt.Errorf("pep691.Write: unsupported type %T", v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("pep691.Write: %w", err)
	}
	return nil
}
