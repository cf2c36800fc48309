// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package conda

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// RepodataVersion is the "repodata_version" that Repodata emits.
const RepodataVersion = 1

type RepodataInfo struct {
	Subdir string `json:"subdir"`
}

// A RepodataEntry is a package's index.json with "size", "md5", and "sha256" added.
type RepodataEntry map[string]interface{}

// Repodata is a channel subdir's "repodata.json".  ".tar.bz2" packages are listed under
// "packages" and ".conda" packages under "packages.conda".
type Repodata struct {
	Info            RepodataInfo             `json:"info"`
	Packages        map[string]RepodataEntry `json:"packages"`
	PackagesConda   map[string]RepodataEntry `json:"packages.conda"`
	Removed         []string                 `json:"removed"`
	RepodataVersion int                      `json:"repodata_version"`
}

func NewRepodata(subdir string) *Repodata {
	return &Repodata{
		Info:            RepodataInfo{Subdir: subdir},
		Packages:        make(map[string]RepodataEntry),
		PackagesConda:   make(map[string]RepodataEntry),
		Removed:         []string{},
		RepodataVersion: RepodataVersion,
	}
}

// Add merges a package into the repodata.  If the filename is already present, it is replaced.
func (r *Repodata) Add(filename string, indexJSON []byte, size int64, md5, sha256 string) error {
	_, ext, ok := SplitExtension(filename)
	if !ok {
		return fmt.Errorf("conda.Repodata.Add: unsupported file extension: %q", filename)
	}
	dec := json.NewDecoder(bytes.NewReader(indexJSON))
	dec.UseNumber()
	var entry RepodataEntry
	if err := dec.Decode(&entry); err != nil {
		return fmt.Errorf("conda.Repodata.Add: %q: %w", filename, err)
	}
	if entry == nil {
		return fmt.Errorf("conda.Repodata.Add: %q: index.json is not an object", filename)
	}
	entry["size"] = size
	entry["md5"] = md5
	entry["sha256"] = sha256

	switch ext {
	case ExtConda:
		r.PackagesConda[filename] = entry
	default:
		r.Packages[filename] = entry
	}
	return nil
}

// Remove moves a filename from the package lists to "removed".
func (r *Repodata) Remove(filename string) {
	_, inPackages := r.Packages[filename]
	_, inConda := r.PackagesConda[filename]
	if !inPackages && !inConda {
		return
	}
	delete(r.Packages, filename)
	delete(r.PackagesConda, filename)
	r.MarkRemoved(filename)
}

// MarkRemoved lists a filename under "removed", for a package that was deleted from the channel
// before this repodata was built.
func (r *Repodata) MarkRemoved(filename string) {
	i := sort.SearchStrings(r.Removed, filename)
	if i < len(r.Removed) && r.Removed[i] == filename {
		return
	}
	r.Removed = append(r.Removed, "")
	copy(r.Removed[i+1:], r.Removed[i:])
	r.Removed[i] = filename
}

// Write encodes the repodata as JSON; map keys are sorted, so the output is deterministic.
func (r *Repodata) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("conda.Repodata.Write: %w", err)
	}
	return nil
}
