// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package repoindex

import (
	"sort"
	"time"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/metadata"
)

// Key identifies an artifact.  Name and Version are in their ecosystem's normal form.  Versions
// that are equal but spelled differently ("1.0" and "1.0.0") share the spelling that the index
// saw first.
type Key struct {
	Name     string
	Version  string
	Filename string
}

func (k Key) String() string {
	return k.Name + "/" + k.Version + "/" + k.Filename
}

func (k Key) less(o Key) bool {
	if k.Name != o.Name {
		return k.Name < o.Name
	}
	if k.Version != o.Version {
		return k.Version < o.Version
	}
	return k.Filename < o.Filename
}

// ArtifactRecord is the index's record of one uploaded file.  Records are never mutated after
// they are passed to Index.Record.
type ArtifactRecord struct {
	Key        Key
	Digest     blobstore.Digest
	Size       int64
	MD5        string
	UploadTime time.Time
	Metadata   *metadata.PackageMetadata
}

// PackageVersion is one version of a package, and the artifacts uploaded for it, sorted by
// filename.
type PackageVersion struct {
	Name      string
	Version   string
	Artifacts []*ArtifactRecord
}

type project struct {
	versions []PackageVersion
}

func (p *project) with(eco metadata.Ecosystem, rec *ArtifactRecord) *project {
	versions := make([]PackageVersion, 0, len(p.versions)+1)
	inserted := false
	for _, pv := range p.versions {
		switch {
		case inserted:
		case pv.Version == rec.Key.Version:
			artifacts := make([]*ArtifactRecord, 0, len(pv.Artifacts)+1)
			artifacts = append(artifacts, pv.Artifacts...)
			artifacts = append(artifacts, rec)
			sort.Slice(artifacts, func(i, j int) bool {
				return artifacts[i].Key.Filename < artifacts[j].Key.Filename
			})
			pv.Artifacts = artifacts
			inserted = true
		case eco.CompareVersions(rec.Key.Version, pv.Version) < 0:
			versions = append(versions, PackageVersion{
				Name:      rec.Key.Name,
				Version:   rec.Key.Version,
				Artifacts: []*ArtifactRecord{rec},
			})
			inserted = true
		}
		versions = append(versions, pv)
	}
	if !inserted {
		versions = append(versions, PackageVersion{
			Name:      rec.Key.Name,
			Version:   rec.Key.Version,
			Artifacts: []*ArtifactRecord{rec},
		})
	}
	return &project{versions: versions}
}

// without returns nil if removing the key leaves the project empty.
func (p *project) without(key Key) *project {
	versions := make([]PackageVersion, 0, len(p.versions))
	for _, pv := range p.versions {
		if pv.Version == key.Version {
			artifacts := make([]*ArtifactRecord, 0, len(pv.Artifacts))
			for _, rec := range pv.Artifacts {
				if rec.Key != key {
					artifacts = append(artifacts, rec)
				}
			}
			if len(artifacts) == 0 {
				continue
			}
			pv.Artifacts = artifacts
		}
		versions = append(versions, pv)
	}
	if len(versions) == 0 {
		return nil
	}
	return &project{versions: versions}
}

// Snapshot is an immutable view of the index.  Nothing returned by a Snapshot may be modified.
type Snapshot struct {
	ecosystem  metadata.Ecosystem
	generation uint64
	records    map[Key]*ArtifactRecord
	projects   map[string]*project
	refs       map[blobstore.Digest]int
	// removed holds the last record for each key that was deleted and not re-uploaded.
	removed map[Key]*ArtifactRecord
}

func emptySnapshot(eco metadata.Ecosystem) *Snapshot {
	return &Snapshot{
		ecosystem: eco,
		records:   map[Key]*ArtifactRecord{},
		projects:  map[string]*project{},
		refs:      map[blobstore.Digest]int{},
		removed:   map[Key]*ArtifactRecord{},
	}
}

func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		ecosystem:  s.ecosystem,
		generation: s.generation + 1,
		records:    make(map[Key]*ArtifactRecord, len(s.records)+1),
		projects:   make(map[string]*project, len(s.projects)+1),
		refs:       make(map[blobstore.Digest]int, len(s.refs)+1),
		removed:    make(map[Key]*ArtifactRecord, len(s.removed)),
	}
	for k, v := range s.records {
		next.records[k] = v
	}
	for k, v := range s.projects {
		next.projects[k] = v
	}
	for k, v := range s.refs {
		next.refs[k] = v
	}
	for k, v := range s.removed {
		next.removed[k] = v
	}
	return next
}

func (s *Snapshot) withRecord(rec *ArtifactRecord) *Snapshot {
	next := s.clone()
	next.records[rec.Key] = rec
	proj := next.projects[rec.Key.Name]
	if proj == nil {
		proj = &project{}
	}
	next.projects[rec.Key.Name] = proj.with(s.ecosystem, rec)
	next.refs[rec.Digest]++
	delete(next.removed, rec.Key)
	return next
}

func (s *Snapshot) withoutRecord(rec *ArtifactRecord) *Snapshot {
	next := s.clone()
	delete(next.records, rec.Key)
	if proj := next.projects[rec.Key.Name].without(rec.Key); proj != nil {
		next.projects[rec.Key.Name] = proj
	} else {
		delete(next.projects, rec.Key.Name)
	}
	if next.refs[rec.Digest] <= 1 {
		delete(next.refs, rec.Digest)
	} else {
		next.refs[rec.Digest]--
	}
	next.removed[rec.Key] = rec
	return next
}

func (s *Snapshot) Ecosystem() metadata.Ecosystem { return s.ecosystem }

// Generation counts the publishes that led to this snapshot; a newer snapshot has a greater
// generation.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Lookup returns the versions of a package in ascending version order.  The name need not be
// normalized.  An unknown package has no versions.
func (s *Snapshot) Lookup(name string) []PackageVersion {
	proj := s.projects[s.ecosystem.NormalizeName(name)]
	if proj == nil {
		return nil
	}
	return append([]PackageVersion(nil), proj.versions...)
}

// Get returns the record for key, or nil.  The key's version may be any spelling of an indexed
// version.
func (s *Snapshot) Get(key Key) *ArtifactRecord {
	return s.records[s.canonicalKey(key)]
}

// canonicalKey returns key with its version spelled the way the package's existing equal
// version is, if it has one.
func (s *Snapshot) canonicalKey(key Key) Key {
	if _, ok := s.records[key]; ok {
		return key
	}
	proj := s.projects[key.Name]
	if proj == nil {
		return key
	}
	for _, pv := range proj.versions {
		if pv.Version != key.Version && s.ecosystem.SameVersion(pv.Version, key.Version) {
			key.Version = pv.Version
			break
		}
	}
	return key
}

// Names returns the normalized names of all packages, sorted.
func (s *Snapshot) Names() []string {
	ret := make([]string, 0, len(s.projects))
	for name := range s.projects {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// References returns how many records refer to digest.
func (s *Snapshot) References(digest blobstore.Digest) int {
	return s.refs[digest]
}

// Records returns all records, sorted by key.
func (s *Snapshot) Records() []*ArtifactRecord {
	return sortedRecords(s.records)
}

// Removed returns the records that were deleted (and not since re-uploaded), sorted by key.
func (s *Snapshot) Removed() []*ArtifactRecord {
	return sortedRecords(s.removed)
}

// Len is the number of records.
func (s *Snapshot) Len() int {
	return len(s.records)
}

func sortedRecords(m map[Key]*ArtifactRecord) []*ArtifactRecord {
	ret := make([]*ArtifactRecord, 0, len(m))
	for _, rec := range m {
		ret = append(ret, rec)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Key.less(ret[j].Key)
	})
	return ret
}
