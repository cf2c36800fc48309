// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package repoindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/fxamacker/cbor/v2"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/fsutil"
	"github.com/datawire/pkgrepo/pkg/metadata"
)

const formatVersion = 1

//nolint:gochecknoglobals // Would be 'const'.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	// blobstore.Digest round-trips through its "sha256:<hex>" text form.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic(fmt.Errorf("repoindex: CBOR encoder initialization failed: %w", err))
	}
	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic(fmt.Errorf("repoindex: CBOR decoder initialization failed: %w", err))
	}
}

type wireRecord struct {
	Name       string                    `cbor:"name"`
	Version    string                    `cbor:"version"`
	Filename   string                    `cbor:"filename"`
	Digest     blobstore.Digest          `cbor:"digest"`
	Size       int64                     `cbor:"size"`
	MD5        string                    `cbor:"md5"`
	UploadTime time.Time                 `cbor:"upload_time"`
	Metadata   *metadata.PackageMetadata `cbor:"metadata"`
}

type wireSnapshot struct {
	FormatVersion int                `cbor:"format_version"`
	Ecosystem     metadata.Ecosystem `cbor:"ecosystem"`
	Generation    uint64             `cbor:"generation"`
	Records       []wireRecord       `cbor:"records"`
	Removed       []wireRecord       `cbor:"removed,omitempty"`
}

func toWire(recs []*ArtifactRecord) []wireRecord {
	ret := make([]wireRecord, 0, len(recs))
	for _, rec := range recs {
		ret = append(ret, wireRecord{
			Name:       rec.Key.Name,
			Version:    rec.Key.Version,
			Filename:   rec.Key.Filename,
			Digest:     rec.Digest,
			Size:       rec.Size,
			MD5:        rec.MD5,
			UploadTime: rec.UploadTime.UTC(),
			Metadata:   rec.Metadata,
		})
	}
	return ret
}

func (w wireRecord) record() *ArtifactRecord {
	return &ArtifactRecord{
		Key: Key{
			Name:     w.Name,
			Version:  w.Version,
			Filename: w.Filename,
		},
		Digest:     w.Digest,
		Size:       w.Size,
		MD5:        w.MD5,
		UploadTime: w.UploadTime,
		Metadata:   w.Metadata,
	}
}

// Encode serializes a snapshot as CBOR.  The encoding is deterministic.
func Encode(snap *Snapshot) ([]byte, error) {
	data, err := encMode.Marshal(wireSnapshot{
		FormatVersion: formatVersion,
		Ecosystem:     snap.ecosystem,
		Generation:    snap.generation,
		Records:       toWire(snap.Records()),
		Removed:       toWire(snap.Removed()),
	})
	if err != nil {
		return nil, fmt.Errorf("repoindex.Encode: %w", err)
	}
	return data, nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (*Snapshot, error) {
	var wire wireSnapshot
	if err := decMode.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("repoindex.Decode: %w", err)
	}
	if wire.FormatVersion != formatVersion {
		return nil, fmt.Errorf("repoindex.Decode: unsupported format version %d", wire.FormatVersion)
	}
	if _, err := metadata.ParseEcosystem(string(wire.Ecosystem)); err != nil {
		return nil, fmt.Errorf("repoindex.Decode: %w", err)
	}
	snap := emptySnapshot(wire.Ecosystem)
	for _, w := range wire.Records {
		if snap.records[w.record().Key] != nil {
			return nil, fmt.Errorf("repoindex.Decode: duplicate record %s", w.record().Key)
		}
		snap = snap.withRecord(w.record())
	}
	for _, w := range wire.Removed {
		rec := w.record()
		snap.removed[rec.Key] = rec
	}
	snap.generation = wire.Generation
	return snap, nil
}

// Load reads an index from a file written by a FilePersister.  If the file does not exist, an
// empty index is returned.
func Load(ctx context.Context, eco metadata.Ecosystem, filename string) (*Index, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			dlog.Debugf(ctx, "repoindex: %q does not exist, starting empty", filename)
			return New(eco), nil
		}
		return nil, fmt.Errorf("repoindex.Load: %w", err)
	}
	snap, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("repoindex.Load: %q: %w", filename, err)
	}
	if snap.ecosystem != eco {
		return nil, fmt.Errorf("repoindex.Load: %q is a %s index, not %s", filename, snap.ecosystem, eco)
	}
	dlog.Debugf(ctx, "repoindex: loaded generation %d (%d records) from %q",
		snap.Generation(), snap.Len(), filename)
	return newFromSnapshot(snap), nil
}

// FilePersister writes snapshots to a file.  A snapshot is only written if it is newer than the
// last one written, so out-of-order publish hooks can't roll the file back.
type FilePersister struct {
	Filename string

	mu      sync.Mutex
	written uint64
	err     error
}

// Persist writes snap to the file, unless a snapshot at least as new has already been written.
func (p *FilePersister) Persist(ctx context.Context, snap *Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.written != 0 && snap.Generation() <= p.written {
		dlog.Debugf(ctx, "repoindex: not persisting generation %d; already wrote %d",
			snap.Generation(), p.written)
		return nil
	}
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(p.Filename, data, 0o644); err != nil {
		return fmt.Errorf("repoindex.FilePersister: %w", err)
	}
	p.written = snap.Generation()
	return nil
}

// Hook is a PublishFunc that persists every published snapshot.  Errors are logged and kept for
// Err.
func (p *FilePersister) Hook(ctx context.Context, snap *Snapshot) {
	if err := p.Persist(ctx, snap); err != nil {
		dlog.Errorf(ctx, "repoindex: persist generation %d: %v", snap.Generation(), err)
		p.mu.Lock()
		if p.err == nil {
			p.err = err
		}
		p.mu.Unlock()
	}
}

// Err returns the first error that Hook encountered.
func (p *FilePersister) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
