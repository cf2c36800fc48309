// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/repoindex"
	"github.com/datawire/pkgrepo/pkg/reproducible"
	"github.com/datawire/pkgrepo/pkg/responder"
	"github.com/datawire/pkgrepo/pkg/upload"
)

const indexFilename = "index.cbor"

// repository is an on-disk repository: a blob store under the root directory, and an index file
// next to it that is rewritten on every publish.
type repository struct {
	cfg       *Config
	coord     *upload.Coordinator
	persister *repoindex.FilePersister
}

func openRepository(ctx context.Context, cfg *Config) (*repository, error) {
	fsStore, err := blobstore.NewFSStore(cfg.Root)
	if err != nil {
		return nil, err
	}
	var store blobstore.Store = fsStore
	if cfg.Storage.Timeout.Duration > 0 {
		store = blobstore.WithTimeout(fsStore, cfg.Storage.Timeout.Duration)
	}

	persister := &repoindex.FilePersister{
		Filename: filepath.Join(cfg.Root, indexFilename),
	}
	index, err := repoindex.Load(ctx, cfg.Ecosystem, persister.Filename)
	if err != nil {
		return nil, err
	}
	index.OnPublish(persister.Hook)

	coord := upload.New(index, store, upload.Config{
		Backoff: cfg.backoff(),
		Now:     reproducible.Now,
		OnIntegrityViolation: func(ctx context.Context, digest blobstore.Digest, err error) {
			dlog.Errorf(ctx, "blob %s under %q is corrupt; remove it by hand and re-upload: %v",
				digest, cfg.Root, err)
		},
	})
	return &repository{
		cfg:       cfg,
		coord:     coord,
		persister: persister,
	}, nil
}

func (r *repository) snapshot() *repoindex.Snapshot {
	return r.coord.Index().Snapshot()
}

func (r *repository) responder() responder.Responder {
	return responder.Responder{BaseURL: r.cfg.BaseURL}
}

// lookup finds the record for an artifact, normalizing the name and version the way the index
// does.
func (r *repository) lookup(name, version, filename string) (*repoindex.ArtifactRecord, error) {
	eco := r.cfg.Ecosystem
	key := repoindex.Key{
		Name:     eco.NormalizeName(name),
		Version:  eco.NormalizeVersion(version),
		Filename: filename,
	}
	rec := r.snapshot().Get(key)
	if rec == nil {
		return nil, fmt.Errorf("no artifact %s in the index", key)
	}
	return rec, nil
}

// close makes sure the latest snapshot is on disk, and reports any error that a publish hook ran
// into along the way.
func (r *repository) close(ctx context.Context) error {
	if err := r.persister.Persist(ctx, r.snapshot()); err != nil {
		return err
	}
	return r.persister.Err()
}
