// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/sync/singleflight"

	"github.com/datawire/pkgrepo/pkg/fsutil"
	"github.com/datawire/pkgrepo/pkg/repoerr"
)

// FSStore is a Store in a directory, laid out as "blobs/sha256/<first 2 hex>/<64 hex>".  Blobs
// are written to a temporary file and renamed in to place, so a blob file is always complete.
type FSStore struct {
	root string
	puts singleflight.Group
}

var _ Store = (*FSStore)(nil)

func NewFSStore(root string) (*FSStore, error) {
	store := &FSStore{root: root}
	if err := os.MkdirAll(store.dir(), 0o755); err != nil {
		return nil, fmt.Errorf("blobstore.NewFSStore: %w", repoerr.Wrap(repoerr.ErrStorageUnavailable, err))
	}
	return store, nil
}

func (s *FSStore) dir() string {
	return filepath.Join(s.root, "blobs", "sha256")
}

func (s *FSStore) path(digest Digest) (string, error) {
	if digest.Algorithm != "sha256" || len(digest.Hex) != 64 {
		return "", fmt.Errorf("invalid digest: %q", digest.String())
	}
	return filepath.Join(s.dir(), digest.Hex[:2], digest.Hex), nil
}

// ioError classifies an error from the os package.
func ioError(digest Digest, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", digest, repoerr.Wrap(repoerr.ErrNotFound, err))
	}
	return repoerr.Wrap(repoerr.ErrStorageUnavailable, err)
}

func (s *FSStore) Put(ctx context.Context, content []byte) (Digest, error) {
	if err := ctxErr(ctx); err != nil {
		return Digest{}, fmt.Errorf("blobstore.FSStore.Put: %w", err)
	}
	digest := Sum(content)
	filename, err := s.path(digest)
	if err != nil {
		return Digest{}, fmt.Errorf("blobstore.FSStore.Put: %w", err)
	}
	_, err, shared := s.puts.Do(digest.String(), func() (interface{}, error) {
		equal, err := fsutil.FileContentEqual(filename, content)
		switch {
		case err == nil && equal:
			dlog.Debugf(ctx, "blobstore: %s already present", digest)
			return nil, nil
		case err == nil:
			return nil, repoerr.Wrap(repoerr.ErrIntegrityViolation,
				fmt.Errorf("existing blob %s has different content", digest))
		case !errors.Is(err, fs.ErrNotExist):
			return nil, repoerr.Wrap(repoerr.ErrStorageUnavailable, err)
		}
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		if err := fsutil.WriteFileAtomic(filename, content, 0o644); err != nil {
			return nil, repoerr.Wrap(repoerr.ErrStorageUnavailable, err)
		}
		dlog.Debugf(ctx, "blobstore: wrote %s (%d bytes)", digest, len(content))
		return nil, nil
	})
	if err != nil {
		return Digest{}, fmt.Errorf("blobstore.FSStore.Put: %w", err)
	}
	if shared {
		dlog.Debugf(ctx, "blobstore: put of %s coalesced with a concurrent put", digest)
	}
	return digest, nil
}

func (s *FSStore) Get(ctx context.Context, digest Digest) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, fmt.Errorf("blobstore.FSStore.Get: %w", err)
	}
	filename, err := s.path(digest)
	if err != nil {
		return nil, fmt.Errorf("blobstore.FSStore.Get: %w", repoerr.Wrap(repoerr.ErrNotFound, err))
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("blobstore.FSStore.Get: %w", ioError(digest, err))
	}
	if err := verify(digest, content); err != nil {
		return nil, fmt.Errorf("blobstore.FSStore.Get: %w", err)
	}
	return content, nil
}

func (s *FSStore) Delete(ctx context.Context, digest Digest) error {
	if err := ctxErr(ctx); err != nil {
		return fmt.Errorf("blobstore.FSStore.Delete: %w", err)
	}
	filename, err := s.path(digest)
	if err != nil {
		return fmt.Errorf("blobstore.FSStore.Delete: %w", repoerr.Wrap(repoerr.ErrNotFound, err))
	}
	if err := os.Remove(filename); err != nil {
		return fmt.Errorf("blobstore.FSStore.Delete: %w", ioError(digest, err))
	}
	return nil
}

func (s *FSStore) Has(ctx context.Context, digest Digest) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, fmt.Errorf("blobstore.FSStore.Has: %w", err)
	}
	filename, err := s.path(digest)
	if err != nil {
		return false, nil
	}
	if _, err := os.Stat(filename); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("blobstore.FSStore.Has: %w", repoerr.Wrap(repoerr.ErrStorageUnavailable, err))
	}
	return true, nil
}

func (s *FSStore) List(ctx context.Context) ([]Digest, error) {
	var ret []Digest
	err := filepath.WalkDir(s.dir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		digest, err := ParseDigest("sha256:" + d.Name())
		if err != nil {
			dlog.Warnf(ctx, "blobstore: ignoring stray file %q", path)
			return nil
		}
		ret = append(ret, digest)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore.FSStore.List: %w", repoerr.Wrap(repoerr.ErrStorageUnavailable, err))
	}
	sortDigests(ret)
	return ret, nil
}
