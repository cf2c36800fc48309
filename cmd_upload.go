// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/pkgrepo/pkg/cliutil"
	"github.com/datawire/pkgrepo/pkg/metadata"
	"github.com/datawire/pkgrepo/pkg/upload"
)

func init() {
	var flags struct {
		Name    string
		Version string
	}
	cmd := &cobra.Command{
		Use:   "upload [flags] FILE...",
		Short: "Add distribution files to the repository",
		Long: "Extract and validate the metadata of each FILE, store its content, and record it " +
			"in the index.  Files are uploaded concurrently; a failure of one does not stop " +
			"the others.  Re-uploading a file that is already in the index with the same " +
			"content is not an error." +
			"\n\n" +
			"The --name and --version flags declare what the upload is expected to contain; " +
			"the upload is rejected if the file's own metadata disagrees.",
		Example: "  pkgrepo upload dist/*.whl dist/*.tar.gz\n" +
			"  pkgrepo --ecosystem=conda upload --name=numpy linux-64/numpy-1.26.4-py312_0.conda",
		Args: cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (flags.Name != "" || flags.Version != "") && len(args) > 1 {
				return cliutil.FlagErrorFunc(cmd, errors.New("--name and --version may only be used with a single FILE"))
			}
			ctx, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			repo, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}

			errs := uploadAll(ctx, repo.coord, args, metadata.Declared{
				Name:    flags.Name,
				Version: flags.Version,
			}, cmd.OutOrStdout())
			if err := repo.close(ctx); err != nil {
				errs = append(errs, err)
			}
			if len(errs) > 0 {
				return errs
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "",
		"Reject the upload unless the package is named `NAME`")
	cmd.Flags().StringVar(&flags.Version, "version", "",
		"Reject the upload unless the package version is `VERSION`")

	argparser.AddCommand(cmd)
}

// uploadAll uploads the files concurrently, reporting each one that succeeds to out, and then
// reclaims any blobs that the failed ones left in storage.
func uploadAll(ctx context.Context, coord *upload.Coordinator, filenames []string, declared metadata.Declared, out io.Writer) derror.MultiError {
	var (
		mu   sync.Mutex
		errs derror.MultiError
	)
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
	})
	for _, filename := range filenames {
		filename := filename
		grp.Go(filepath.Base(filename), func(ctx context.Context) error {
			res, err := uploadFile(ctx, coord, filename, declared)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			status := "created"
			if !res.Created {
				status = "unchanged"
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", res.Record.Key, res.Record.Digest, status)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		errs = append(errs, err)
	}

	reclaimed, err := coord.Sweep(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	if len(reclaimed) > 0 {
		dlog.Infof(ctx, "reclaimed %d blobs left behind by failed uploads", len(reclaimed))
	}
	return errs
}

func uploadFile(ctx context.Context, coord *upload.Coordinator, filename string, declared metadata.Declared) (*upload.Result, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	dlog.Debugf(ctx, "read %d bytes from %q", len(content), filename)
	return coord.Upload(ctx, upload.Request{
		Filename: filepath.Base(filename),
		Content:  content,
		Declared: declared,
	})
}
