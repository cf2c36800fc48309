// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"path/filepath"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/pkgrepo/pkg/cliutil"
	"github.com/datawire/pkgrepo/pkg/fsutil"
	"github.com/datawire/pkgrepo/pkg/metadata"
	"github.com/datawire/pkgrepo/pkg/repoindex"
	"github.com/datawire/pkgrepo/pkg/responder"
)

func init() {
	var flags struct {
		Accept    string
		OutputDir string
	}
	cmd := &cobra.Command{
		Use:   "index [flags] [PROJECT|SUBDIR]",
		Short: "Render the repository's read-side pages",
		Long: "Render the page a client would get for the given Accept header.  For a PyPI " +
			"repository that is the simple index (PEP 503 HTML or PEP 691 JSON), or a project " +
			"page if PROJECT is given.  For a conda channel that is the repodata.json of " +
			"SUBDIR." +
			"\n\n" +
			"With --output-dir, every page is written to a static tree under DIR instead: " +
			"DIR/index.html and DIR/PROJECT/index.html (or index.json) for PyPI, and " +
			"DIR/SUBDIR/repodata.json for conda.",
		Example: "  pkgrepo index --accept='application/vnd.pypi.simple.v1+json' requests\n" +
			"  pkgrepo --base-url=https://pypi.example.com/packages index --output-dir=public/simple\n" +
			"  pkgrepo --ecosystem=conda index noarch",
		Args: cliutil.WrapPositionalArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.OutputDir != "" && len(args) > 0 {
				return cliutil.FlagErrorFunc(cmd, errors.New("--output-dir renders every page; do not name one"))
			}
			ctx, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			repo, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			snap := repo.snapshot()
			rsp := repo.responder()

			if flags.OutputDir != "" {
				pages, err := renderAll(rsp, snap, flags.Accept)
				if err != nil {
					return err
				}
				for relpath, page := range pages {
					dlog.Debugf(ctx, "writing %q (%s)", relpath, page.ContentType)
					if err := fsutil.WriteFileAtomic(filepath.Join(flags.OutputDir, relpath), page.Body, 0o644); err != nil {
						return err
					}
				}
				dlog.Infof(ctx, "wrote %d pages for generation %d to %q",
					len(pages), snap.Generation(), flags.OutputDir)
				return nil
			}

			var page *responder.Response
			switch {
			case cfg.Ecosystem == metadata.Conda && len(args) == 0:
				return cliutil.FlagErrorFunc(cmd, errors.New("a conda channel needs a SUBDIR"))
			case cfg.Ecosystem == metadata.Conda:
				page, err = rsp.Repodata(snap, args[0], flags.Accept)
			case len(args) == 0:
				page, err = rsp.Index(snap, flags.Accept)
			default:
				page, err = rsp.Project(snap, args[0], flags.Accept)
			}
			if err != nil {
				return err
			}
			dlog.Debugf(ctx, "Content-Type: %s", page.ContentType)
			_, err = cmd.OutOrStdout().Write(page.Body)
			return err
		},
	}
	cmd.Flags().StringVar(&flags.Accept, "accept", "",
		"Render the page as a client sending `Accept: MEDIA_RANGES` would see it")
	cmd.Flags().StringVar(&flags.OutputDir, "output-dir", "",
		"Write every page to a static tree under `DIR`")

	argparser.AddCommand(cmd)
}

// renderAll renders every page of the repository, keyed by the path it should be served at.
func renderAll(rsp responder.Responder, snap *repoindex.Snapshot, accept string) (map[string]*responder.Response, error) {
	pages := make(map[string]*responder.Response)
	if snap.Ecosystem() == metadata.Conda {
		for _, subdir := range responder.Subdirs(snap) {
			page, err := rsp.Repodata(snap, subdir, accept)
			if err != nil {
				return nil, err
			}
			pages[filepath.Join(subdir, "repodata.json")] = page
		}
		return pages, nil
	}

	pageName := func(page *responder.Response) string {
		if page.ContentType == responder.ContentTypeSimpleJSON {
			return "index.json"
		}
		return "index.html"
	}
	page, err := rsp.Index(snap, accept)
	if err != nil {
		return nil, err
	}
	pages[pageName(page)] = page
	for _, name := range snap.Names() {
		page, err := rsp.Project(snap, name, accept)
		if err != nil {
			return nil, err
		}
		pages[filepath.Join(name, pageName(page))] = page
	}
	return pages, nil
}
