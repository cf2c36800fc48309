// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/cliutil"
	"github.com/datawire/pkgrepo/pkg/fsutil"
)

func init() {
	var flags struct {
		Output string
	}
	cmd := &cobra.Command{
		Use:   "fetch [flags] PACKAGE VERSION FILENAME",
		Short: "Read a distribution file back out of the repository",
		Long: "Look up an artifact in the index and write its content to stdout (or to the " +
			"--output file).  The content is checked against its recorded digest before it " +
			"is written.",
		Example: "  pkgrepo fetch requests 2.31.0 requests-2.31.0-py3-none-any.whl -o /tmp/requests.whl",
		Args:    cliutil.WrapPositionalArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			repo, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			rec, err := repo.lookup(args[0], args[1], args[2])
			if err != nil {
				return err
			}

			var content []byte
			err = blobstore.Retry(ctx, repo.cfg.backoff(), func(ctx context.Context) error {
				var err error
				content, err = repo.coord.Store().Get(ctx, rec.Digest)
				return err
			})
			if err != nil {
				return err
			}

			if flags.Output == "" || flags.Output == "-" {
				_, err = cmd.OutOrStdout().Write(content)
				return err
			}
			return fsutil.WriteFileAtomic(flags.Output, content, 0o644)
		},
	}
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "",
		"Write the file to `PATH` instead of stdout")

	argparser.AddCommand(cmd)
}
