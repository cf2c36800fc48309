// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datawire/pkgrepo/pkg/cliutil"
	"github.com/datawire/pkgrepo/pkg/repoindex"
)

func init() {
	cmd := &cobra.Command{
		Use:   "delete [flags] PACKAGE VERSION FILENAME",
		Short: "Remove a distribution file from the repository",
		Long: "Remove an artifact from the index.  Its blob is deleted too, unless another " +
			"artifact has the same content.  Conda channels keep a record of the file in the " +
			"\"removed\" list of repodata.json.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			repo, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			rec, delErr := repo.coord.Delete(ctx, repoindex.Key{
				Name:     args[0],
				Version:  args[1],
				Filename: args[2],
			})
			if rec != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tdeleted\n", rec.Key, rec.Digest)
			}
			// The index may have changed even if reclaiming the blob failed.
			if err := repo.close(ctx); err != nil && delErr == nil {
				return err
			}
			return delErr
		},
	}
	argparser.AddCommand(cmd)
}
