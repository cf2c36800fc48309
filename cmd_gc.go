// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datawire/pkgrepo/pkg/cliutil"
)

func init() {
	cmd := &cobra.Command{
		Use:   "gc [flags]",
		Short: "Delete blobs that no artifact in the index refers to",
		Long: "Walk the blob store and delete every blob that the index does not reference.  " +
			"Such blobs are left behind by uploads that failed after storing their content, " +
			"and by deletions whose cleanup failed.",
		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			repo, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			reclaimed, err := repo.coord.SweepAll(ctx)
			for _, digest := range reclaimed {
				fmt.Fprintln(cmd.OutOrStdout(), digest)
			}
			return err
		},
	}
	argparser.AddCommand(cmd)
}
