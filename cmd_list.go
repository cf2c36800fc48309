// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/datawire/pkgrepo/pkg/cliutil"
)

type listedFile struct {
	Filename   string `yaml:"filename"`
	Digest     string `yaml:"digest"`
	Size       int64  `yaml:"size"`
	UploadTime string `yaml:"upload_time"`
}

type listedVersion struct {
	Version string       `yaml:"version"`
	Files   []listedFile `yaml:"files"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "list [flags] [PACKAGE]",
		Short: "List the packages in the repository, or the versions of one package",
		Args:  cliutil.WrapPositionalArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			repo, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			snap := repo.snapshot()

			if len(args) == 0 {
				for _, name := range snap.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			versions := snap.Lookup(args[0])
			if len(versions) == 0 {
				return fmt.Errorf("package %q is not in the repository", args[0])
			}
			listed := make([]listedVersion, 0, len(versions))
			for _, ver := range versions {
				lv := listedVersion{Version: ver.Version}
				for _, rec := range ver.Artifacts {
					lv.Files = append(lv.Files, listedFile{
						Filename:   rec.Key.Filename,
						Digest:     rec.Digest.String(),
						Size:       rec.Size,
						UploadTime: rec.UploadTime.UTC().Format(time.RFC3339),
					})
				}
				listed = append(listed, lv)
			}
			bs, err := yaml.Marshal(listed)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(bs)
			return err
		},
	}
	argparser.AddCommand(cmd)
}
