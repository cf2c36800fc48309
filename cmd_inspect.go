// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/datawire/pkgrepo/pkg/cliutil"
	"github.com/datawire/pkgrepo/pkg/metadata"
)

func init() {
	var flags struct {
		NoValidate bool
	}
	cmd := &cobra.Command{
		Use:   "inspect [flags] FILE >METADATA.yml",
		Short: "Dump the metadata of a distribution file",
		Long: "Extract the metadata of FILE the same way that `pkgrepo upload` does, and dump " +
			"it as YAML.  Nothing is written to the repository.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			filename := filepath.Base(args[0])
			md, err := metadata.Extract(ctx, cfg.Ecosystem, filename, content)
			if err != nil {
				return err
			}
			if !flags.NoValidate {
				if err := metadata.Validate(md, filename); err != nil {
					return err
				}
			}

			bs, err := yaml.Marshal(md)
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(bs); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.NoValidate, "no-validate", false,
		"Dump the metadata even if it doesn't pass validation")

	argparser.AddCommand(cmd)
}
