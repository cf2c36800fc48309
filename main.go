// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Command pkgrepo manages a local PyPI or conda package repository.
package main

import (
	"context"
	"os"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/datawire/pkgrepo/pkg/cliutil"
)

const defaultConfigFile = "pkgrepo.yml"

var argparser = &cobra.Command{
	Use:   "pkgrepo {[flags]|SUBCOMMAND...}",
	Short: "Manage a local PyPI or conda package repository",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,

	SilenceErrors: true, // cliutil.Report
	SilenceUsage:  true,
}

func init() {
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)

	addGlobalFlags(argparser.PersistentFlags())
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.String("config", defaultConfigFile, "Read configuration from `FILE`")
	flags.String("root", "", "Keep the repository in `DIR`")
	flags.String("ecosystem", "", "The repository's ecosystem, `pypi` or `conda`")
	flags.String("base-url", "", "Prefix file and project links with `URL`")
	flags.String("log-level", "", "Log at `LEVEL` (error, warn, info, debug, trace)")
	flags.Duration("storage-timeout", 0, "Give up on a single storage call after `DURATION`")
}

// setup loads the configuration for cmd, and returns a context with a logger configured by it.
func setup(cmd *cobra.Command) (context.Context, *Config, error) {
	flags := cmd.Flags()
	filename, err := flags.GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(filename, flags.Changed("config"))
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.applyFlags(flags); err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
	})
	level, _ := logrus.ParseLevel(cfg.LogLevel) // already validated
	logger.SetLevel(level)

	ctx := dlog.WithLogger(cmd.Context(), dlog.WrapLogrus(logger))
	ctx = dlog.WithField(ctx, "ecosystem", cfg.Ecosystem)
	return ctx, cfg, nil
}

func main() {
	ctx := context.Background()

	err := argparser.ExecuteContext(ctx)
	if code := cliutil.Report(argparser.ErrOrStderr(), argparser, err); code != 0 {
		os.Exit(code)
	}
}
