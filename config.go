// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/yaml"

	"github.com/datawire/pkgrepo/pkg/blobstore"
	"github.com/datawire/pkgrepo/pkg/metadata"
)

type Config struct {
	// Root is the directory holding the blob store and the index file.
	Root      string             `json:"root"`
	Ecosystem metadata.Ecosystem `json:"ecosystem"`
	BaseURL   string             `json:"baseURL"`
	LogLevel  string             `json:"logLevel"`
	Storage   StorageConfig      `json:"storage"`
}

type StorageConfig struct {
	// Timeout bounds each individual storage call; zero means no bound.
	Timeout metav1.Duration `json:"timeout"`
	Backoff BackoffConfig   `json:"backoff"`
}

type BackoffConfig struct {
	Initial metav1.Duration `json:"initial"`
	Factor  float64         `json:"factor"`
	Jitter  float64         `json:"jitter"`
	Steps   int             `json:"steps"`
	Cap     metav1.Duration `json:"cap"`
}

func defaultConfig() Config {
	return Config{
		Root:      ".",
		Ecosystem: metadata.PyPI,
		LogLevel:  "info",
		Storage: StorageConfig{
			Timeout: metav1.Duration{Duration: 30 * time.Second},
			Backoff: BackoffConfig{
				Initial: metav1.Duration{Duration: blobstore.DefaultBackoff.Duration},
				Factor:  blobstore.DefaultBackoff.Factor,
				Jitter:  blobstore.DefaultBackoff.Jitter,
				Steps:   blobstore.DefaultBackoff.Steps,
				Cap:     metav1.Duration{Duration: blobstore.DefaultBackoff.Cap},
			},
		},
	}
}

// loadConfig reads a YAML config file over the defaults.  An empty filename, or a file that
// doesn't exist when it wasn't asked for explicitly, leaves the defaults alone.
func loadConfig(filename string, explicit bool) (*Config, error) {
	cfg := defaultConfig()
	if filename == "" {
		return &cfg, cfg.validate()
	}
	bs, err := os.ReadFile(filename)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &cfg, cfg.validate()
		}
		return nil, err
	}
	if err := yaml.Unmarshal(bs, &cfg, yaml.DisallowUnknownFields); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	eco, err := metadata.ParseEcosystem(string(cfg.Ecosystem))
	if err != nil {
		return err
	}
	cfg.Ecosystem = eco
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.Root == "" {
		return errors.New("root: must not be empty")
	}
	b := cfg.Storage.Backoff
	if b.Steps < 1 {
		return fmt.Errorf("storage.backoff.steps: must be at least 1, got %d", b.Steps)
	}
	if b.Factor < 0 || b.Jitter < 0 {
		return errors.New("storage.backoff: factor and jitter must not be negative")
	}
	if cfg.Storage.Timeout.Duration < 0 {
		return errors.New("storage.timeout: must not be negative")
	}
	return nil
}

// applyFlags overrides config fields with any flags that were set on the command line.
func (cfg *Config) applyFlags(flags *pflag.FlagSet) error {
	var err error
	set := func(name string, fn func(string)) {
		if err != nil || !flags.Changed(name) {
			return
		}
		var val string
		val, err = flags.GetString(name)
		if err == nil {
			fn(val)
		}
	}
	set("root", func(v string) { cfg.Root = v })
	set("ecosystem", func(v string) { cfg.Ecosystem = metadata.Ecosystem(v) })
	set("base-url", func(v string) { cfg.BaseURL = v })
	set("log-level", func(v string) { cfg.LogLevel = v })
	if err != nil {
		return err
	}
	if flags.Changed("storage-timeout") {
		d, err := flags.GetDuration("storage-timeout")
		if err != nil {
			return err
		}
		cfg.Storage.Timeout.Duration = d
	}
	return cfg.validate()
}

func (cfg *Config) backoff() wait.Backoff {
	b := cfg.Storage.Backoff
	return wait.Backoff{
		Duration: b.Initial.Duration,
		Factor:   b.Factor,
		Jitter:   b.Jitter,
		Steps:    b.Steps,
		Cap:      b.Cap.Duration,
	}
}
