// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package config holds the process-wide, read-only settings assembled once
// at startup: multicast endpoints, the preset library directory, the
// per-user mode-table override path, and the status-service update
// interval. This replaces the module-level globals the Design Notes guide
// away from (spec.md §9).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUpdateInterval is the status-service cycle length when the config
// file doesn't override it (spec.md §6 "Update_interval default 100ms").
const DefaultUpdateInterval = 100 * time.Millisecond

// File is the on-disk shape of the optional YAML daemon config file; zero
// values mean "use the built-in default" for every field.
type File struct {
	Libdir         string        `yaml:"libdir"`
	PresetFile     string        `yaml:"preset_file"`
	Input          string        `yaml:"input"`
	Output         string        `yaml:"output"`
	Metadata       string        `yaml:"metadata"`
	Status         string        `yaml:"status"`
	Interface      string        `yaml:"interface"`
	TTL            int           `yaml:"ttl"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// Config is the resolved, read-only configuration record handed to every
// component at startup.
type Config struct {
	Libdir         string
	PresetFile     string
	InputAddr      string
	OutputAddr     string
	MetadataAddr   string
	StatusAddr     string
	Interface      string
	TTL            int
	UpdateInterval time.Duration
	Verbose        bool
	Dump           bool
}

// Load reads an optional YAML config file at path (skipped silently if
// path is empty or the file doesn't exist) and layers it under the
// built-in defaults; statusAddr, when non-empty, is the positional status
// multicast address from the command line (spec.md §6) and always wins
// over the file's "status" field.
func Load(path, statusAddr string, verbose, dump bool) (Config, error) {
	cfg := Config{
		Libdir:         defaultLibdir(),
		UpdateInterval: DefaultUpdateInterval,
		Verbose:        verbose,
		Dump:           dump,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, applyStatusAddr(&cfg, statusAddr)
			}
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		var f File
		if err := yaml.Unmarshal(data, &f); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
		applyFile(&cfg, f)
	}

	return cfg, applyStatusAddr(&cfg, statusAddr)
}

func applyFile(cfg *Config, f File) {
	if f.Libdir != "" {
		cfg.Libdir = f.Libdir
	}
	if f.PresetFile != "" {
		cfg.PresetFile = f.PresetFile
	}
	if f.Input != "" {
		cfg.InputAddr = f.Input
	}
	if f.Output != "" {
		cfg.OutputAddr = f.Output
	}
	if f.Metadata != "" {
		cfg.MetadataAddr = f.Metadata
	}
	if f.Status != "" {
		cfg.StatusAddr = f.Status
	}
	if f.Interface != "" {
		cfg.Interface = f.Interface
	}
	if f.TTL != 0 {
		cfg.TTL = f.TTL
	}
	// A negative update_interval disables periodic status emission (see
	// statussvc.Service.UpdateInterval) and any positive value replaces the
	// default, neither clamped. Zero cannot be told apart from an absent
	// field, so it keeps the default.
	if f.UpdateInterval != 0 {
		cfg.UpdateInterval = f.UpdateInterval
	}
}

func applyStatusAddr(cfg *Config, statusAddr string) error {
	if statusAddr != "" {
		cfg.StatusAddr = statusAddr
	}
	if cfg.StatusAddr == "" {
		return fmt.Errorf("config: no status multicast address given")
	}
	return nil
}

// defaultLibdir mirrors the source's "~/.radiostate" fallback for the
// per-user preset table path, falling back further to the current
// directory when the home directory can't be resolved.
func defaultLibdir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".radiostate"
	}
	return filepath.Join(home, ".radiostate")
}
