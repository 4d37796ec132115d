// Copyright 2026 The pkgtrust Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License
//
// SPDX-License-Identifier: Apache-2.0
//

package cmd

import (
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/go-logr/stdr"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/NickDickinsonWilde/pkgtrust/metadata"
)

var Verbosity bool
var RepositoryURL string

var rootCmd = &cobra.Command{
	Use:   "pkgtrust",
	Short: "pkgtrust - verify and download package repository content over signed metadata",
	Long: `pkgtrust is a client for repositories publishing signed trust metadata.

It pins trust to a root document, keeps that trust current, and only
hands out target files whose length and hashes were verified against
the trusted metadata chain.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			_ = cmd.Help()
			os.Exit(0)
		}
	},
}

func Execute() {
	rootCmd.PersistentFlags().BoolVarP(&Verbosity, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&RepositoryURL, "url", "u", "", "URL the repository serves metadata from")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging wires verification diagnostics to stdout and sets the
// CLI log level.
func setupLogging(prefix string) {
	metadata.SetLogger(stdr.New(stdlog.New(os.Stdout, prefix, stdlog.LstdFlags)))
	if Verbosity {
		stdr.SetVerbosity(5)
		log.SetLevel(log.DebugLevel)
	}
}

type localEnv struct {
	MetadataDir string
	DownloadDir string
}

// env returns the per-working-directory state locations, creating them
// when create is set.
func env(create bool) (*localEnv, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	e := &localEnv{
		MetadataDir: filepath.Join(cwd, "metadata"),
		DownloadDir: filepath.Join(cwd, "download"),
	}
	if create {
		if err := os.MkdirAll(e.MetadataDir, 0750); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(e.DownloadDir, 0750); err != nil {
			return nil, err
		}
	}
	return e, nil
}
