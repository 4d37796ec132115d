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
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/NickDickinsonWilde/pkgtrust/metadata/client"
	"github.com/NickDickinsonWilde/pkgtrust/metadata/config"
	"github.com/NickDickinsonWilde/pkgtrust/metadata/fetcher"
)

var rootPath string

var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"i"},
	Short:   "Pin trust to a root metadata file",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		if RepositoryURL == "" {
			fmt.Println("Error: required flag(s) \"url\" not set")
			os.Exit(1)
		}
		return InitializeCmd()
	},
}

func init() {
	initCmd.Flags().StringVarP(&rootPath, "file", "f", "", "location of the trusted root metadata file")
	rootCmd.AddCommand(initCmd)
}

func InitializeCmd() error {
	setupLogging("init")

	e, err := env(true)
	if err != nil {
		return err
	}

	cfg := config.New()
	var rootBytes []byte
	if rootPath == "" {
		// without an explicit file, bootstrap from version 1 served by
		// the repository itself; this trades trust-on-first-use for
		// convenience and a warning
		log.Warnf("no root file given, fetching version 1 from %s", RepositoryURL)
		f := &fetcher.HTTPFetcher{Timeout: cfg.HTTPTimeout, UserAgent: cfg.UserAgent}
		rootBytes, err = f.DownloadFile(strings.TrimSuffix(RepositoryURL, "/")+"/1.root.json", cfg.RootMaxLength)
		if err != nil {
			return fmt.Errorf("failed to fetch initial root: %w", err)
		}
	} else {
		rootBytes, err = os.ReadFile(rootPath)
		if err != nil {
			return fmt.Errorf("failed to read trusted root: %w", err)
		}
	}

	if _, err := client.NewWithRoot(cfg, rootBytes, e.MetadataDir, RepositoryURL, "", nil); err != nil {
		return fmt.Errorf("root metadata not acceptable: %w", err)
	}

	fmt.Printf("Initialized trust in %s\n", e.MetadataDir)
	return nil
}
