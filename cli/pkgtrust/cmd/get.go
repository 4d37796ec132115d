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
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NickDickinsonWilde/pkgtrust/metadata/client"
)

var targetsURL string

var getCmd = &cobra.Command{
	Use:     "get",
	Aliases: []string{"g"},
	Short:   "Verify a target file against trusted metadata and download it",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if RepositoryURL == "" {
			fmt.Println("Error: required flag(s) \"url\" not set")
			os.Exit(1)
		}
		return GetCmd(args[0])
	},
}

func init() {
	getCmd.Flags().StringVarP(&targetsURL, "targetsURL", "t", "", "URL of where the target files are hosted")
	rootCmd.AddCommand(getCmd)
}

func GetCmd(target string) error {
	setupLogging("get")

	// target files default to living next to the metadata
	if targetsURL == "" {
		targetsURL = RepositoryURL
	}

	e, err := env(true)
	if err != nil {
		return err
	}

	c, err := client.New(nil, e.MetadataDir, RepositoryURL, targetsURL, nil)
	if err != nil {
		return fmt.Errorf("client setup failed (run init first): %w", err)
	}

	targetFile, err := c.VerifyTarget(target)
	if err != nil {
		return fmt.Errorf("target %s not trusted: %w", target, err)
	}

	localPath := filepath.Join(e.DownloadDir, strings.ReplaceAll(target, "/", "_"))
	if data, err := os.ReadFile(localPath); err == nil {
		if err := targetFile.VerifyLengthHashes(data); err == nil {
			fmt.Printf("Target %s is already present at - %s\n", target, localPath)
			return nil
		}
	}

	if err := c.FetchTargetTo(targetFile, localPath, ""); err != nil {
		return fmt.Errorf("failed to download target file %s - %w", target, err)
	}

	fmt.Printf("Successfully downloaded target %s at - %s\n", target, localPath)
	return nil
}
