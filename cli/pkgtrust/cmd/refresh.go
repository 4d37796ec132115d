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

	"github.com/spf13/cobra"

	"github.com/NickDickinsonWilde/pkgtrust/metadata/client"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Bring the trusted metadata up to date with the repository",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		if RepositoryURL == "" {
			fmt.Println("Error: required flag(s) \"url\" not set")
			os.Exit(1)
		}
		return RefreshCmd()
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func RefreshCmd() error {
	setupLogging("refresh")

	e, err := env(false)
	if err != nil {
		return err
	}

	c, err := client.New(nil, e.MetadataDir, RepositoryURL, "", nil)
	if err != nil {
		return fmt.Errorf("client setup failed (run init first): %w", err)
	}
	if err := c.Refresh(); err != nil {
		return fmt.Errorf("failed to refresh trusted metadata: %w", err)
	}

	fmt.Println("Trusted metadata is up to date")
	return nil
}
