// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sanctumlabs/nuum/internal/version"
)

var (
	dbPath           string
	envFile          string
	pluginConfigPath string
	modelTier        string
	development      bool
)

var rootCmd = &cobra.Command{
	Use:     "nuum",
	Short:   "Nuum - an embedded conversational agent engine with continuous memory",
	Long:    `Nuum runs an agent with a three-tier memory model (temporal log, present state, long-term knowledge tree) that persists across process restarts in a single embedded database file.`,
	Version: version.Get(),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "agent database path (default: $AGENT_DB or nuum.db)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file to load before reading environment variables")
	rootCmd.PersistentFlags().StringVar(&pluginConfigPath, "plugin-config", "", "optional MCP plugin server JSON config file")
	rootCmd.PersistentFlags().StringVar(&modelTier, "model-tier", "workhorse", "model tier to use: reasoning|workhorse|fast")
	rootCmd.PersistentFlags().BoolVar(&development, "dev", false, "enable development logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
