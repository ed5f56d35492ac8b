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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sanctumlabs/nuum/internal/log"
	"github.com/sanctumlabs/nuum/internal/wire"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the host stdio protocol (newline-delimited JSON) for embedding",
	Long: `Speaks the host wire protocol over stdin/stdout: reads {"type":"user",...}
and {"type":"control",...} lines, and writes system, assistant, and result
lines back, each tagged with the database's stable session id.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	logger, _ := log.New(log.Config{Development: development, Name: "nuum-wire"})
	host := wire.NewHost(a, os.Stdin, os.Stdout, logger)
	return host.Serve(ctx)
}
