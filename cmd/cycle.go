/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// cycleCommands runs a single cycle and prints its result.
func cycleCommands(app *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "run one sync cycle now and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			result, err := app.pipeline.RunCycle(ctx)
			if err != nil {
				return fmt.Errorf("cycle failed: %w", err)
			}

			data, err := json.MarshalIndent(result, "", "    ")
			if err != nil {
				return fmt.Errorf("error printing cycle result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	return cmd
}
