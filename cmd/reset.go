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
	"errors"
	"fmt"

	"github.com/blnkfinance/inspectsync/config"
	"github.com/spf13/cobra"
)

type resetFlags struct {
	password        string
	apiKey          string
	apiSecret       string
	erpURL          string
	machineFolder   string
	registryFolders string
}

func (f resetFlags) provided() bool {
	return f.password != ""
}

func (f resetFlags) input() config.ResetInput {
	return config.ResetInput{
		APIKey:            f.apiKey,
		APISecret:         f.apiSecret,
		ERPURL:            f.erpURL,
		MachineDataFolder: f.machineFolder,
		RegistryFolders:   splitList(f.registryFolders),
	}
}

// resetCommands replaces the ERP credentials and folders. With --password it
// runs on flags alone, otherwise it prompts on stdin.
func resetCommands(app *appInstance) *cobra.Command {
	var flags resetFlags

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "reset ERP credentials and folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cnf *config.Configuration
				err error
			)
			if flags.provided() {
				if !config.VerifyResetPassword(flags.password) {
					return errors.New("incorrect reset password")
				}
				cnf, err = config.Reset(app.configFile, flags.input())
			} else {
				cnf, err = resetConfig(newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()), app.configFile)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration reset to version %d.\n", cnf.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.password, "password", "", "reset password")
	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "ERP API key")
	cmd.Flags().StringVar(&flags.apiSecret, "api-secret", "", "ERP API secret")
	cmd.Flags().StringVar(&flags.erpURL, "erp-url", "", "ERP resource URL")
	cmd.Flags().StringVar(&flags.machineFolder, "machine-folder", "", "machine data folder")
	cmd.Flags().StringVar(&flags.registryFolders, "registry-folders", "", "comma separated registry folders")
	return cmd
}
