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
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/blnkfinance/inspectsync"
	"github.com/blnkfinance/inspectsync/config"
	"github.com/blnkfinance/inspectsync/internal/notification"
	"github.com/blnkfinance/inspectsync/internal/traces"
	"github.com/blnkfinance/inspectsync/ledger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Inspectsync is the CLI application, wrapping the root cobra command.
type Inspectsync struct {
	cmd *cobra.Command
}

// appInstance holds what every subcommand needs once preRun has run.
type appInstance struct {
	configFile string
	cnf        *config.Configuration
	store      ledger.Store
	pipeline   *inspectsync.Pipeline
	logFile    *os.File
	shutdown   traces.ShutdownFunc
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration, routes logging to the console and the log
// file, and opens the ledger. A missing config file starts interactive setup.
func preRun(app *appInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(app.configFile)
		if err != nil {
			if config.Exists(app.configFile) {
				return fmt.Errorf("error loading config: %w", err)
			}
			logrus.Warnf("No usable configuration (%v). Starting setup.", err)
			if err := setupConfig(cmd.InOrStdin(), cmd.OutOrStdout(), app.configFile); err != nil {
				return err
			}
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		logFile, err := setupLogging(cnf.LogFile)
		if err != nil {
			return err
		}

		if err := config.EnsureFolders(cnf); err != nil {
			notification.NotifyError(err)
			return err
		}

		shutdown, err := traces.SetupOTelSDK(context.Background(), "inspectsync", cnf.Telemetry)
		if err != nil {
			return fmt.Errorf("error setting up OTel SDK: %w", err)
		}
		app.shutdown = shutdown

		store, err := ledger.NewStore(cnf)
		if err != nil {
			notification.NotifyError(err)
			return fmt.Errorf("error opening ledger: %w", err)
		}

		app.cnf = cnf
		app.store = store
		app.logFile = logFile
		app.pipeline = inspectsync.NewPipeline(store)
		return nil
	}
}

func postRun(app *appInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if app.shutdown != nil {
			if err := app.shutdown(context.Background()); err != nil {
				logrus.WithError(err).Warn("Error shutting down tracing")
			}
		}
		if app.store != nil {
			if err := app.store.Close(); err != nil {
				logrus.WithError(err).Warn("Error closing ledger")
			}
		}
		if app.logFile != nil {
			return app.logFile.Close()
		}
		return nil
	}
}

// setupLogging sends logrus and the standard logger to stdout and the
// persistent log file.
func setupLogging(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating log folder: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	log.SetOutput(logrus.StandardLogger().Writer())
	return f, nil
}

// NewCLI builds the root command and its subcommands.
func NewCLI() *Inspectsync {
	app := &appInstance{}

	var rootCmd = &cobra.Command{
		Use:           "inspectsync",
		Short:         "Inspection data synchroniser between test machines and the ERP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run:           func(cmd *cobra.Command, args []string) { _ = cmd.Help() },
	}

	rootCmd.PersistentFlags().StringVar(&app.configFile, "config", "./inspectsync.json", "Configuration file for inspectsync")
	rootCmd.PersistentPreRunE = preRun(app)
	rootCmd.PersistentPostRunE = postRun(app)

	rootCmd.AddCommand(startCommands(app))
	rootCmd.AddCommand(cycleCommands(app))
	rootCmd.AddCommand(resetCommands(app))
	rootCmd.AddCommand(migrateCommands(app))

	return &Inspectsync{cmd: rootCmd}
}

func (w Inspectsync) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
