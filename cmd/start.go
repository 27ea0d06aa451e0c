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
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blnkfinance/inspectsync"
	"github.com/blnkfinance/inspectsync/api"
	"github.com/blnkfinance/inspectsync/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newAPIServer(p *inspectsync.Pipeline, cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewAPI(p).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func startServer(server *http.Server) {
	logrus.Infof("Starting server on http://localhost%s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Error("API server stopped")
	}
}

func intervalFor(cnf *config.Configuration, minutes int) time.Duration {
	if minutes <= 0 {
		minutes = cnf.Schedule.IntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// startCommands runs the pipeline on a schedule until STOP or a signal.
func startCommands(app *appInstance) *cobra.Command {
	var intervalMinutes int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the inspection sync service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			runner := inspectsync.NewCycleRunner(app.pipeline, intervalFor(app.cnf, intervalMinutes))

			var server *http.Server
			if app.cnf.Server.Enabled {
				server = newAPIServer(app.pipeline, app.cnf.Server)
				go startServer(server)
			}

			runner.Start(ctx)

			go newConsole(cmd.InOrStdin(), cmd.OutOrStdout(), app.configFile, cancel).run(ctx)

			<-ctx.Done()
			logrus.Info("Shutting down")
			runner.Stop()

			if server != nil {
				shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
				defer done()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logrus.WithError(err).Warn("API server shutdown")
				}
			}

			// A cycle triggered over the API may outlive the server shutdown.
			app.pipeline.Drain()
			return nil
		},
	}

	cmd.Flags().IntVar(&intervalMinutes, "interval", 0, "minutes between cycles (defaults to schedule.interval_minutes)")
	return cmd
}
