/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

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
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/valpere/studyspark/internal/logger"
	"github.com/valpere/studyspark/internal/metrics"
	"github.com/valpere/studyspark/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Start the HTTP API used by the web app.

Runs and conversation turns stream their events as server-sent events.
Prometheus metrics are exposed on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if logger.ParseLevel(cfg.Log.Level) != logger.DebugLevel {
			gin.SetMode(gin.ReleaseMode)
		}

		m := metrics.New()
		p, err := buildPipeline(pipelineOptions{history: true, cache: true, metrics: m})
		if err != nil {
			return err
		}
		defer p.Close()

		srv := server.New(server.Options{
			Service:  p.service,
			Runner:   p.orch,
			Resolver: p.fetcher,
			History:  p.db,
			Metrics:  m,
			Logger:   logger.GetDefault(),
		})
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default :8080)")
}
