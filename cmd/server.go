package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hygaudit/internal/render"
	"github.com/ziadkadry99/hygaudit/internal/server"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the audit HTTP server",
	Long: `Starts the hygaudit server with the REST API for audits, answers, checklists
and report versions, plus the live report feed at /ws/reports.

Report versions left pending or generating by an earlier process are marked
as failed on start so their audits can be completed again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		port := a.cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = serverPort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if _, err := a.jobs.Recover(ctx); err != nil {
			return fmt.Errorf("recovering interrupted reports: %w", err)
		}
		if _, err := a.dispatcher.Redeliver(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("redelivering pending notifications")
		}

		renderer, err := render.New()
		if err != nil {
			return fmt.Errorf("creating renderer: %w", err)
		}

		srv := server.New(server.Config{
			Port:        port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		}, server.Deps{
			DB:            a.db,
			Audits:        a.audits,
			Checklists:    a.checklists,
			Auditors:      a.auditors,
			Activity:      a.activity,
			Notifications: a.notifications,
			Dispatcher:    a.dispatcher,
			Hub:           a.hub,
			Jobs:          a.jobs,
			Renderer:      renderer,
			Logger:        a.logger,
		})

		// Graceful shutdown. The database stays open until running jobs
		// have stored their outcome.
		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			<-ctx.Done()
			a.logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn().Err(err).Msg("shutdown incomplete")
			}
		}()

		a.logger.Info().
			Str("version", Version).
			Int("port", port).
			Str("database", a.cfg.Database.Path).
			Str("generation_mode", string(a.cfg.Generation.Mode)).
			Msg("hygaudit server starting")

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		<-stopped
		return nil
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serverCmd)
}
