package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/api"
	"github.com/sells-group/lead-qualifier/internal/metrics"
	"github.com/sells-group/lead-qualifier/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for feedback, listings and on-demand runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m := metrics.New(metrics.WithProcessCollectors())
		opts := []api.Option{
			api.WithMetrics(m),
			api.WithMode(model.ParseMode(cfg.Server.Mode)),
			api.WithSecret(cfg.Server.Secret),
			api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
			api.WithBaseContext(ctx),
			api.WithCalibrator(buildCalibrator(cfg, st)),
			api.WithLogger(zap.L().With(zap.String("component", "api"))),
		}
		if err := cfg.Validate("qualify"); err != nil {
			zap.L().Warn("serve: on-demand qualification disabled", zap.Error(err))
		} else {
			opts = append(opts, api.WithRunner(buildQualifier(cfg, st, m)))
		}
		server := api.New(st, opts...)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port), zap.String("mode", cfg.Server.Mode))
		err = srv.ListenAndServe()
		stop()
		server.Wait()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
