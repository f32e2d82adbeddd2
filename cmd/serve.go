package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"creatorguard/internal/bootstrap"
	"creatorguard/internal/bootstrap/logging"
	"creatorguard/internal/errs"
	"creatorguard/internal/infrastructure/schedule"
	"creatorguard/internal/transport/httpapi"
	"creatorguard/internal/usecase/moderation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the moderation API and run the worker on its cron schedule",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *moderation.Service) error {
		cfg := app.Config
		if err := cfg.ValidateServe(); err != nil {
			return errs.Wrap(err, "validate serve config")
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}
		noScheduler, _ := cmd.Flags().GetBool("no-scheduler")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		if err := app.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		if cfg.Policy.Watch && strings.TrimSpace(cfg.Policy.File) != "" {
			if err := moderation.WatchPolicyFile(ctx, cfg.Policy.File, app.Policy); err != nil {
				return errs.Wrap(err, "watch policy file")
			}
		}

		if !noScheduler && strings.TrimSpace(cfg.Worker.Schedule) != "" {
			scheduler := schedule.NewScheduler(ctx)
			err := scheduler.Add("moderation-cycle", cfg.Worker.Schedule, func(ctx context.Context) error {
				worker, err := app.NewWorker("")
				if err != nil {
					return err
				}
				_, err = worker.RunCycle(ctx)
				return err
			})
			if err != nil {
				return errs.Wrap(err, "schedule moderation cycle")
			}
			scheduler.Start()
			logging.Info(ctx, "moderation cycle scheduled", slog.String("schedule", cfg.Worker.Schedule))
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.JobTimeout+5*time.Second)
				defer cancel()
				if err := scheduler.Stop(stopCtx); err != nil {
					logging.Warn(ctx, "scheduler stop timed out", slog.Any("err", errs.Loggable(err)))
				}
			}()
		}

		router := httpapi.NewRouter(svc, func(workerID string) (httpapi.QueueWorker, error) {
			worker, err := app.NewWorker(workerID)
			if err != nil {
				return nil, err
			}
			return worker, nil
		}, httpapi.Options{
			Auth: httpapi.AuthConfig{
				JWTSecret:      cfg.Auth.JWTSecret,
				AdminRoles:     cfg.Auth.AdminRoles,
				CronSecret:     cfg.Auth.CronSecret,
				InternalSecret: cfg.Auth.InternalSecret,
			},
			StreamInterval: cfg.HTTP.StreamInterval,
			Health:         app.Health,
		})

		server := httpapi.NewServer(httpapi.ServerConfig{
			Addr:            cfg.HTTP.Addr,
			ReadTimeout:     cfg.HTTP.ReadTimeout,
			WriteTimeout:    cfg.HTTP.WriteTimeout,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		}, router)
		if err := server.Run(ctx); err != nil {
			logging.Error(ctx, "http server failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "run http server")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: http.addr)")
	serveCmd.Flags().Bool("no-scheduler", false, "Do not run the in-process worker schedule; rely on the cron endpoint")
}
