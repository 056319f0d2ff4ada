package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nickyhof/AdOrchDB/config"
	"github.com/nickyhof/AdOrchDB/logging"
	"github.com/nickyhof/AdOrchDB/metrics"
	"github.com/nickyhof/AdOrchDB/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		schedule    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the SLA monitor and serve Prometheus metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if schedule != "" {
				cfg.SLASchedule = schedule
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}

			app := fx.New(monitorModule(cfg, rootOpts.Memory))

			startCtx, cancel := context.WithTimeout(cmd.Context(), app.StartTimeout())
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return err
			}

			select {
			case <-app.Done():
			case <-cmd.Context().Done():
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
			defer cancel()
			return app.Stop(stopCtx)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression for the SLA check (overrides ADORCH_SLA_SCHEDULE)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address (overrides ADORCH_METRICS_ADDR)")
	return cmd
}

// monitorModule wires the monitor daemon: config, logger, store session,
// SLA monitor and metrics server.
func monitorModule(cfg *config.Config, memory bool) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			logging.New,
			func(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*session, error) {
				s, err := openSession(cfg, logger, memory)
				if err != nil {
					return nil, err
				}
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						defer s.close()
						_, err := s.db.Save("monitor shutdown")
						return err
					},
				})
				return s, nil
			},
			func(s *session) *workflow.Engine { return s.workflow },
			func(engine *workflow.Engine, cfg *config.Config, logger *zap.Logger) (*workflow.SLAMonitor, error) {
				return workflow.NewSLAMonitor(engine, cfg.SLASchedule, cfg.SLAHorizon, logger.Named("sla"))
			},
			newMetricsServer,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(startSLAMonitor, startMetricsServer),
	)
}

func startSLAMonitor(lc fx.Lifecycle, monitor *workflow.SLAMonitor, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := monitor.RunOnce(ctx); err != nil {
				logger.Error("initial SLA check failed", zap.Error(err))
			}
			return monitor.Start()
		},
		OnStop: func(ctx context.Context) error {
			monitor.Stop()
			return nil
		},
	})
}

func newMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func startMetricsServer(lc fx.Lifecycle, server *http.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if server.Addr == "" {
				logger.Info("metrics server disabled")
				return nil
			}

			listener, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return fmt.Errorf("metrics listen on %s: %w", server.Addr, err)
			}

			go func() {
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server failed", zap.Error(err))
				}
			}()
			logger.Info("metrics server listening", zap.String("addr", listener.Addr().String()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if server.Addr == "" {
				return nil
			}
			return server.Shutdown(ctx)
		},
	})
}
