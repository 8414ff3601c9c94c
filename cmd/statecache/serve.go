package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/soroban-registry/statecache"
	"github.com/soroban-registry/statecache/fx/statecachefx"
	"github.com/soroban-registry/statecache/internal/config"
	"github.com/soroban-registry/statecache/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the contract state HTTP service",
	Long: `Run the HTTP service in the foreground.

On SIGINT or SIGTERM the service stops admitting requests (503), waits for
in-flight requests up to shutdown.timeout, then exits with status 0 when
every request finished or 1 when the wait was cut short.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var listenAddr string

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides the config file)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}

	log, err := cfg.Log.Logger(verbose)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	var client *statecache.Client
	app := fx.New(
		fx.Supply(cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.StopTimeout(cfg.Shutdown.Timeout+5*time.Second),
		statecachefx.Module,
		fx.Invoke(registerServer),
		fx.Populate(&client),
	)

	startCtx, cancel := context.WithTimeout(cmd.Context(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	sig := <-app.Wait()
	log.Info("shutdown signal received",
		zap.Stringer("signal", sig.Signal),
		zap.Int64("in_flight", client.Lifecycle().InFlight()),
	)

	res := client.Shutdown(context.Background())

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		log.Warn("stopping service", zap.Error(err))
	}

	if sig.ExitCode != 0 {
		return exitCode(sig.ExitCode)
	}
	if code := res.Outcome.ExitCode(); code != 0 {
		return fmt.Errorf("shutdown forced with %d requests in flight: %w", res.Remaining, exitCode(code))
	}
	return nil
}

type serverParams struct {
	fx.In

	Config     *config.Config
	Client     *statecache.Client
	Registry   *prometheus.Registry
	Logger     *zap.Logger
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
}

func registerServer(p serverParams) {
	srv := &http.Server{
		Addr: p.Config.Listen,
		Handler: httpapi.New(p.Client,
			httpapi.WithLogger(p.Logger),
			httpapi.WithGatherer(p.Registry),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", srv.Addr, err)
			}
			p.Logger.Info("listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("http server failed", zap.Error(err))
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
