package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	abciserver "github.com/cometbft/cometbft/abci/server"
	"github.com/cometbft/cometbft/libs/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"fleetarbiter/internal/app"
	"fleetarbiter/internal/attest"
	"fleetarbiter/internal/config"
	"fleetarbiter/internal/server"
	"fleetarbiter/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the arbiter over HTTP and, optionally, ABCI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(v, file)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.OutOrStdout())
		},
	}
	if err := config.RegisterFlags(v, cmd.Flags()); err != nil {
		panic(err)
	}
	return cmd
}

// runServe blocks until ctx is cancelled or a listener fails.
func runServe(ctx context.Context, cfg config.Config, logOut io.Writer) error {
	logger, err := newLogger(logOut, cfg.LogLevel)
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, "fleetd", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error("tracing shutdown", "err", err)
		}
	}()

	arb, err := app.New(app.Options{
		Verifier:       attest.DevVerifier{},
		Logger:         logger,
		VictoryTimeout: cfg.VictoryTimeout,
		SweepInterval:  cfg.SweepInterval,
		EventBacklog:   cfg.EventBacklog,
	})
	if err != nil {
		return fmt.Errorf("init arbiter: %w", err)
	}
	logger.Info("using development receipt verifier")

	// The ABCI server starts before anything else so a bad address fails
	// without leaving goroutines behind.
	var abciSrv service.Service
	if cfg.ABCIAddr != "" {
		abciSrv, err = abciserver.NewServer(cfg.ABCIAddr, cfg.ABCITransport, app.NewABCIApp(arb))
		if err != nil {
			return fmt.Errorf("create abci server: %w", err)
		}
		abciSrv.SetLogger(logger.With("module", "abci-server"))
		if err := abciSrv.Start(); err != nil {
			return fmt.Errorf("abci server start: %w", err)
		}
		logger.Info("abci listening", "addr", cfg.ABCIAddr, "transport", cfg.ABCITransport)
	}

	g, gctx := errgroup.WithContext(ctx)
	if abciSrv == nil {
		g.Go(func() error { return arb.RunSweeper(gctx) })
	} else {
		logger.Info("victory sweeper disabled, block time resolves claims")
	}

	if cfg.HTTPAddr != "" {
		httpSrv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           server.New(arb, logger, cfg).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			// Streams end with the process, not with Shutdown's grace period.
			BaseContext: func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			logger.Info("http listening", "addr", cfg.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(sctx)
		})
	}

	if abciSrv != nil {
		g.Go(func() error {
			<-gctx.Done()
			return abciSrv.Stop()
		})
	}

	err = g.Wait()
	logger.Info("fleetd stopped")
	return err
}
