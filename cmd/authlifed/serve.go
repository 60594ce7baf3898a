package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var (
		addr   string
		memory bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. Signing secrets rotate on the configured interval
when JWT_AUTO_ROTATE is on, and expired sessions are swept every
SWEEP_INTERVAL. Admin routes are mounted only when ADMIN_TOKEN is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.settings.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := runtimeOptions{auditOut: cmd.OutOrStdout()}
			if memory {
				mr, err := miniredis.Run()
				if err != nil {
					return err
				}
				defer mr.Close()
				a.logger.Warn("using in-memory session store; sessions are lost on exit")
				opts.redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
				a.settings.DatabaseURL = ""
			}

			rt, err := openRuntime(ctx, a, opts)
			if err != nil {
				return err
			}
			defer rt.close()

			return serve(ctx, rt, a.settings)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultHTTPAddr, "Listen address")
	cmd.Flags().BoolVar(&memory, "memory", false, "Keep sessions in an embedded in-memory Redis (development only)")
	return cmd
}

func serve(ctx context.Context, rt *runtime, s settings) error {
	srv := &http.Server{
		Addr:              s.HTTPAddr,
		Handler:           newRouter(rt.engine, rt.logger, s.AdminToken),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go sweepLoop(ctx, rt, s.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("listening", "addr", s.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	rt.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func sweepLoop(ctx context.Context, rt *runtime, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := rt.engine.Sessions().CleanupExpiredSessions(ctx)
			if err != nil {
				rt.logger.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				rt.logger.Info("expired sessions swept", "count", n)
			}
		}
	}
}
