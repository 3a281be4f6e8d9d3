package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/emla-tracker/internal/api"
	"github.com/sells-group/emla-tracker/internal/mastersync"
	"github.com/sells-group/emla-tracker/internal/uploadsession"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Serves the upload, upload session, customer and sync endpoints. With sync.interval_minutes set, the customer master sync also runs periodically.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, "serve")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := newPipeline(st)
		if err != nil {
			return err
		}

		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return eris.Wrap(err, "parse redis url")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close() //nolint:errcheck
		if err := rdb.Ping(ctx).Err(); err != nil {
			return eris.Wrap(err, "ping redis")
		}

		deps := api.Deps{
			Pipeline:  p,
			Sessions:  uploadsession.New(rdb, time.Duration(cfg.Session.TTLHours)*time.Hour),
			Customers: st,
		}
		var syncer *mastersync.Syncer
		if cfg.Sync.BaseURL != "" {
			if syncer, err = newSyncer(ctx, st); err != nil {
				return err
			}
			deps.Sync = syncer
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: api.NewServer(deps).Router(api.Options{
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
				CORSOrigins:  cfg.Server.CORSOrigins,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if syncer != nil && cfg.Sync.IntervalMinutes > 0 {
			interval := time.Duration(cfg.Sync.IntervalMinutes) * time.Minute
			g.Go(func() error {
				runPeriodicSync(gctx, syncer, interval)
				return nil
			})
		}

		return g.Wait()
	},
}

type syncRunner interface {
	Run(ctx context.Context) (*mastersync.Result, error)
}

// runPeriodicSync runs s every interval until ctx ends. A failed run is
// logged and retried on the next tick.
func runPeriodicSync(ctx context.Context, s syncRunner, interval time.Duration) {
	log := zap.L().With(zap.String("component", "periodic-sync"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("periodic sync enabled", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("periodic sync failed", zap.Error(err))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
