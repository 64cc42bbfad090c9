package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	goGraph "github.com/MrEthical07/goGraph"
	"github.com/MrEthical07/goGraph/metrics/export/prometheus"
	"github.com/MrEthical07/goGraph/middleware"
	"github.com/MrEthical07/goGraph/session"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a demo site: /canvas/ behind the canvas flow, / behind OAuth, /metrics for Prometheus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fc, err := loadConfig(root.configPath, lookupEnv)
			if err != nil {
				return err
			}
			client, cleanup, err := openRedis(fc.Redis.Addr, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			app, fc, err := root.buildApp(cmd, func(b *goGraph.Builder, fc *fileConfig) {
				b.WithServerStorage(session.NewRedisBackend(client, fc.Redis.Prefix))
				if fc.Audit.Enabled {
					b.WithAuditSink(goGraph.NewJSONWriterSink(cmd.ErrOrStderr()))
				}
			})
			if err != nil {
				return err
			}
			defer app.Close()

			if listen == "" {
				listen = fc.Listen
			}
			srv := &http.Server{
				Addr:              listen,
				Handler:           newServeMux(app),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s\n", listen)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default from config)")
	return cmd
}

func newServeMux(app *goGraph.App) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.NewPrometheusExporter(app).Handler())
	mux.Handle("/canvas/", middleware.RequireCanvas(app)(http.HandlerFunc(greet)))
	mux.Handle("/", middleware.RequireOAuth(app, middleware.WithLoginOptions(&goGraph.LoginOptions{
		Permissions: []string{"email"},
	}))(http.HandlerFunc(greet)))
	return mux
}

func greet(w http.ResponseWriter, r *http.Request) {
	name, err := goGraph.IdentityFromContext(r.Context()).Name()
	if err != nil {
		name = "unknown"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<p>hello %s</p>\n", html.EscapeString(name))
}
