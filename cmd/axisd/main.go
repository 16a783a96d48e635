// Command axisd runs the configured axes and serves their status and
// commands over HTTP, websockets and a line protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/edaniels/golog"
	"github.com/w1xm/axis_control/diag"
	"github.com/w1xm/axis_control/internal/config"
	"github.com/w1xm/axis_control/internal/machine"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "axes.yaml", "axis configuration file")
	addr       = flag.String("addr", "", "HTTP address to listen on, overriding the config")
	staticDir  = flag.String("static_dir", "", "directory containing static files")
)

func main() {
	flag.Parse()
	logger := golog.NewDevelopmentLogger("axisd")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8502"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger golog.Logger) error {
	m, err := machine.New(cfg, logger)
	if err != nil {
		return err
	}
	s := diag.NewServer(m, logger)
	m.OnStatus(s.Publish)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Run(ctx) })

	if cfg.CommandAddr != "" {
		velocity := make([]float64, len(cfg.Axes))
		for _, a := range cfg.Axes {
			velocity[a.ID] = a.Velocity
		}
		ls := &lineServer{srv: s, logger: logger, velocity: velocity}
		if _, err := ls.Listen(ctx, cfg.CommandAddr); err != nil {
			return err
		}
	}

	r := s.Router()
	if *staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(*staticDir)))
	}
	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}
