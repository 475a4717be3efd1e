package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rating_calculator/pkg/api/assistant"
	apiconfig "rating_calculator/pkg/api/config"
	"rating_calculator/pkg/api/extraction"
	"rating_calculator/pkg/api/httpx"
	"rating_calculator/pkg/api/viewer"
	"rating_calculator/pkg/core/app"
	"rating_calculator/pkg/core/config"
	"rating_calculator/pkg/core/logging"
)

func main() {
	configFile := flag.String("config", "", "config file (default config/app.yaml when present)")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	flag.Parse()

	if err := run(*configFile, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, addr string) error {
	opts := config.LoadOptions{File: configFile}
	if addr != "" {
		opts.Overrides = map[string]interface{}{"server.addr": addr}
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.Log); err != nil {
		return err
	}
	defer logging.Sync()
	log := logging.Named("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logging.Named("app"))
	if err != nil {
		return err
	}
	defer a.Close()
	for _, w := range a.Warnings {
		log.Warnw("startup warning", "warning", w)
	}

	mux := http.NewServeMux()
	viewer.NewHandler(a.Prompts, a.Definitions, logging.Named("api.viewer")).Register(mux)
	extraction.NewHandler(a.Runner, a.Runs, logging.Named("api.extraction")).Register(mux)
	apiconfig.NewHandler(a.Agents, a.Runner.Mock(), logging.Named("api.config")).Register(mux)
	assistant.NewHandler(a.Agents, logging.Named("api.assistant")).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpx.CORS(cfg.Server.AllowOrigin, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("API server starting", "addr", cfg.Server.Addr, "mock", a.Runner.Mock())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
