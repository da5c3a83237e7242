package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"llamachat/internal/httpapi"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Example: "  llamachat serve --model tinyllama-1.1b-chat.Q4_K_M.gguf\n" +
			"  llamachat serve -c llamachat.yaml --addr :9090",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			a, err := newApp(cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080")
	return cmd
}

func serve(parent context.Context, a *app) error {
	ctx, stop := signalContext(parent)
	defer stop()

	s := a.cfg.Server
	httpapi.SetLogger(a.log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(s.MaxBodyBytes)
	httpapi.SetRequestTimeoutSeconds(int64(s.RequestTimeoutSecs))
	httpapi.SetCORSOptions(s.CORSEnabled, s.CORSOrigins, nil, nil)
	httpapi.SetBaseContext(ctx)

	if report := a.mgr.SanityCheck(); report.Error != "" {
		a.log.Warn().Str("check", report.Error).Msg("sanity check")
	}
	if a.cfg.Engine.ModelPath != "" {
		// load in the background; /readyz answers "loading" until then
		go func() {
			if err := a.mgr.EnsureModel(ctx, ""); err != nil {
				a.log.Error().Err(err).Msg("initial model load failed")
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           httpapi.NewMux(a.mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", s.Addr).Str("models_dir", a.cfg.Engine.ModelsDir).Msg("llamachat listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	// Graceful shutdown (Ctrl+C / SIGTERM)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("graceful shutdown")
	}
	a.log.Info().Msg("llamachat stopped")
	return nil
}
