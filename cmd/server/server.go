package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// serve runs the HTTP server until ctx is cancelled or the listener fails,
// then drains requests and jobs within the configured shutdown timeout.
func (app *application) serve(ctx context.Context, handler http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if app.jobHandler != nil {
		server.RegisterOnShutdown(app.jobHandler.CloseStreams)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()

		httpErr := server.Shutdown(shutdownCtx)
		if httpErr != nil {
			app.logger.Error("server shutdown failed", "error", httpErr)
		}
		if err := app.shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return httpErr
	})

	return g.Wait()
}
