package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/richinex/fluentlens/server"
)

// Serve exposes the app's background over HTTP until ctx is cancelled.
func Serve(ctx context.Context, app *App, addr string) error {
	if app.Settings.Server.URL != "" {
		return errors.New("serve runs the bridge itself; unset server.url")
	}
	if addr == "" {
		addr = app.Settings.Server.Addr
	}

	srv, err := server.New(app.Background, addr, app.logger.Named("server"))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if !app.Providers.Has(ctx) {
		app.logger.Warn("no usable provider configured; requests will fail until one is set")
	}
	return srv.Run(ctx)
}
