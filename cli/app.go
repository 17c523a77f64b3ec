// Application wiring for CLI commands.
//
// Information Hiding:
// - Storage selection and lifetime
// - Whether sessions reach an in-process background or a remote bridge
// - Construction order of stores, gateway and background

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/richinex/fluentlens/background"
	"github.com/richinex/fluentlens/config"
	"github.com/richinex/fluentlens/gateway"
	"github.com/richinex/fluentlens/lens"
	"github.com/richinex/fluentlens/providers"
	"github.com/richinex/fluentlens/storage"
	"github.com/richinex/fluentlens/transport"
	"github.com/richinex/fluentlens/vocabulary"
)

// App holds the components shared by every command.
type App struct {
	Settings   config.Settings
	Vocabulary *vocabulary.Store
	Providers  *providers.Store
	Background *background.Service

	logger  *zap.Logger
	store   storage.Storage
	closers []func() error
	port    transport.Port
}

// AppOption configures an App.
type AppOption func(*appOptions)

type appOptions struct {
	factory    gateway.ProviderFactory
	httpClient *http.Client
}

// WithProviderFactory replaces the SDK-backed provider factory.
func WithProviderFactory(f gateway.ProviderFactory) AppOption {
	return func(o *appOptions) { o.factory = f }
}

// WithHTTPClient sets the client used to reach a remote bridge.
func WithHTTPClient(c *http.Client) AppOption {
	return func(o *appOptions) { o.httpClient = c }
}

// Open opens the SQLite database named in settings and wires the app on it.
func Open(settings config.Settings, logger *zap.Logger, opts ...AppOption) (*App, error) {
	db, err := storage.OpenSqlite(settings.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	app := New(settings, db, logger, opts...)
	app.closers = append(app.closers, db.Close)
	return app, nil
}

// New wires the app on st. The caller keeps ownership of st.
func New(settings config.Settings, st storage.Storage, logger *zap.Logger, opts ...AppOption) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	gwOpts := []gateway.Option{
		gateway.WithLogger(logger.Named("gateway")),
		gateway.WithRequestTimeout(settings.LLM.RequestTimeout),
		gateway.WithDefaultTemperature(settings.LLM.Temperature),
		gateway.WithDefaultMaxTokens(settings.LLM.MaxTokens),
	}
	if o.factory != nil {
		gwOpts = append(gwOpts, gateway.WithProviderFactory(o.factory))
	}

	app := &App{
		Settings:   settings,
		Vocabulary: vocabulary.New(st, vocabulary.WithLogger(logger.Named("vocabulary"))),
		Providers:  providers.New(st, logger.Named("providers")),
		logger:     logger,
		store:      st,
	}
	app.Background = background.New(app.Providers, gateway.New(gwOpts...),
		background.WithLogger(logger.Named("background")))

	if settings.Server.URL != "" {
		app.port = transport.NewHTTPPort(settings.Server.URL, o.httpClient,
			transport.WithLogger(logger.Named("transport")))
	} else {
		app.port = transport.NewLoopback(app.Background,
			transport.WithLogger(logger.Named("transport")))
	}
	return app
}

// Logger returns the app logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Session starts a reading session on the app's port.
func (a *App) Session(ctx context.Context) *lens.Session {
	s := lens.New(a.port, a.Vocabulary, lens.WithLogger(a.logger.Named("lens")))
	s.Start(ctx)
	return s
}

// Close stops the port and the background, then releases storage.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.port.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.Background.Close())
	a.Vocabulary.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
