// Package server exposes a transport.Handler over HTTP so sessions in
// other processes can reach the background worker.
//
// Information Hiding:
// - Route layout and status code mapping
// - NDJSON framing of streamed messages
// - Listener lifecycle and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/richinex/fluentlens/transport"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
	streamBuffer        = 64
)

// Server serves the message bridge.
type Server struct {
	handler transport.Handler
	logger  *zap.Logger
	app     *echo.Echo
	address string
}

// New constructs the HTTP server for h listening on address.
func New(h transport.Handler, address string, logger *zap.Logger) (*Server, error) {
	if h == nil {
		return nil, errors.New("handler must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.Error(v.Error))
			return nil
		},
	}))

	s := &Server{
		handler: h,
		logger:  logger,
		app:     e,
		address: address,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run listens on the configured address and blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}
	s.logger.Info("bridge listening", zap.String("addr", ln.Addr().String()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("bridge shutdown complete")
		return nil
	})
	return g.Wait()
}

func (s *Server) registerRoutes() {
	s.app.GET("/healthz", s.handleHealth)
	s.app.POST(transport.MessagesPath, s.handleMessage)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessage(c echo.Context) error {
	req := c.Request()
	defer req.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes))
	if err != nil {
		return requestError{Status: http.StatusRequestEntityTooLarge, Message: err.Error(), Type: "invalid_request_error"}
	}
	msg, err := transport.Decode(body)
	if err != nil {
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error"}
	}

	ctx := req.Context()
	sink := newStreamSink(ctx)
	reply, err := s.handler.Handle(ctx, msg, sink)
	if err != nil {
		s.logger.Error("message handler failed", zap.String("type", string(msg.Type())), zap.Error(err))
		return requestError{Status: http.StatusInternalServerError, Message: err.Error(), Type: "server_error"}
	}

	if reply == nil {
		if msg.Type() == transport.TypeCancelRequest {
			return c.NoContent(http.StatusAccepted)
		}
		return c.NoContent(http.StatusNoContent)
	}

	if ack, ok := reply.(transport.LLMResponse); ok && ack.Streaming {
		return s.writeStream(c, ack, sink)
	}

	data, err := transport.Encode(reply)
	if err != nil {
		return requestError{Status: http.StatusInternalServerError, Message: err.Error(), Type: "server_error"}
	}
	return c.JSONBlob(http.StatusOK, data)
}

// writeStream writes the acknowledgement and then every pushed message as
// one NDJSON line each until the sink is closed.
func (s *Server) writeStream(c echo.Context, ack transport.Message, sink *streamSink) error {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		s.logger.Error("http writer does not support flushing")
		return requestError{Status: http.StatusInternalServerError, Message: "server does not support streaming responses", Type: "server_error"}
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, transport.ContentTypeNDJSON)
	header.Set("Cache-Control", "no-cache")
	c.Response().WriteHeader(http.StatusOK)

	write := func(msg transport.Message) error {
		data, err := transport.Encode(msg)
		if err != nil {
			return err
		}
		if _, err := c.Response().Write(append(data, '\n')); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := write(ack); err != nil {
		return nil
	}
	for {
		msg, ok := sink.next()
		if !ok {
			return nil
		}
		if err := write(msg); err != nil {
			s.logger.Warn("failed to write stream message", zap.Error(err))
			return nil
		}
	}
}

// streamSink buffers pushes for one HTTP request.
type streamSink struct {
	ctx  context.Context
	ch   chan transport.Message
	done chan struct{}
	once sync.Once
}

func newStreamSink(ctx context.Context) *streamSink {
	return &streamSink{
		ctx:  ctx,
		ch:   make(chan transport.Message, streamBuffer),
		done: make(chan struct{}),
	}
}

func (s *streamSink) Push(msg transport.Message) {
	select {
	case s.ch <- msg:
	case <-s.ctx.Done():
	}
}

func (s *streamSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// next returns the next pushed message, or false once the sink is closed
// and drained or the request has gone away.
func (s *streamSink) next() (transport.Message, bool) {
	select {
	case msg := <-s.ch:
		return msg, true
	case <-s.ctx.Done():
		return nil, false
	case <-s.done:
		select {
		case msg := <-s.ch:
			return msg, true
		default:
			return nil, false
		}
	}
}

type requestError struct {
	Status  int
	Message string
	Type    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	return c.JSON(status, payload)
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error")
}
