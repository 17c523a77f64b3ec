package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	// MessagesPath is the bridge endpoint every message is posted to.
	MessagesPath = "/v1/messages"

	// ContentTypeNDJSON marks a streaming reply: the first line is the
	// acknowledgement, every later line a pushed message.
	ContentTypeNDJSON = "application/x-ndjson"
)

// HTTPPort talks to a background running behind the bridge server.
type HTTPPort struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	subs    subscribers

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	readers sync.WaitGroup
}

// NewHTTPPort creates a port for the bridge at baseURL. A nil client
// uses a default client without timeout, since streams are long-lived.
func NewHTTPPort(baseURL string, client *http.Client, opts ...Option) *HTTPPort {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if client == nil {
		client = &http.Client{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPPort{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  o.logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Send posts msg and returns the reply. For a streaming reply the
// acknowledgement is returned and the remaining lines are dispatched to
// subscribers in order on a background goroutine. Cancelling ctx after
// the acknowledgement does not end the stream. A stream that breaks off
// before its terminal chunk gets a made-up one with a network error.
func (p *HTTPPort) Send(ctx context.Context, msg Message) (Message, error) {
	body, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	if !p.begin() {
		return nil, ErrClosed
	}

	reqCtx, cancelReq := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancelReq)
	streaming := false
	defer func() {
		stop()
		if !streaming {
			cancelReq()
			p.readers.Done()
		}
	}()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.baseURL+MessagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, "+ContentTypeNDJSON)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("bridge request failed: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusAccepted:
		resp.Body.Close()
		return nil, ErrNoReply
	case resp.StatusCode >= 300:
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bridge returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	dec := json.NewDecoder(resp.Body)
	ack, err := decodeNext(dec)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to read bridge reply: %w", err)
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), ContentTypeNDJSON) {
		resp.Body.Close()
		return ack, nil
	}

	if stop() {
		streaming = true
		go p.readStream(streamID(msg), resp.Body, dec, cancelReq)
		return ack, nil
	}
	// ctx ended while the ack was in flight.
	resp.Body.Close()
	return nil, ctx.Err()
}

// Post sends msg on a background goroutine and ignores the reply.
func (p *HTTPPort) Post(msg Message) error {
	if _, err := Encode(msg); err != nil {
		return err
	}
	if !p.begin() {
		return ErrClosed
	}
	go func() {
		defer p.readers.Done()
		_, err := p.Send(p.ctx, msg)
		if err != nil && !errors.Is(err, ErrNoReply) && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
			p.logger.Warn("posted message failed", zap.String("type", string(msg.Type())), zap.Error(err))
		}
	}()
	return nil
}

// Subscribe registers fn for streamed messages.
func (p *HTTPPort) Subscribe(fn func(Message)) func() {
	return p.subs.add(fn)
}

// Close aborts open streams and waits for their readers to exit.
func (p *HTTPPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.readers.Wait()
	return nil
}

func (p *HTTPPort) begin() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.readers.Add(1)
	return true
}

func (p *HTTPPort) readStream(id string, body io.ReadCloser, dec *json.Decoder, cancel context.CancelFunc) {
	defer p.readers.Done()
	defer cancel()
	defer body.Close()

	ended := false
	for {
		msg, err := decodeNext(dec)
		if err != nil {
			if !errors.Is(err, io.EOF) && p.ctx.Err() == nil {
				p.logger.Warn("bridge stream ended abnormally", zap.String("request_id", id), zap.Error(err))
			}
			if id != "" && !ended {
				p.subs.dispatch(streamCut(id))
			}
			return
		}
		if chunk, ok := msg.(StreamChunk); ok && chunk.Done && chunk.RequestID == id {
			ended = true
		}
		p.subs.dispatch(msg)
	}
}

func decodeNext(dec *json.Decoder) (Message, error) {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Verify HTTPPort implements Port
var _ Port = (*HTTPPort)(nil)
