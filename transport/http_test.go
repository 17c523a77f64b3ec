package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bridgeStub answers like the bridge server: streams for streaming LLM
// requests, 202 for cancels, plain JSON otherwise.
func bridgeStub(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != MessagesPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		msg, err := Decode(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch m := msg.(type) {
		case CancelRequest:
			w.WriteHeader(http.StatusAccepted)
		case LLMRequest:
			if !m.Stream {
				write(t, w, LLMResponse{RequestID: m.RequestID, Response: "plain"})
				return
			}
			w.Header().Set("Content-Type", ContentTypeNDJSON)
			write(t, w, LLMResponse{RequestID: m.RequestID, Streaming: true})
			for _, c := range []string{"a", "b", "c"} {
				write(t, w, StreamChunk{RequestID: m.RequestID, Chunk: c})
			}
			write(t, w, StreamChunk{RequestID: m.RequestID, Done: true})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
}

func write(t *testing.T, w http.ResponseWriter, msg Message) {
	data, err := Encode(msg)
	require.NoError(t, err)
	_, _ = w.Write(append(data, '\n'))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func TestHTTPPortStreaming(t *testing.T) {
	srv := bridgeStub(t)
	defer srv.Close()

	port := NewHTTPPort(srv.URL+"/", srv.Client())
	defer port.Close()

	c := newCollect()
	defer port.Subscribe(c.on)()

	reply, err := port.Send(context.Background(), streamRequest("req_1"))
	require.NoError(t, err)
	assert.True(t, reply.(LLMResponse).Streaming)

	chunks := c.wait(t)
	require.Len(t, chunks, 4)
	assert.Equal(t, "abc", chunks[0].Chunk+chunks[1].Chunk+chunks[2].Chunk)
	assert.True(t, chunks[3].Done)
}

func TestHTTPPortPlainReply(t *testing.T) {
	srv := bridgeStub(t)
	defer srv.Close()

	port := NewHTTPPort(srv.URL, srv.Client())
	defer port.Close()

	req := streamRequest("req_1")
	req.Stream = false
	reply, err := port.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "plain", reply.(LLMResponse).Response)
}

func TestHTTPPortNoReplyAndErrors(t *testing.T) {
	srv := bridgeStub(t)
	defer srv.Close()

	port := NewHTTPPort(srv.URL, srv.Client())
	defer port.Close()

	_, err := port.Send(context.Background(), CancelRequest{RequestID: "req_1"})
	assert.ErrorIs(t, err, ErrNoReply)

	bad := NewHTTPPort(srv.URL+"/missing", srv.Client())
	defer bad.Close()
	_, err = bad.Send(context.Background(), streamRequest("req_2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPPortClosed(t *testing.T) {
	port := NewHTTPPort("http://127.0.0.1:1", nil)
	require.NoError(t, port.Close())

	_, err := port.Send(context.Background(), streamRequest("req_1"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, port.Post(CancelRequest{RequestID: "req_1"}), ErrClosed)
}

func TestHTTPPortStreamCutOff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg, err := Decode(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req := msg.(LLMRequest)
		w.Header().Set("Content-Type", ContentTypeNDJSON)
		write(t, w, LLMResponse{RequestID: req.RequestID, Streaming: true})
		write(t, w, StreamChunk{RequestID: req.RequestID, Chunk: "partial"})
	}))
	defer srv.Close()

	port := NewHTTPPort(srv.URL, srv.Client())
	defer port.Close()

	c := newCollect()
	defer port.Subscribe(c.on)()

	_, err := port.Send(context.Background(), streamRequest("req_1"))
	require.NoError(t, err)
	assertCut(t, c.wait(t))
}
