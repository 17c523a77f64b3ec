package transport

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/richinex/fluentlens/llm"
	"github.com/richinex/fluentlens/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestEncodeDecodeEnvelope(t *testing.T) {
	temp := float32(0.2)
	tokens := 128
	analysis := &model.GrammarAnalysis{
		MarkedText:  "<subject>I</subject>",
		Vocabulary:  []model.VocabularyItem{{Word: "ubiquitous", SimpleDefinition: "everywhere"}},
		Translation: "我",
		Confidence:  model.NewConfidence(85),
	}

	tests := []struct {
		name string
		msg  Message
	}{
		{"llm request", LLMRequest{RequestID: "req_1", Stream: true, Messages: []llm.ChatMessage{llm.UserMessage("hi")}, Temperature: &temp, MaxTokens: &tokens}},
		{"llm response", LLMResponse{RequestID: "req_1", Response: "hello"}},
		{"stream chunk", StreamChunk{RequestID: "req_1", Chunk: "he", Done: false}},
		{"terminal chunk", StreamChunk{RequestID: "req_1", Done: true, Error: "boom", ErrorKind: model.KindUnknown}},
		{"grammar request", GrammarAnalysisRequest{RequestID: "req_2", Messages: []llm.ChatMessage{llm.SystemMessage("s"), llm.UserMessage("u")}}},
		{"grammar response", GrammarAnalysisResponse{RequestID: "req_2", Analysis: analysis}},
		{"cancel", CancelRequest{RequestID: "req_3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Type(), got.Type())
			if diff := cmp.Diff(tt.msg, got); diff != "" {
				t.Errorf("decoded message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnvelopeLayout(t *testing.T) {
	data, err := Encode(CancelRequest{RequestID: "req_9"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"CANCEL_LLM_REQUEST","payload":{"requestId":"req_9"}}`, string(data))
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", `nope`, ErrInvalidMessage},
		{"unknown type", `{"type":"PING","payload":{}}`, ErrUnknownMessageType},
		{"missing payload", `{"type":"LLM_REQUEST"}`, ErrInvalidMessage},
		{"wrong payload shape", `{"type":"LLM_REQUEST","payload":[]}`, ErrInvalidMessage},
		{"missing id", `{"type":"CANCEL_LLM_REQUEST","payload":{}}`, ErrInvalidMessage},
		{"no messages", `{"type":"LLM_REQUEST","payload":{"requestId":"r","stream":true,"messages":[]}}`, ErrInvalidMessage},
		{"bad role", `{"type":"GRAMMAR_ANALYSIS_REQUEST","payload":{"requestId":"r","messages":[{"role":"tool","content":"x"}]}}`, ErrInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncodeValidates(t *testing.T) {
	_, err := Encode(LLMRequest{Messages: []llm.ChatMessage{llm.UserMessage("x")}})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = Encode(nil)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestRemoteError(t *testing.T) {
	assert.NoError(t, RemoteError("", model.KindUnknown))

	err := RemoteError("API rate limit exceeded: 429", model.KindRateLimit)
	assert.Equal(t, model.KindRateLimit, model.Classify(err))
	assert.Contains(t, err.Error(), "429")

	err = RemoteError("dial tcp: connection refused", "")
	assert.Equal(t, model.KindNetwork, model.Classify(err))

	text, kind := ErrorFields(&model.Error{Kind: model.KindNoAPIKey})
	assert.Equal(t, model.KindNoAPIKey, kind)
	assert.Equal(t, model.KindNoAPIKey.UserMessage(), text)

	text, kind = ErrorFields(nil)
	assert.Empty(t, text)
	assert.Empty(t, kind)

	var classified *model.Error
	require.True(t, errors.As(RemoteError("x", model.KindInvalidConfig), &classified))
	assert.Equal(t, model.KindInvalidConfig, classified.Kind)
}
