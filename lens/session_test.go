package lens

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/richinex/fluentlens/background"
	"github.com/richinex/fluentlens/gateway"
	"github.com/richinex/fluentlens/llm"
	"github.com/richinex/fluentlens/model"
	"github.com/richinex/fluentlens/providers"
	"github.com/richinex/fluentlens/storage"
	"github.com/richinex/fluentlens/transport"
	"github.com/richinex/fluentlens/vocabulary"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// scriptedLLM stands in for the gateway. With blockFirst the first call
// waits for cancellation; later calls answer from the script.
type scriptedLLM struct {
	chunks     []string
	reply      string
	analysis   model.GrammarAnalysis
	err        error
	blockFirst bool
	blockAll   bool

	started chan struct{}

	mu       sync.Mutex
	calls    int
	messages [][]llm.ChatMessage
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{started: make(chan struct{}, 16)}
}

func (f *scriptedLLM) begin(ctx context.Context, messages []llm.ChatMessage) error {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.messages = append(f.messages, messages)
	f.mu.Unlock()

	f.started <- struct{}{}
	if f.blockAll || (f.blockFirst && first) {
		<-ctx.Done()
		return gateway.ErrAborted
	}
	return nil
}

func (f *scriptedLLM) StreamRequest(ctx context.Context, _ model.LLMConfig, opts gateway.Options, onChunk func(string)) (string, error) {
	if err := f.begin(ctx, opts.Messages); err != nil {
		return "", err
	}
	for _, c := range f.chunks {
		onChunk(c)
	}
	return strings.Join(f.chunks, ""), f.err
}

func (f *scriptedLLM) GenerateRequest(ctx context.Context, _ model.LLMConfig, opts gateway.Options) (string, error) {
	if err := f.begin(ctx, opts.Messages); err != nil {
		return "", err
	}
	return f.reply, f.err
}

func (f *scriptedLLM) AnalyzeGrammar(ctx context.Context, _ model.LLMConfig, messages []llm.ChatMessage) (model.GrammarAnalysis, error) {
	if err := f.begin(ctx, messages); err != nil {
		return model.GrammarAnalysis{}, err
	}
	return f.analysis, f.err
}

func (f *scriptedLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	session *Session
	llm     *scriptedLLM
	vocab   *vocabulary.Store
	svc     *background.Service
	port    *transport.Loopback
}

func newFixture(t *testing.T, f *scriptedLLM, opts ...Option) *fixture {
	t.Helper()
	return newWrappedFixture(t, f, nil, opts...)
}

// newWrappedFixture is newFixture with the session's port passed through
// wrap first.
func newWrappedFixture(t *testing.T, f *scriptedLLM, wrap func(transport.Port) transport.Port, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	st := storage.NewInMemoryStorage()

	configs := providers.New(st, nil)
	require.NoError(t, configs.Set(ctx, model.LLMConfig{Provider: "zhipu", APIKey: "k", Model: "glm-4-flash"}, true))

	svc := background.New(configs, f)
	port := transport.NewLoopback(svc)
	vocab := vocabulary.New(st)

	var sessionPort transport.Port = port
	if wrap != nil {
		sessionPort = wrap(port)
	}
	session := New(sessionPort, vocab, opts...)
	session.Start(ctx)

	t.Cleanup(func() {
		session.Close()
		port.Close()
		svc.Close()
	})
	return &fixture{session: session, llm: f, vocab: vocab, svc: svc, port: port}
}

func waitStarted(t *testing.T, f *scriptedLLM) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("provider was never called")
	}
}

func TestSimplifyStreamsAndAssembles(t *testing.T) {
	f := newScriptedLLM()
	f.chunks = []string{"The ", "cat ", "sat."}
	fx := newFixture(t, f)

	var fulls []string
	text, err := fx.session.Simplify(context.Background(), "The feline reposed.", model.PageContext{PageTitle: "Cats"}, SimplifyOptions{
		OnChunk: func(_, full string) { fulls = append(fulls, full) },
	})

	require.NoError(t, err)
	assert.Equal(t, "The cat sat.", text)
	assert.Equal(t, []string{"The ", "The cat ", "The cat sat."}, fulls)

	st := fx.session.State()
	assert.Equal(t, StatusSuccess, st.SimplifyStatus)
	assert.Equal(t, "The cat sat.", st.SimplifiedText)
	assert.Empty(t, st.Error)
	assert.False(t, st.SimplifyLoading())
	assert.Empty(t, fx.session.ActiveRequests())

	require.Len(t, f.messages, 1)
	assert.Equal(t, llm.RoleSystem, f.messages[0][0].Role)
	assert.Contains(t, f.messages[0][0].Content, "Cats")
	assert.Equal(t, llm.UserMessage("The feline reposed."), f.messages[0][1])
}

func TestSimplifyWithoutStreaming(t *testing.T) {
	f := newScriptedLLM()
	f.reply = "Plain words."
	fx := newFixture(t, f)

	text, err := fx.session.Simplify(context.Background(), "Verbose prose.", model.PageContext{}, SimplifyOptions{NoStream: true})
	require.NoError(t, err)
	assert.Equal(t, "Plain words.", text)
	assert.Equal(t, "Plain words.", fx.session.State().SimplifiedText)
}

func TestEmptyTextIsRejectedWithoutNetwork(t *testing.T) {
	f := newScriptedLLM()
	fx := newFixture(t, f)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := fx.session.Simplify(context.Background(), text, model.PageContext{}, SimplifyOptions{})
		assert.ErrorIs(t, err, ErrEmptyText)

		_, err = fx.session.AnalyzeGrammar(context.Background(), text, model.PageContext{})
		assert.ErrorIs(t, err, ErrEmptyText)
	}

	st := fx.session.State()
	assert.Equal(t, StatusError, st.SimplifyStatus)
	assert.Equal(t, StatusError, st.GrammarStatus)
	assert.Equal(t, model.KindEmptyText, st.ErrorKind)
	assert.Equal(t, "Please provide text to process", st.Error)
	assert.Zero(t, f.callCount())
}

// recordingPort logs the simplify requests sent and the cancels posted,
// together with the ids tracked when each cancel went out.
type recordingPort struct {
	transport.Port
	session func() *Session

	mu     sync.Mutex
	events []string
	sends  []string
	cancel []string
}

func (p *recordingPort) Send(ctx context.Context, msg transport.Message) (transport.Message, error) {
	if req, ok := msg.(transport.LLMRequest); ok {
		p.mu.Lock()
		p.events = append(p.events, "send "+req.RequestID)
		p.sends = append(p.sends, req.RequestID)
		p.mu.Unlock()
	}
	return p.Port.Send(ctx, msg)
}

func (p *recordingPort) Post(msg transport.Message) error {
	if c, ok := msg.(transport.CancelRequest); ok {
		tracked := p.session().ActiveRequests()
		p.mu.Lock()
		p.events = append(p.events, "cancel "+c.RequestID+" tracked="+strings.Join(tracked, ","))
		p.cancel = append(p.cancel, c.RequestID)
		p.mu.Unlock()
	}
	return p.Port.Post(msg)
}

func (p *recordingPort) snapshot() (events, sends, cancels []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...), append([]string(nil), p.sends...), append([]string(nil), p.cancel...)
}

func TestNewSimplifySupersedesOld(t *testing.T) {
	f := newScriptedLLM()
	f.chunks = []string{"second"}
	f.blockFirst = true

	var fx *fixture
	rec := &recordingPort{session: func() *Session { return fx.session }}
	fx = newWrappedFixture(t, f, func(p transport.Port) transport.Port {
		rec.Port = p
		return rec
	})

	firstErr := make(chan error, 1)
	go func() {
		_, err := fx.session.Simplify(context.Background(), "first text", model.PageContext{}, SimplifyOptions{})
		firstErr <- err
	}()
	waitStarted(t, f)

	text, err := fx.session.Simplify(context.Background(), "second text", model.PageContext{}, SimplifyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "second", text)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("first simplify never returned")
	}

	events, sends, cancels := rec.snapshot()
	require.Len(t, sends, 2)
	first, second := sends[0], sends[1]
	assert.Equal(t, []string{first}, cancels, "exactly one cancel, for the first request")
	assert.Equal(t, []string{
		"send " + first,
		"cancel " + first + " tracked=",
		"send " + second,
	}, events, "the first request is cancelled before the second is tracked")

	st := fx.session.State()
	assert.Equal(t, StatusSuccess, st.SimplifyStatus)
	assert.Equal(t, "second", st.SimplifiedText)
	assert.Empty(t, st.Error, "cancellation must not surface as an error")
	assert.Empty(t, fx.session.ActiveRequests())
	assert.Eventually(t, func() bool { return fx.svc.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestConcurrentSimplifyKeepsOneTracked(t *testing.T) {
	f := newScriptedLLM()
	f.blockAll = true
	fx := newFixture(t, f)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := fx.session.Simplify(context.Background(), "racing text", model.PageContext{}, SimplifyOptions{})
			errs <- err
		}()
	}

	for i := 0; i < n-1; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrCancelled)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d superseded calls returned", i, n-1)
		}
	}
	assert.Len(t, fx.session.ActiveRequests(), 1)

	fx.session.Reset()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("last simplify did not observe reset")
	}
	assert.Empty(t, fx.session.ActiveRequests())
}

func TestStreamEndingWithoutTerminalFailsSimplify(t *testing.T) {
	tests := []struct {
		name string
		stop func(fx *fixture)
	}{
		{"background closed", func(fx *fixture) { fx.svc.Close() }},
		{"port closed", func(fx *fixture) { fx.port.Close() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScriptedLLM()
			f.blockAll = true
			fx := newFixture(t, f)

			done := make(chan error, 1)
			go func() {
				_, err := fx.session.Simplify(context.Background(), "some text", model.PageContext{}, SimplifyOptions{})
				done <- err
			}()
			waitStarted(t, f)
			tt.stop(fx)

			select {
			case err := <-done:
				require.Error(t, err)
				assert.Equal(t, model.KindNetwork, model.Classify(err))
				assert.Contains(t, err.Error(), transport.StreamCutText)
			case <-time.After(2 * time.Second):
				t.Fatal("simplify hung after the stream was cut")
			}

			st := fx.session.State()
			assert.Equal(t, StatusError, st.SimplifyStatus)
			assert.Equal(t, model.KindNetwork, st.ErrorKind)
			assert.Empty(t, fx.session.ActiveRequests())
		})
	}
}

func TestBridgeStreamDroppedAfterAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg, err := transport.Decode(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req, ok := msg.(transport.LLMRequest)
		if !ok {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", transport.ContentTypeNDJSON)
		for _, m := range []transport.Message{
			transport.LLMResponse{RequestID: req.RequestID, Streaming: true},
			transport.StreamChunk{RequestID: req.RequestID, Chunk: "Hel"},
		} {
			data, err := transport.Encode(m)
			if !assert.NoError(t, err) {
				return
			}
			_, _ = w.Write(append(data, '\n'))
		}
	}))
	defer srv.Close()

	port := transport.NewHTTPPort(srv.URL, srv.Client())
	defer port.Close()

	session := New(port, vocabulary.New(storage.NewInMemoryStorage()))
	session.Start(context.Background())
	defer session.Close()

	var streamed []string
	done := make(chan error, 1)
	go func() {
		_, err := session.Simplify(context.Background(), "Hello there.", model.PageContext{}, SimplifyOptions{
			OnChunk: func(chunk, _ string) { streamed = append(streamed, chunk) },
		})
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, model.KindNetwork, model.Classify(err))
	case <-time.After(2 * time.Second):
		t.Fatal("simplify hung after the bridge dropped the stream")
	}
	assert.Equal(t, []string{"Hel"}, streamed)
	assert.Equal(t, StatusError, session.State().SimplifyStatus)
}

func TestResetCancelsSilently(t *testing.T) {
	f := newScriptedLLM()
	f.blockAll = true
	fx := newFixture(t, f)

	done := make(chan error, 1)
	go func() {
		_, err := fx.session.Simplify(context.Background(), "some text", model.PageContext{}, SimplifyOptions{})
		done <- err
	}()
	waitStarted(t, f)
	assert.True(t, fx.session.State().SimplifyLoading())

	fx.session.Reset()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
		assert.True(t, model.IsCancelled(err))
	case <-time.After(2 * time.Second):
		t.Fatal("simplify did not observe reset")
	}

	st := fx.session.State()
	assert.Equal(t, idleState(), st)
	assert.Eventually(t, func() bool { return fx.svc.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCallerContextCancelReachesBackground(t *testing.T) {
	f := newScriptedLLM()
	f.blockAll = true
	fx := newFixture(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := fx.session.Simplify(ctx, "some text", model.PageContext{}, SimplifyOptions{NoStream: true})
		done <- err
	}()
	waitStarted(t, f)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("simplify did not observe cancellation")
	}

	st := fx.session.State()
	assert.Equal(t, StatusCancelled, st.SimplifyStatus)
	assert.Empty(t, st.Error)
	assert.Eventually(t, func() bool { return fx.svc.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStreamFailureSetsError(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newScriptedLLM()
	f.chunks = []string{"par"}
	f.err = &model.Error{Kind: model.KindRateLimit, Cause: errors.New("429 Too Many Requests")}
	fx := newFixture(t, f, WithLogger(zap.New(core)))

	_, err := fx.session.Simplify(context.Background(), "text", model.PageContext{}, SimplifyOptions{})
	require.Error(t, err)
	assert.Equal(t, model.KindRateLimit, model.Classify(err))

	st := fx.session.State()
	assert.Equal(t, StatusError, st.SimplifyStatus)
	assert.Equal(t, model.KindRateLimit, st.ErrorKind)
	assert.Equal(t, "API rate limit exceeded", st.Error)
	assert.Equal(t, 1, logs.FilterMessage("simplify failed").Len())
}

func TestAnalyzeGrammarKeepsOnlyCandidates(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newScriptedLLM()
	f.analysis = model.GrammarAnalysis{
		MarkedText: "<subject>The committee</subject> <predicate>deliberated</predicate>",
		Vocabulary: []model.VocabularyItem{
			{Word: "Deliberated", SimpleDefinition: "thought carefully"},
			{Word: "banana", SimpleDefinition: "a fruit"},
		},
		Translation: "委员会进行了审议",
		Confidence:  model.NewConfidence(88),
	}
	fx := newFixture(t, f, WithLogger(zap.New(core)))

	analysis, err := fx.session.AnalyzeGrammar(context.Background(), "The committee deliberated.", model.PageContext{})
	require.NoError(t, err)
	require.Len(t, analysis.Vocabulary, 1)
	assert.Equal(t, "Deliberated", analysis.Vocabulary[0].Word)
	assert.Equal(t, model.ConfidenceHigh, analysis.Confidence.Level)

	entries := logs.FilterMessage("dropping vocabulary outside candidate list").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "banana", entries[0].ContextMap()["word"])

	st := fx.session.State()
	assert.Equal(t, StatusSuccess, st.GrammarStatus)
	require.NotNil(t, st.Analysis)
	assert.Equal(t, "委员会进行了审议", st.Analysis.Translation)

	require.Len(t, f.messages, 1)
	require.Len(t, f.messages[0], 1)
	assert.Contains(t, f.messages[0][0].Content, "committee, deliberated")
}

func TestAnalyzeGrammarWithoutCandidatesForcesEmptyVocabulary(t *testing.T) {
	f := newScriptedLLM()
	f.analysis = model.GrammarAnalysis{
		MarkedText: "<subject>I</subject> <predicate>am</predicate>",
		Vocabulary: []model.VocabularyItem{{Word: "am"}},
	}
	fx := newFixture(t, f)

	analysis, err := fx.session.AnalyzeGrammar(context.Background(), "I am.", model.PageContext{})
	require.NoError(t, err)
	assert.Empty(t, analysis.Vocabulary)
	assert.NotNil(t, analysis.Vocabulary)
}

func TestKnownWordsAreNotCandidates(t *testing.T) {
	f := newScriptedLLM()
	f.analysis = model.GrammarAnalysis{Vocabulary: []model.VocabularyItem{{Word: "committee"}}}
	fx := newFixture(t, f)
	require.NoError(t, fx.vocab.MarkWord(context.Background(), "committee", model.StatusKnown))

	analysis, err := fx.session.AnalyzeGrammar(context.Background(), "The committee deliberated.", model.PageContext{})
	require.NoError(t, err)
	assert.Empty(t, analysis.Vocabulary)
}

func TestSimplifyWithGrammar(t *testing.T) {
	f := newScriptedLLM()
	f.chunks = []string{"Simple."}
	f.analysis = model.GrammarAnalysis{MarkedText: "m", Vocabulary: []model.VocabularyItem{}, Translation: "t"}
	fx := newFixture(t, f)

	_, err := fx.session.Simplify(context.Background(), "Convoluted sentence.", model.PageContext{}, SimplifyOptions{WithGrammar: true})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return fx.session.State().GrammarStatus == StatusSuccess
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "t", fx.session.State().Analysis.Translation)
}

func TestWaitCollectsSideAnalysis(t *testing.T) {
	f := newScriptedLLM()
	f.chunks = []string{"Plain."}
	f.analysis = model.GrammarAnalysis{MarkedText: "<subject>It</subject>", Vocabulary: []model.VocabularyItem{}, Translation: "它"}
	fx := newFixture(t, f)

	_, err := fx.session.Simplify(context.Background(), "It perambulated.", model.PageContext{}, SimplifyOptions{WithGrammar: true})
	require.NoError(t, err)
	fx.session.Wait()

	st := fx.session.State()
	assert.Equal(t, StatusSuccess, st.GrammarStatus)
	require.NotNil(t, st.Analysis)
	assert.Equal(t, "它", st.Analysis.Translation)
	assert.Empty(t, fx.session.ActiveRequests())
}

func TestShouldAnalyze(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{" a ", false},
		{"ab", true},
		{"  hi  ", true},
		{"好", false},
		{"你好", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldAnalyze(tt.text), "ShouldAnalyze(%q)", tt.text)
	}
}
