package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/danilofalcao/ai-relay/internal/api/openai/v1"
	relayapi "github.com/danilofalcao/ai-relay/internal/api/relay/v1"
	openaibackend "github.com/danilofalcao/ai-relay/internal/backend/openai"
	"github.com/danilofalcao/ai-relay/internal/backend/openrouter"
	"github.com/danilofalcao/ai-relay/internal/relay"
	"github.com/danilofalcao/ai-relay/internal/server/middleware"
)

var testCors = middleware.CorsOptions{
	AllowedOrigin:  "http://localhost:8000",
	AllowedMethods: []string{"GET", "POST"},
	AllowedHeaders: []string{"Content-Type"},
}

type fakeRelay struct {
	answer string
	panics bool

	mu    sync.Mutex
	calls [][2]string
	ctxs  []context.Context
}

func (f *fakeRelay) Handle(ctx context.Context, message, model string) string {
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{message, model})
	f.ctxs = append(f.ctxs, ctx)
	return f.answer
}

func (f *fakeRelay) Models() []string { return []string{"deepseek-chat"} }

func newTestServer(t *testing.T, r Relay) http.Handler {
	t.Helper()
	s, err := New(context.Background(), Options{
		Port:     "3000",
		Relay:    r,
		LogLevel: "error",
		Cors:     testCors,
		ExitCh:   make(chan string, 1),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s.Handler()
}

func postAI(h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(context.Background(), Options{Relay: &fakeRelay{}}); err == nil {
		t.Error("expected error without port")
	}
	if _, err := New(context.Background(), Options{Port: "3000"}); err == nil {
		t.Error("expected error without relay")
	}
}

func TestShutdown_StopsConcurrentStart(t *testing.T) {
	s, err := New(context.Background(), Options{Port: "0", Relay: &fakeRelay{}, LogLevel: "error"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestStart_ListenFailureReachesExitChannel(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	_, port, _ := net.SplitHostPort(ln.Addr().String())

	exitCh := make(chan string, 1)
	s, err := New(context.Background(), Options{Port: port, Relay: &fakeRelay{}, LogLevel: "error", ExitCh: exitCh})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Start(); err == nil {
		t.Fatal("expected Start to fail on a busy port")
	}
	select {
	case msg := <-exitCh:
		if !strings.Contains(msg, "error serving") {
			t.Errorf("unexpected exit message %q", msg)
		}
	default:
		t.Error("expected a message on the exit channel")
	}
}

func TestHandleAI_Success(t *testing.T) {
	fr := &fakeRelay{answer: "looks fine"}
	h := newTestServer(t, fr)

	rec := postAI(h, `{"message":"fix this bug","model":"gpt-4"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var resp relayapi.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "looks fine" {
		t.Errorf("expected relay answer, got %q", resp.Response)
	}
	if len(fr.calls) != 1 || fr.calls[0] != [2]string{"fix this bug", "gpt-4"} {
		t.Errorf("unexpected relay calls %v", fr.calls)
	}
}

func TestHandleAI_DetachesFromClientCancellation(t *testing.T) {
	fr := &fakeRelay{answer: "ok"}
	h := newTestServer(t, fr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(`{"message":"m","model":"gpt-4"}`)).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(fr.ctxs) != 1 {
		t.Fatalf("expected one relay call, got %d", len(fr.ctxs))
	}
	if err := fr.ctxs[0].Err(); err != nil {
		t.Errorf("relay context should not inherit cancellation, got %v", err)
	}
}

func TestHandleAI_MalformedBody(t *testing.T) {
	fr := &fakeRelay{answer: "unused"}
	h := newTestServer(t, fr)

	rec := postAI(h, `{"message": "unterminated`, nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp relayapi.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "Internal Server Error" {
		t.Errorf("unexpected error body %q", resp.Error)
	}
	if len(fr.calls) != 0 {
		t.Error("relay must not be called for a malformed body")
	}
}

func TestHandleAI_EmptyBodyIsEmptyRequest(t *testing.T) {
	fr := &fakeRelay{answer: "fallback"}
	h := newTestServer(t, fr)

	rec := postAI(h, "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(fr.calls) != 1 || fr.calls[0] != [2]string{"", ""} {
		t.Errorf("expected one call with empty fields, got %v", fr.calls)
	}
}

func TestHandleAI_BodyTooLarge(t *testing.T) {
	fr := &fakeRelay{}
	h := newTestServer(t, fr)

	big := `{"message":"` + strings.Repeat("a", maxBodyBytes) + `","model":"gpt-4"}`
	rec := postAI(h, big, nil)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestHandleAI_PanicIsRecovered(t *testing.T) {
	h := newTestServer(t, &fakeRelay{panics: true})

	rec := postAI(h, `{"message":"m","model":"gpt-4"}`, nil)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestHandleAI_MethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &fakeRelay{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHandleAI_ForeignOriginRejected(t *testing.T) {
	fr := &fakeRelay{answer: "unused"}
	h := newTestServer(t, fr)

	rec := postAI(h, `{"message":"m","model":"gpt-4"}`, map[string]string{"Origin": "https://example.com"})

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if len(fr.calls) != 0 {
		t.Error("relay must not be reached from a foreign origin")
	}
}

func TestHandleAI_AllowedOriginPreflight(t *testing.T) {
	h := newTestServer(t, &fakeRelay{})

	req := httptest.NewRequest(http.MethodOptions, "/api/ai", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8000" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestHandleModels(t *testing.T) {
	h := newTestServer(t, &fakeRelay{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	var resp relayapi.ModelsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || len(resp.Models) != 1 || resp.Models[0] != "deepseek-chat" {
		t.Errorf("unexpected models response %d %+v", rec.Code, resp)
	}
}

// End to end through the real relay and backends against fake upstreams.

func newRelayServer(t *testing.T, primary, secondary http.HandlerFunc) http.Handler {
	t.Helper()
	p := httptest.NewServer(primary)
	t.Cleanup(p.Close)
	sec := httptest.NewServer(secondary)
	t.Cleanup(sec.Close)

	r, err := relay.New(relay.Options{
		Primary:   openaibackend.NewOpenaiBackend(openaibackend.Options{Endpoint: p.URL, ApiKey: "sk", Client: p.Client()}),
		Secondary: openrouter.NewOpenrouterBackend(openrouter.Options{Endpoint: sec.URL, ApiKey: "or", Client: sec.Client()}),
	})
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}
	return newTestServer(t, r)
}

func TestEndToEnd_UpstreamFailureStill200(t *testing.T) {
	h := newRelayServer(t,
		func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("not json at all")) },
		func(w http.ResponseWriter, r *http.Request) { t.Error("secondary should not be called") },
	)

	rec := postAI(h, `{"message":"fix this bug","model":"gpt-4"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp relayapi.Response
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Response != relay.FallbackResponse {
		t.Errorf("expected fallback, got %q", resp.Response)
	}
}

func TestEndToEnd_MappedModel(t *testing.T) {
	var gotModel string
	h := newRelayServer(t,
		func(w http.ResponseWriter, r *http.Request) { t.Error("primary should not be called") },
		func(w http.ResponseWriter, r *http.Request) {
			var req openai.ChatCompletionRequest
			json.NewDecoder(r.Body).Decode(&req)
			gotModel = req.Model
			var buf bytes.Buffer
			json.NewEncoder(&buf).Encode(openai.ChatCompletionResponse{
				Choices: []openai.Choice{{Message: openai.Message{Role: "assistant", Content: "hi from deepseek"}}},
			})
			w.Write(buf.Bytes())
		},
	)

	rec := postAI(h, `{"message":"explain goroutines","model":"deepseek-chat"}`, map[string]string{"Origin": "http://localhost:8000"})

	var resp relayapi.Response
	json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusOK || resp.Response != "hi from deepseek" {
		t.Errorf("unexpected response %d %q", rec.Code, resp.Response)
	}
	if gotModel != "deepseek/deepseek-r1:free" {
		t.Errorf("expected mapped model id upstream, got %q", gotModel)
	}
}
