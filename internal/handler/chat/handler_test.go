package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jpillora/eventsource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	"github.com/zhouzirui/streamchat/internal/service/cache"
	"github.com/zhouzirui/streamchat/internal/service/upstream"
)

const (
	evHel = `{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`
	evLo  = `{"candidates":[{"content":{"parts":[{"text":"lo"}]}}]}`
)

type fakeUpstream struct {
	srv  *httptest.Server
	hits atomic.Int32
	last atomic.Value // upstream.GenerateRequest
}

func newFakeUpstream(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		var req upstream.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			f.last.Store(req)
		}
		handle(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func sseEvents(payloads ...string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			_ = eventsource.WriteEvent(w, eventsource.Event{Data: []byte(p)})
			w.(http.Flusher).Flush()
		}
	}
}

func setupRouter(t *testing.T, apiKey string, handle func(w http.ResponseWriter, r *http.Request)) (*chi.Mux, *fakeUpstream, *cache.MemoryStore) {
	t.Helper()
	f := newFakeUpstream(t, handle)
	store := cache.NewMemoryStore(cache.DefaultTTL)
	handler := New(upstream.NewClient(f.srv.URL, "test-model", apiKey, f.srv.Client()), store)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, f, store
}

func postChat(t *testing.T, r http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch v := body.(type) {
	case string:
		payload = []byte(v)
	default:
		payload, _ = json.Marshal(v)
	}
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestChatStreamsFragments(t *testing.T) {
	r, f, store := setupRouter(t, "key", sseEvents(evHel, "{broken", evLo))

	resp := postChat(t, r, chat.Request{
		SessionID: "sess-1",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "hi"},
			{Role: chat.RoleAssistant, Content: "hey"},
			{Role: chat.RoleUser, Content: "say hello"},
			{Role: chat.RoleAssistant, Content: ""},
		},
	})

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "Hello", resp.Body.String())
	require.Equal(t, "text/plain; charset=utf-8", resp.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", resp.Header().Get("Cache-Control"))
	require.Equal(t, "no", resp.Header().Get("X-Accel-Buffering"))
	require.Equal(t, "sess-1", resp.Header().Get(SessionHeader))

	sent := f.last.Load().(upstream.GenerateRequest)
	require.Len(t, sent.Contents, 3)
	require.Equal(t, upstream.RoleModel, sent.Contents[1].Role)
	require.Equal(t, "say hello", sent.Contents[2].Parts[0].Text)

	stored, ok, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, stored.Messages, 3, "trailing empty assistant message is not cached")
}

func TestChatGeneratesSessionID(t *testing.T) {
	r, _, store := setupRouter(t, "key", sseEvents(evHel))

	resp := postChat(t, r, chat.Request{Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	require.Equal(t, http.StatusOK, resp.Code)

	sid := resp.Header().Get(SessionHeader)
	require.NotEmpty(t, sid)
	ids, _ := store.Sessions(context.Background())
	require.Equal(t, []string{sid}, ids)
}

func TestChatNoTextStillCompletes(t *testing.T) {
	r, _, _ := setupRouter(t, "key", sseEvents(`{"candidates":[]}`))

	resp := postChat(t, r, chat.Request{Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Empty(t, resp.Body.String())
}

func TestChatEmptyUpstreamBody(t *testing.T) {
	r, f, _ := setupRouter(t, "key", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
	})

	resp := postChat(t, r, chat.Request{SessionID: "s", Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Empty(t, resp.Body.String())
	require.Equal(t, "s", resp.Header().Get(SessionHeader))
	require.EqualValues(t, 1, f.hits.Load())
}

func TestChatMissingAPIKeyBeforeDecode(t *testing.T) {
	r, f, _ := setupRouter(t, "", sseEvents(evHel))

	resp := postChat(t, r, "{")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.Contains(t, resp.Body.String(), "GEMINI_API_KEY")
	require.Zero(t, f.hits.Load())
}

func TestChatMissingAPIKey(t *testing.T) {
	r, f, _ := setupRouter(t, "", sseEvents(evHel))

	resp := postChat(t, r, chat.Request{Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.Contains(t, resp.Body.String(), "GEMINI_API_KEY")
	require.Zero(t, f.hits.Load(), "upstream must not be called")
}

func TestChatUpstreamFailure(t *testing.T) {
	r, _, _ := setupRouter(t, "key", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "overloaded")
	})

	resp := postChat(t, r, chat.Request{Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	require.Equal(t, http.StatusBadGateway, resp.Code)
	require.Contains(t, resp.Body.String(), "503")
	require.Contains(t, resp.Body.String(), "overloaded")
}

func TestChatBadRequest(t *testing.T) {
	r, f, _ := setupRouter(t, "key", sseEvents(evHel))

	for name, body := range map[string]any{
		"not json":     "{",
		"no messages":  chat.Request{},
		"unknown role": chat.Request{Messages: []chat.Message{{Role: "system", Content: "x"}}},
	} {
		t.Run(name, func(t *testing.T) {
			resp := postChat(t, r, body)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, "Bad Request", resp.Body.String())
		})
	}
	require.Zero(t, f.hits.Load())
}

func TestChatSweepsExpiredEntries(t *testing.T) {
	f := newFakeUpstream(t, sseEvents(evHel))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := cache.NewMemoryStore(time.Hour, cache.WithClock(clock))
	_ = store.Set(context.Background(), "stale", nil)
	now = now.Add(2 * time.Hour)

	r := chi.NewRouter()
	New(upstream.NewClient(f.srv.URL, "m", "key", nil), store).RegisterRoutes(r)

	resp := postChat(t, r, chat.Request{SessionID: "live", Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	require.Equal(t, http.StatusOK, resp.Code)

	ids, _ := store.Sessions(context.Background())
	require.Equal(t, []string{"live"}, ids)
}
