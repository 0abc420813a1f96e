package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/streamchat/internal/service/cache"
	"github.com/zhouzirui/streamchat/internal/service/upstream"
)

func TestRouterHealthz(t *testing.T) {
	r := NewRouter(upstream.NewClient("http://127.0.0.1:1", "m", "", nil), cache.NewMemoryStore(time.Hour), time.Minute)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestRouterChatWithoutCredential(t *testing.T) {
	r := NewRouter(upstream.NewClient("http://127.0.0.1:1", "m", "", nil), cache.NewMemoryStore(time.Hour), time.Minute)

	body := strings.NewReader(`{"messages":[{"role":"user","content":"hi"}],"sessionId":"s"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterUnknownMethod(t *testing.T) {
	r := NewRouter(upstream.NewClient("http://127.0.0.1:1", "m", "k", nil), cache.NewMemoryStore(time.Hour), 0)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
