package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteChunkFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupTextStreamHeaders(rec)

	require.NoError(t, WriteChunk(rec, rec, "Hel"))
	require.True(t, rec.Flushed)
	require.NoError(t, WriteChunk(rec, rec, "lo"))

	require.Equal(t, "Hello", rec.Body.String())
	require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestRespondError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	RespondError(rec, req, http.StatusBadGateway, "upstream returned status 500")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "upstream returned status 500", rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
