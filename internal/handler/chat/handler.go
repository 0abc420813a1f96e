package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	"github.com/zhouzirui/streamchat/internal/service/cache"
	"github.com/zhouzirui/streamchat/internal/service/upstream"
	"github.com/zhouzirui/streamchat/pkg/utils"
)

// SessionHeader carries the effective session id back to the client.
const SessionHeader = "X-Session-ID"

const msgBadRequest = "Bad Request"

// Streamer starts a streaming generation upstream.
type Streamer interface {
	Configured() bool
	Stream(ctx context.Context, contents []upstream.Content) (*schema.StreamReader[string], error)
}

// Handler 聊天转发的HTTP处理器
type Handler struct {
	upstream Streamer
	cache    cache.Store
}

// New 创建聊天转发处理器
func New(up Streamer, store cache.Store) *Handler {
	return &Handler{
		upstream: up,
		cache:    store,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

func logger() *zap.SugaredLogger {
	return zap.S().Named("chat")
}

// handleChat 转发对话到上游并以纯文本流返回
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if n, err := h.cache.Sweep(ctx); err != nil {
		logger().Infow("cache sweep fail", "err", err)
	} else if n > 0 {
		logger().Debugw("cache sweep", "removed", n)
	}

	if !h.upstream.Configured() {
		utils.RespondError(w, r, http.StatusInternalServerError, "server misconfigured: GEMINI_API_KEY is not set")
		return
	}

	var payload chat.Request
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		logger().Infow("decode request fail", "err", err)
		utils.RespondError(w, r, http.StatusBadRequest, msgBadRequest)
		return
	}
	if err := payload.Validate(); err != nil {
		logger().Infow("invalid request", "err", err)
		utils.RespondError(w, r, http.StatusBadRequest, msgBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	w.Header().Set(SessionHeader, sessionID)

	history := chat.TrimTrailingPlaceholder(payload.Messages)
	if err := h.cache.Set(ctx, sessionID, history); err != nil {
		logger().Infow("cache conversation fail", "sid", sessionID, "err", err)
	}

	logger().Infow("chat", "sid", sessionID, "msgs", len(history), "ip", r.RemoteAddr)

	stream, err := h.upstream.Stream(ctx, upstream.ToContents(history))
	if err != nil {
		h.respondUpstreamError(w, r, sessionID, err)
		return
	}
	defer stream.Close()

	utils.SetupTextStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var sent int
	for {
		fragment, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			// headers are gone already, all we can do is end the body
			logger().Infow("upstream stream broke", "sid", sessionID, "sent", sent, "err", recvErr)
			return
		}
		if err := utils.WriteChunk(w, flusher, fragment); err != nil {
			logger().Infow("client write fail", "sid", sessionID, "err", err)
			return
		}
		sent += len(fragment)
	}

	logger().Debugw("chat stream done", "sid", sessionID, "bytes", sent)
}

func (h *Handler) respondUpstreamError(w http.ResponseWriter, r *http.Request, sessionID string, err error) {
	if errors.Is(err, context.Canceled) {
		logger().Infow("client gone before upstream answered", "sid", sessionID)
		return
	}
	if errors.Is(err, upstream.ErrMissingAPIKey) {
		utils.RespondError(w, r, http.StatusInternalServerError, "server misconfigured: GEMINI_API_KEY is not set")
		return
	}

	logger().Infow("upstream fail", "sid", sessionID, "err", err)

	var se *upstream.StatusError
	if errors.As(err, &se) {
		utils.RespondError(w, r, http.StatusBadGateway, fmt.Sprintf("Upstream error %d: %s", se.Status, se.Body))
		return
	}
	utils.RespondError(w, r, http.StatusBadGateway, fmt.Sprintf("Upstream error: %v", err))
}
