package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/streamchat/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/streamchat/internal/middleware"
	"github.com/zhouzirui/streamchat/internal/service/cache"
	"github.com/zhouzirui/streamchat/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
// handlerTimeout is the coarse ceiling for a whole request, streaming included.
func NewRouter(up chat.Streamer, store cache.Store, handlerTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondText(w, r, http.StatusOK, "ok")
	})

	chatHandler := chat.New(up, store)

	r.Route("/api", func(api chi.Router) {
		if handlerTimeout > 0 {
			api.Use(middleware.Timeout(handlerTimeout))
		}
		chatHandler.RegisterRoutes(api)
	})

	return r
}
