package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/diagnosa/backend/internal/config"
	"github.com/zhouzirui/diagnosa/backend/internal/handler/chat"
	"github.com/zhouzirui/diagnosa/backend/internal/handler/priming"
	"github.com/zhouzirui/diagnosa/backend/internal/handler/stream"
	"github.com/zhouzirui/diagnosa/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/diagnosa/backend/internal/middleware"
	chatService "github.com/zhouzirui/diagnosa/backend/internal/service/chat"
	"github.com/zhouzirui/diagnosa/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the session manager.
func NewRouter(chatSvc *chatService.Service, aiCfg config.AIConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.AccessLog(log.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": chatSvc.Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		priming.New(chatSvc.Priming(), aiCfg.Provider, aiCfg.Model).RegisterRoutes(api)
		chat.New(chatSvc).RegisterRoutes(api)
		stream.New(chatSvc, aiCfg.StreamResponse).RegisterRoutes(api)
		ws.New(chatSvc, aiCfg.StreamResponse).RegisterRoutes(api)
	})

	return r
}
