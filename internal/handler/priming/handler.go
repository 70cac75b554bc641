package priming

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
	"github.com/zhouzirui/diagnosa/backend/pkg/utils"
)

// Handler exposes the priming pair so the UI can show the greeting before a
// session exists.
type Handler struct {
	priming  chat.Priming
	provider string
	model    string
}

// New 创建priming处理器
func New(priming chat.Priming, provider, model string) *Handler {
	return &Handler{priming: priming, provider: provider, model: model}
}

// RegisterRoutes 注册priming相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/priming", h.handlePriming)
}

type primingResponse struct {
	Enabled        bool   `json:"enabled"`
	Instruction    string `json:"instruction,omitempty"`
	Acknowledgment string `json:"acknowledgment,omitempty"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
}

func (h *Handler) handlePriming(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, primingResponse{
		Enabled:        !h.priming.Empty(),
		Instruction:    h.priming.Instruction,
		Acknowledgment: h.priming.Acknowledgment,
		Provider:       h.provider,
		Model:          h.model,
	})
}
