package chat

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
	chatService "github.com/zhouzirui/diagnosa/backend/internal/service/chat"
	"github.com/zhouzirui/diagnosa/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleInitializeSession)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Delete("/session/{sessionID}", h.handleDeleteSession)
	r.Post("/session/{sessionID}/turns", h.handleSubmitTurn)
}

type sessionResponse struct {
	Session    chat.Session `json:"session"`
	Transcript []chat.Turn  `json:"transcript"`
}

type turnResponse struct {
	Reply chat.Turn `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// handleInitializeSession 创建会话；已存在的会话保持不变
func (h *Handler) handleInitializeSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, created, err := h.chatSvc.InitializeSession(r.Context(), payload.SessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	transcript, err := h.chatSvc.RenderTranscript(r.Context(), session.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.RespondJSON(w, status, sessionResponse{Session: session, Transcript: transcript})
}

// handleGetSession 返回会话及完整对话记录
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	transcript, err := h.chatSvc.RenderTranscript(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionResponse{Session: session, Transcript: transcript})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitTurn 提交用户消息并同步等待模型回复
func (h *Handler) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chatSvc.SubmitTurn(r.Context(), chi.URLParam(r, "sessionID"), payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, turnResponse{Reply: reply})
}

// StatusFor maps session manager errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrEmptyMessage), errors.Is(err, chatService.ErrInvalidSessionID):
		return http.StatusBadRequest
	}

	switch chatService.KindOf(err) {
	case chatService.KindTimeout:
		return http.StatusGatewayTimeout
	case chatService.KindCanceled:
		return http.StatusServiceUnavailable
	case chatService.KindRemote, chatService.KindEmptyReply:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	utils.RespondJSON(w, StatusFor(err), errorResponse{
		Error: err.Error(),
		Kind:  string(chatService.KindOf(err)),
	})
}
