package stream

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
	chatService "github.com/zhouzirui/diagnosa/backend/internal/service/chat"
	"github.com/zhouzirui/diagnosa/backend/pkg/utils"
)

// Handler manages streaming model replies via Server-Sent Events
type Handler struct {
	chatSvc   *chatService.Service
	streaming bool
}

// New creates a new stream handler. When streaming is false the reply is
// produced with a single blocking call and sent as one message event.
func New(chatSvc *chatService.Service, streaming bool) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		streaming: streaming,
	}
}

// RegisterRoutes 注册流式输出路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")

	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("[stream] request finished with error")
	}
}

// HandleStreamRequest runs one turn for the session and writes its progress as
// SSE events: start, delta (streaming only), message, end. A failed turn is
// reported with an error event; the session stays usable.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return errors.New("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
	})

	reply, err := h.dispatch(ctx, w, flusher, sessionID, userMessage)
	if err != nil {
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:     "error",
			SessionID: sessionID,
			Error:     err.Error(),
			Kind:      string(chatService.KindOf(err)),
		})
		return err
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   reply.Text,
	})
	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	log.Debug().Str("session", sessionID).Msg("[stream] completed response")
	return nil
}

func (h *Handler) dispatch(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID, userMessage string) (chat.Turn, error) {
	if !h.streaming {
		return h.chatSvc.SubmitTurn(ctx, sessionID, userMessage)
	}

	return h.chatSvc.StreamTurn(ctx, sessionID, userMessage, func(delta string) {
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:     "delta",
			SessionID: sessionID,
			Content:   delta,
		})
	})
}
