package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/diagnosa/backend/internal/service/chat"
)

const (
	defaultReadTimeout = 60 * time.Second
	pingInterval       = 54 * time.Second
	writeTimeout       = 10 * time.Second
)

// Handler WebSocket聊天处理器
type Handler struct {
	chatSvc     *chatservice.Service
	streaming   bool
	upgrader    websocket.Upgrader
	readTimeout time.Duration
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service, streaming bool) *Handler {
	return &Handler{
		chatSvc:     chatSvc,
		streaming:   streaming,
		readTimeout: defaultReadTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// TextMessage carries one user turn.
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// conn serialises writes; gorilla allows one concurrent writer only.
type conn struct {
	ws        *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *conn) send(msgType string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		log.Warn().Err(err).Str("session", c.sessionID).Msg("[websocket] write failed")
	}
}

func (c *conn) sendError(message, kind string) {
	payload := map[string]string{"message": message}
	if kind != "" {
		payload["kind"] = kind
	}
	c.send("error", payload)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[websocket] upgrade failed")
		return
	}
	defer wsConn.Close()

	c := &conn{ws: wsConn, sessionID: sessionID}
	log.Info().Str("session", sessionID).Msg("[websocket] new connection")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = wsConn.SetReadDeadline(time.Now().Add(h.readTimeout))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	go h.pingLoop(ctx, c)

	c.send("connected", map[string]any{"streaming": h.streaming})

	for {
		var msg inboundMessage
		if err := wsConn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("session", sessionID).Msg("[websocket] read error")
			}
			return
		}

		if msg.SessionID != "" && msg.SessionID != sessionID {
			c.sendError("session mismatch", "")
			_ = wsConn.SetReadDeadline(time.Now().Add(h.readTimeout))
			continue
		}

		// No read runs while a turn is in flight, so pongs cannot extend the
		// deadline. Suspend it for the turn; the service timeout bounds the call.
		_ = wsConn.SetReadDeadline(time.Time{})
		h.handleMessage(ctx, c, &msg)
		_ = wsConn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *conn, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		h.handleTextMessage(ctx, c, msg.Data)
	case "history":
		h.sendHistory(ctx, c)
	default:
		c.sendError("unsupported message type: "+msg.Type, "")
	}
}

func (h *Handler) handleTextMessage(ctx context.Context, c *conn, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		c.sendError("invalid text payload", "")
		return
	}

	var (
		reply chat.Turn
		err   error
	)
	if h.streaming {
		reply, err = h.chatSvc.StreamTurn(ctx, c.sessionID, text.Text, func(delta string) {
			c.send("delta", map[string]string{"text": delta})
		})
	} else {
		reply, err = h.chatSvc.SubmitTurn(ctx, c.sessionID, text.Text)
	}
	if err != nil {
		c.sendError(err.Error(), string(chatservice.KindOf(err)))
		return
	}

	c.send("message", reply)
}

func (h *Handler) sendHistory(ctx context.Context, c *conn) {
	turns, err := h.chatSvc.RenderTranscript(ctx, c.sessionID)
	if err != nil {
		c.sendError(err.Error(), "")
		return
	}
	c.send("history", turns)
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
