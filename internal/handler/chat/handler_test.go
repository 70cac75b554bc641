package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/diagnosa/backend/internal/service/chat"
)

type fakeCompleter struct {
	reply string
	err   error
	hang  bool
}

func (f *fakeCompleter) Complete(ctx context.Context, _ []chat.Turn) (string, error) {
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func (f *fakeCompleter) Stream(ctx context.Context, history []chat.Turn, onDelta func(string)) (string, error) {
	reply, err := f.Complete(ctx, history)
	if err == nil {
		onDelta(reply)
	}
	return reply, err
}

func setupRouter(completer *fakeCompleter, timeout time.Duration) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(completer, chatservice.Options{
		Priming: chat.DefaultPriming(),
		Timeout: timeout,
	})
	handler := New(chatSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeSession(t *testing.T, resp *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	var out sessionResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestInitializeSessionSeedsPriming(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{}, 0)

	resp := doJSON(t, r, http.MethodPost, "/session", map[string]string{})
	require.Equal(t, http.StatusCreated, resp.Code)

	out := decodeSession(t, resp)
	assert.NotEmpty(t, out.Session.ID)
	require.Len(t, out.Transcript, 2)
	assert.Equal(t, chat.RoleUser, out.Transcript[0].Role)
	assert.Equal(t, chat.RoleAssistant, out.Transcript[1].Role)
}

func TestInitializeSessionWithoutBody(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{}, 0)

	req := httptest.NewRequest(http.MethodPost, "/session", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestInitializeSessionTwiceIsNoop(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{}, 0)

	first := doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionId": "tab-1"})
	require.Equal(t, http.StatusCreated, first.Code)

	second := doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionId": "tab-1"})
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, decodeSession(t, first), decodeSession(t, second))
}

func TestInitializeSessionInvalidBody(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{}, 0)

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSubmitTurnReturnsReply(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{reply: "Diabetes adalah..."}, 0)
	doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionId": "s1"})

	resp := doJSON(t, r, http.MethodPost, "/session/s1/turns", map[string]string{"text": "diabetes"})
	require.Equal(t, http.StatusOK, resp.Code)

	var out turnResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, chat.RoleAssistant, out.Reply.Role)
	assert.Equal(t, "Diabetes adalah...", out.Reply.Text)

	transcript := decodeSession(t, doJSON(t, r, http.MethodGet, "/session/s1", nil)).Transcript
	require.Len(t, transcript, 4)
	assert.Equal(t, "diabetes", transcript[2].Text)
	assert.Equal(t, "Diabetes adalah...", transcript[3].Text)
}

func TestSubmitTurnRemoteFailureKeepsSessionUsable(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("upstream 500")}
	r, _ := setupRouter(completer, 0)
	doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionId": "s1"})

	resp := doJSON(t, r, http.MethodPost, "/session/s1/turns", map[string]string{"text": "flu"})
	require.Equal(t, http.StatusBadGateway, resp.Code)

	var out errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, string(chatservice.KindRemote), out.Kind)

	transcript := decodeSession(t, doJSON(t, r, http.MethodGet, "/session/s1", nil)).Transcript
	require.Len(t, transcript, 3)
	assert.Equal(t, chat.RoleUser, transcript[2].Role)

	completer.err = nil
	completer.reply = "Flu adalah..."
	resp = doJSON(t, r, http.MethodPost, "/session/s1/turns", map[string]string{"text": "flu"})
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestSubmitTurnTimeout(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{hang: true}, 20*time.Millisecond)
	doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionId": "s1"})

	resp := doJSON(t, r, http.MethodPost, "/session/s1/turns", map[string]string{"text": "demam berdarah"})
	assert.Equal(t, http.StatusGatewayTimeout, resp.Code)
}

func TestSubmitTurnValidation(t *testing.T) {
	r, _ := setupRouter(&fakeCompleter{reply: "x"}, 0)

	resp := doJSON(t, r, http.MethodPost, "/session/missing/turns", map[string]string{"text": "flu"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionId": "s1"})
	resp = doJSON(t, r, http.MethodPost, "/session/s1/turns", map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDeleteSession(t *testing.T) {
	r, svc := setupRouter(&fakeCompleter{}, 0)
	doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionId": "s1"})

	resp := doJSON(t, r, http.MethodDelete, "/session/s1", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Zero(t, svc.Len())

	resp = doJSON(t, r, http.MethodGet, "/session/s1", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(chatservice.ErrSessionNotFound))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(&chatservice.TurnError{Kind: chatservice.KindTimeout, Err: context.DeadlineExceeded}))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&chatservice.TurnError{Kind: chatservice.KindEmptyReply}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
