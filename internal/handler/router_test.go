package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/diagnosa/backend/internal/config"
	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
	"github.com/zhouzirui/diagnosa/backend/internal/service/ai"
	chatService "github.com/zhouzirui/diagnosa/backend/internal/service/chat"
)

func newTestRouter() http.Handler {
	chatSvc := chatService.NewService(ai.NewMockCompleter(), chatService.Options{Priming: chat.DefaultPriming()})
	return NewRouter(chatSvc, config.AIConfig{Provider: config.ProviderMock, Model: "mock", StreamResponse: true})
}

func TestHealthz(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ok"`)
}

func TestPrimingEndpoint(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/priming", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, true, out["enabled"])
	assert.Equal(t, chat.DefaultPriming().Acknowledgment, out["acknowledgment"])
	assert.Equal(t, "mock", out["provider"])
}

func TestCORSHeaderOnAPI(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/priming", nil))
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}
