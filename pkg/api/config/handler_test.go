package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rating_calculator/pkg/core/agent"
)

func TestConfigEndpoints(t *testing.T) {
	mgr := agent.NewManager(agent.Config{}, nil)
	mux := http.NewServeMux()
	NewHandler(mgr, true, nil).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "openai", resp.ActiveProvider)
	assert.Equal(t, []string{"deepseek", "gemini", "openai", "qwen"}, resp.Available)
	assert.True(t, resp.Mock)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(`{"provider": "gemini"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gemini", mgr.GetActiveProvider())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(`{"provider": "kimi"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "provider kimi not found")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(`nope`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
