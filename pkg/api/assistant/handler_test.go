package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rating_calculator/pkg/core/agent"
)

type replyAgents struct {
	reply  string
	err    error
	role   string
	system string
}

func (a *replyAgents) ExecutePrompt(_ context.Context, role, _, systemPrompt string, _ map[string]interface{}) (string, error) {
	a.role, a.system = role, systemPrompt
	return a.reply, a.err
}

func navigate(t *testing.T, h *Handler, body string) NavigationResponse {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/assistant/navigate", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp NavigationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestNavigationFromModel(t *testing.T) {
	agents := &replyAgents{reply: "```json\n{\"intent\": \"navigate\", \"target_section\": \"extraction\", \"confidence\": 0.9, \"explanation\": \"ok\",}\n```"}
	resp := navigate(t, NewHandler(agents, nil), `{"message": "quiero extraer la deuda de repsol", "current_section": "settings"}`)

	assert.Equal(t, "navigate", resp.Intent)
	assert.Equal(t, "extraction", resp.TargetSection)
	assert.Equal(t, 0.9, resp.Confidence)
	assert.Equal(t, agent.RoleAssistant, agents.role)
	assert.Contains(t, agents.system, "The analyst is looking at: settings")
	assert.Contains(t, agents.system, "- run-history: Run History")
}

func TestNavigationUnparsedReply(t *testing.T) {
	resp := navigate(t, NewHandler(&replyAgents{reply: "hello there"}, nil), `{"message": "hi"}`)
	assert.Equal(t, "chat", resp.Intent)
	assert.Equal(t, "hello there", resp.Explanation)
	assert.Equal(t, 0.5, resp.Confidence)
}

func TestNavigationFallback(t *testing.T) {
	resp := navigate(t, NewHandler(&replyAgents{err: errors.New("down")}, nil), `{"message": "Open the Settings page"}`)
	assert.Equal(t, "settings", resp.TargetSection)
	assert.Equal(t, 0.8, resp.Confidence)

	resp = navigate(t, NewHandler(nil, nil), `{"message": "ver historial"}`)
	assert.Equal(t, "run-history", resp.TargetSection)

	resp = navigate(t, NewHandler(nil, nil), `{"message": "good morning"}`)
	assert.Equal(t, "chat", resp.Intent)
}
