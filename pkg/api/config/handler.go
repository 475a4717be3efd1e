package config

import (
	"net/http"

	"go.uber.org/zap"

	"rating_calculator/pkg/api/httpx"
	"rating_calculator/pkg/core/agent"
	"rating_calculator/pkg/core/logging"
)

type Response struct {
	ActiveProvider string   `json:"active_provider"`
	Available      []string `json:"available"`
	Mock           bool     `json:"mock"`
}

type SwitchRequest struct {
	Provider string `json:"provider"`
}

type SwitchResponse struct {
	ActiveProvider string `json:"active_provider"`
	Message        string `json:"message"`
}

// Handler serves the settings page: the active LLM provider and switching it.
type Handler struct {
	AgentMgr *agent.Manager
	mock     bool
	log      *zap.SugaredLogger
}

// NewHandler creates a new config handler. mock is reported to the settings
// page so it can show that runs return placeholder payloads.
func NewHandler(agentMgr *agent.Manager, mock bool, log *zap.SugaredLogger) *Handler {
	return &Handler{
		AgentMgr: agentMgr,
		mock:     mock,
		log:      logging.OrNop(log),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/config", h.HandleConfig)
	mux.HandleFunc("POST /api/config/switch", h.HandleSwitch)
}

func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Response{
		ActiveProvider: h.AgentMgr.GetActiveProvider(),
		Available:      h.AgentMgr.Available(),
		Mock:           h.mock,
	})
}

func (h *Handler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	if err := h.AgentMgr.SetGlobalProvider(req.Provider); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Infow("provider switched from settings", "provider", req.Provider)
	httpx.JSON(w, http.StatusOK, SwitchResponse{
		ActiveProvider: req.Provider,
		Message:        "Switched to " + req.Provider,
	})
}
