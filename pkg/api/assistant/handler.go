package assistant

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"rating_calculator/pkg/api/httpx"
	"rating_calculator/pkg/core/agent"
	"rating_calculator/pkg/core/logging"
	"rating_calculator/pkg/core/rag"
	"rating_calculator/pkg/core/utils"
)

// Handler provides HTTP handlers for the dashboard assistant
type Handler struct {
	agents rag.Executor
	log    *zap.SugaredLogger
}

// NewHandler creates a new assistant handler. With nil agents every request
// is answered by keyword matching.
func NewHandler(agents rag.Executor, log *zap.SugaredLogger) *Handler {
	return &Handler{agents: agents, log: logging.OrNop(log)}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/assistant/navigate", h.HandleNavigationIntent)
}

// NavigationRequest represents the user's natural language query
type NavigationRequest struct {
	Message        string `json:"message"`
	CurrentSection string `json:"current_section,omitempty"`
}

// NavigationResponse contains the LLM's parsed intent
type NavigationResponse struct {
	Intent          string           `json:"intent"` // "navigate", "query", "chat"
	TargetSection   string           `json:"target_section,omitempty"`
	SectionLabel    string           `json:"section_label,omitempty"`
	Confidence      float64          `json:"confidence"`
	Explanation     string           `json:"explanation"`
	DataPointsFound []string         `json:"data_points_found,omitempty"`
	Suggestions     []NavigationHint `json:"suggestions,omitempty"`
}

// NavigationHint provides alternative navigation suggestions
type NavigationHint struct {
	SectionID string `json:"section_id"`
	Label     string `json:"label"`
	Relevance string `json:"relevance"`
}

// Section is a navigable dashboard page.
type Section struct {
	ID          string
	Label       string
	Description string
	Keywords    []string
}

// Sections lists the dashboard pages, in keyword matching order.
var Sections = []Section{
	{
		ID: "field-prompts", Label: "Field Prompts",
		Description: "Preview and download the extraction prompts of a field definition. Data: system premises, extract, alternative and critique prompts",
		Keywords:    []string{"field prompt", "campo", "campos", "extraction prompt"},
	},
	{
		ID: "evaluation-prompts", Label: "Evaluation Prompts",
		Description: "Preview and download the evaluation prompts of a rating question. Data: premises, consolidation, subfactor evaluation",
		Keywords:    []string{"question", "pregunta", "evaluation", "evaluación", "subfactor"},
	},
	{
		ID: "templates", Label: "Templates",
		Description: "Browse the prompt templates and their frontmatter, render one with custom variables",
		Keywords:    []string{"template", "plantilla"},
	},
	{
		ID: "extraction", Label: "Field Extraction",
		Description: "Run the extraction of a company field against its indexes. Data: extracted value, alternative extraction, critique, source chunks",
		Keywords:    []string{"extract", "extraer", "extracción", "run", "company", "empresa"},
	},
	{
		ID: "run-history", Label: "Run History",
		Description: "Previous extraction runs of a company and the latest result per field",
		Keywords:    []string{"history", "historial", "latest", "previous"},
	},
	{
		ID: "settings", Label: "Settings",
		Description: "Configure the active LLM provider",
		Keywords:    []string{"settings", "ajustes", "configuración", "provider", "proveedor"},
	},
}

// NavigationRegistry renders Sections for the model.
func NavigationRegistry() string {
	var b strings.Builder
	b.WriteString("Available sections in the rating dashboard:\n\n")
	for _, s := range Sections {
		fmt.Fprintf(&b, "- %s: %s - %s\n", s.ID, s.Label, s.Description)
	}
	return b.String()
}

func systemPrompt(current string) string {
	return fmt.Sprintf(`You route analysts around a credit rating workbench where they review
extraction prompts, run field extractions over company reports and check past runs.

%s
The analyst is looking at: %s

Reply with one JSON object and nothing else:
{
  "intent": "navigate" | "query" | "chat",
  "target_section": "<section id, only for navigate>",
  "section_label": "<label of that section>",
  "confidence": <number between 0 and 1>,
  "explanation": "<one sentence, in the analyst's language>",
  "data_points_found": ["<fields, companies or prompts the analyst mentions>"],
  "suggestions": [{"section_id": "...", "label": "...", "relevance": "..."}]
}

Use "navigate" when the analyst asks to open a page, "query" when they ask about
something a page shows (then suggest it) and "chat" otherwise. Analysts write in
Spanish or English; answer in the language of the message.`, NavigationRegistry(), current)
}

// HandleNavigationIntent parses user message and returns navigation intent
func (h *Handler) HandleNavigationIntent(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	if h.agents == nil {
		httpx.JSON(w, http.StatusOK, fallbackKeywordMatch(req.Message))
		return
	}

	resp, err := h.agents.ExecutePrompt(r.Context(), agent.RoleAssistant, req.Message, systemPrompt(req.CurrentSection), nil)
	if err != nil {
		h.log.Warnw("assistant call failed, using keyword matching", "error", err)
		httpx.JSON(w, http.StatusOK, fallbackKeywordMatch(req.Message))
		return
	}

	var navResp NavigationResponse
	if _, err := utils.SmartParse(resp, &navResp); err != nil {
		navResp = NavigationResponse{
			Intent:      "chat",
			Explanation: resp,
			Confidence:  0.5,
		}
	}
	httpx.JSON(w, http.StatusOK, navResp)
}

// fallbackKeywordMatch provides basic keyword-based navigation when LLM is unavailable
func fallbackKeywordMatch(message string) NavigationResponse {
	msg := strings.ToLower(message)
	for _, s := range Sections {
		for _, kw := range s.Keywords {
			if strings.Contains(msg, kw) {
				return NavigationResponse{
					Intent:        "navigate",
					TargetSection: s.ID,
					SectionLabel:  s.Label,
					Confidence:    0.8,
					Explanation:   fmt.Sprintf("Keyword '%s' detected, suggesting %s", kw, s.Label),
				}
			}
		}
	}
	return NavigationResponse{
		Intent:      "chat",
		Confidence:  1.0,
		Explanation: "No navigation intent detected",
	}
}
