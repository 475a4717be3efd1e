// Package extraction serves the field extraction dashboard: companies, the
// fields of a company and extraction runs.
package extraction

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"rating_calculator/pkg/api/httpx"
	"rating_calculator/pkg/core/catalog"
	"rating_calculator/pkg/core/knowledge"
	"rating_calculator/pkg/core/logging"
	"rating_calculator/pkg/core/pipeline"
	"rating_calculator/pkg/core/promptset"
	"rating_calculator/pkg/core/schema"
	"rating_calculator/pkg/core/store"
)

// NoMatchWarning is returned when the field filter leaves nothing.
const NoMatchWarning = "No fields match the filter."

// Runner runs and describes extractions. *pipeline.Runner satisfies it.
type Runner interface {
	Mock() bool
	Companies() []string
	Registry(company string) (*catalog.Registry, error)
	Run(ctx context.Context, company, fieldID, fieldType string) (*pipeline.Result, error)
}

type Handler struct {
	runner Runner
	runs   store.RunRepository
	log    *zap.SugaredLogger
}

// NewHandler creates the handler. runs may be nil to disable history.
func NewHandler(runner Runner, runs store.RunRepository, log *zap.SugaredLogger) *Handler {
	return &Handler{runner: runner, runs: runs, log: logging.OrNop(log)}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/extraction/companies", h.HandleCompanies)
	mux.HandleFunc("GET /api/extraction/fields", h.HandleFields)
	mux.HandleFunc("POST /api/extraction/run", h.HandleRun)
	mux.HandleFunc("GET /api/extraction/runs", h.HandleRuns)
	mux.HandleFunc("GET /api/extraction/runs/latest", h.HandleLatest)
}

type CompaniesResponse struct {
	Companies []string `json:"companies"`
	Mock      bool     `json:"mock"`
	Warning   string   `json:"warning,omitempty"`
}

type FieldsResponse struct {
	Company string               `json:"company"`
	Filter  string               `json:"filter,omitempty"`
	Fields  []catalog.FieldEntry `json:"fields"`
	Warning string               `json:"warning,omitempty"`
}

// RunRequest selects the field to extract. FieldType is the catalog type
// (Numeric, Table or String).
type RunRequest struct {
	Company   string `json:"company"`
	FieldID   string `json:"field_id"`
	FieldType string `json:"field_type"`
}

// RunResponse is a run result with a readable report of each payload.
type RunResponse struct {
	*pipeline.Result
	Report  map[string]string `json:"report,omitempty"`
	Warning string            `json:"warning,omitempty"`
}

func (h *Handler) mockWarning() string {
	if h.runner.Mock() {
		return pipeline.MockWarning
	}
	return ""
}

func (h *Handler) HandleCompanies(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, CompaniesResponse{
		Companies: h.runner.Companies(),
		Mock:      h.runner.Mock(),
		Warning:   h.mockWarning(),
	})
}

// mockFields is the field list shown when no backend is configured.
var mockFields = []catalog.FieldEntry{{Field: "example_field", FieldID: "example_id_sub", Type: catalog.TypeString}}

func (h *Handler) HandleFields(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	filter := r.URL.Query().Get("filter")

	var reg *catalog.Registry
	if h.runner.Mock() {
		reg = &catalog.Registry{Company: company, Fields: mockFields}
	} else {
		var err error
		reg, err = h.runner.Registry(company)
		if err != nil {
			httpx.Error(w, statusOf(err), err.Error())
			return
		}
	}

	resp := FieldsResponse{Company: company, Filter: filter, Fields: reg.Filter(filter)}
	if resp.Fields == nil {
		resp.Fields = []catalog.FieldEntry{}
	}
	if len(resp.Fields) == 0 {
		resp.Warning = NoMatchWarning
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	if req.Company == "" || req.FieldID == "" {
		httpx.Error(w, http.StatusBadRequest, "company and field_id are required")
		return
	}

	res, err := h.runner.Run(r.Context(), req.Company, req.FieldID, req.FieldType)
	if err != nil {
		h.log.Errorw("extraction run failed", "company", req.Company, "field_id", req.FieldID, "error", err)
		httpx.Error(w, statusOf(err), err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, RunResponse{Result: res, Report: report(res), Warning: h.mockWarning()})
}

func report(res *pipeline.Result) map[string]string {
	out := make(map[string]string, 3)
	for name, payload := range map[string]map[string]interface{}{
		"initial":     res.Initial,
		"alternative": res.Alternative,
		"critique":    res.Critique,
	} {
		var buf bytes.Buffer
		if err := schema.Render(&buf, payload); err == nil {
			out[name] = buf.String()
		}
	}
	return out
}

func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		httpx.Error(w, http.StatusNotFound, "run history is disabled")
		return
	}
	company := r.URL.Query().Get("company")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.List(r.Context(), company, limit)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"company": company, "runs": runs})
}

func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		httpx.Error(w, http.StatusNotFound, "run history is disabled")
		return
	}
	q := r.URL.Query()
	run, err := h.runs.Latest(r.Context(), q.Get("company"), q.Get("field_id"))
	if err != nil {
		httpx.Error(w, statusOf(err), err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownCompany),
		errors.Is(err, pipeline.ErrUnknownField),
		errors.Is(err, store.ErrRunNotFound),
		errors.Is(err, catalog.ErrDefinitionNotFound),
		errors.Is(err, knowledge.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, promptset.ErrInvalidFieldType),
		errors.Is(err, schema.ErrDecode),
		errors.Is(err, schema.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
