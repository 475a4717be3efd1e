// Package viewer serves the prompt viewer: the generated prompt bundles of a
// field or question, their previews and downloads, and the template registry.
package viewer

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"rating_calculator/pkg/api/httpx"
	"rating_calculator/pkg/core/catalog"
	"rating_calculator/pkg/core/logging"
	"rating_calculator/pkg/core/prompt"
	"rating_calculator/pkg/core/promptset"
	"rating_calculator/pkg/core/utils"
)

// Templates is the template registry the viewer reads. *prompt.Orchestrator
// satisfies it.
type Templates interface {
	promptset.Renderer
	List() ([]string, error)
	GetTemplateInfo(name string) (*prompt.TemplateInfo, error)
}

type Handler struct {
	templates Templates
	defs      *catalog.Loader
	builder   *promptset.Builder
	log       *zap.SugaredLogger
}

func NewHandler(templates Templates, defs *catalog.Loader, log *zap.SugaredLogger) *Handler {
	log = logging.OrNop(log)
	return &Handler{
		templates: templates,
		defs:      defs,
		builder:   promptset.NewBuilder(templates, defs, log),
		log:       log,
	}
}

// Register mounts the viewer routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/prompts/items", h.HandleItems)
	mux.HandleFunc("GET /api/prompts", h.HandlePrompts)
	mux.HandleFunc("GET /api/prompts/preview", h.HandlePreview)
	mux.HandleFunc("GET /api/prompts/download", h.HandleDownload)
	mux.HandleFunc("GET /api/templates", h.HandleTemplates)
	mux.HandleFunc("GET /api/templates/info", h.HandleTemplateInfo)
	mux.HandleFunc("POST /api/templates/render", h.HandleRender)
}

// ItemsResponse lists the definitions available for a process.
type ItemsResponse struct {
	Process string   `json:"process"`
	Label   string   `json:"label"`
	Dir     string   `json:"dir"`
	Items   []string `json:"items"`
	Warning string   `json:"warning,omitempty"`
}

// PromptEntry is one generated prompt.
type PromptEntry struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	ShortLabel string `json:"short_label"`
	FileStub   string `json:"file_stub"`
	Text       string `json:"text"`
}

// PromptsResponse is the flattened bundle of one field or question.
type PromptsResponse struct {
	Process string        `json:"process"`
	Name    string        `json:"name"`
	Count   int           `json:"count"`
	Prompts []PromptEntry `json:"prompts"`
}

func processOf(r *http.Request) (string, error) {
	p := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("process")))
	switch p {
	case "", promptset.ProcessExtraction:
		return promptset.ProcessExtraction, nil
	case promptset.ProcessEvaluation:
		return promptset.ProcessEvaluation, nil
	default:
		return "", fmt.Errorf("%w: %q", promptset.ErrInvalidProcess, p)
	}
}

func (h *Handler) HandleItems(w http.ResponseWriter, r *http.Request) {
	process, err := processOf(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := ItemsResponse{Process: process, Label: "Field", Dir: h.defs.FieldsDir}
	list := h.defs.ListFields
	if process == promptset.ProcessEvaluation {
		resp.Label, resp.Dir, list = "Question", h.defs.QuestionsDir, h.defs.ListQuestions
	}

	items, err := list()
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Items = items
	if len(items) == 0 {
		resp.Warning = fmt.Sprintf("No YAML files found in: %s", resp.Dir)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// load builds the bundle named by the query and writes the error response
// itself when it cannot.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (process, name string, entries []promptset.Entry, ok bool) {
	process, err := processOf(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return "", "", nil, false
	}
	name = r.URL.Query().Get("name")
	if name == "" {
		httpx.Error(w, http.StatusBadRequest, "name is required")
		return "", "", nil, false
	}

	opts := promptset.Options{Process: process, FieldName: name}
	if process == promptset.ProcessEvaluation {
		opts = promptset.Options{Process: process, QuestionName: name}
	}
	set, err := h.builder.Load(opts)
	if err != nil {
		h.log.Warnw("prompt generation failed", "process", process, "name", name, "error", err)
		status := http.StatusUnprocessableEntity
		if errors.Is(err, catalog.ErrDefinitionNotFound) {
			status = http.StatusNotFound
		}
		httpx.Error(w, status, fmt.Sprintf("Error generating prompts: %v", err))
		return "", "", nil, false
	}
	return process, name, set.Flatten(), true
}

func (h *Handler) HandlePrompts(w http.ResponseWriter, r *http.Request) {
	process, name, entries, ok := h.load(w, r)
	if !ok {
		return
	}
	resp := PromptsResponse{Process: process, Name: name, Count: len(entries), Prompts: make([]PromptEntry, 0, len(entries))}
	for _, e := range entries {
		label := promptset.DisplayLabel(e.Key)
		resp.Prompts = append(resp.Prompts, PromptEntry{
			Key:        e.Key,
			Label:      label,
			ShortLabel: promptset.ShortLabel(label, promptset.LabelWidth),
			FileStub:   promptset.FileStub(process, name, e.Key),
			Text:       e.Text,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// selected picks the prompt named by the key parameter, or the first one.
func selected(w http.ResponseWriter, r *http.Request, entries []promptset.Entry) (promptset.Entry, bool) {
	if len(entries) == 0 {
		httpx.Error(w, http.StatusNotFound, "No prompts were generated.")
		return promptset.Entry{}, false
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		return entries[0], true
	}
	for _, e := range entries {
		if e.Key == key {
			return e, true
		}
	}
	httpx.Error(w, http.StatusNotFound, fmt.Sprintf("prompt %q not found", key))
	return promptset.Entry{}, false
}

func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	_, _, entries, ok := h.load(w, r)
	if !ok {
		return
	}
	entry, ok := selected(w, r, entries)
	if !ok {
		return
	}

	w.Header().Set("X-Prompt-Key", entry.Key)
	switch strings.ToLower(r.URL.Query().Get("view")) {
	case "", "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(utils.MarkdownToHTML(entry.Text)))
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(entry.Text))
	default:
		httpx.Error(w, http.StatusBadRequest, "view must be html or markdown")
	}
}

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	process, name, entries, ok := h.load(w, r)
	if !ok {
		return
	}
	entry, ok := selected(w, r, entries)
	if !ok {
		return
	}

	var ext, mime string
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "md":
		ext, mime = "md", "text/markdown"
	case "txt":
		ext, mime = "txt", "text/plain"
	default:
		httpx.Error(w, http.StatusBadRequest, "format must be md or txt")
		return
	}
	filename := promptset.FileStub(process, name, entry.Key) + "." + ext
	w.Header().Set("Content-Type", mime+"; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write([]byte(entry.Text))
}

func (h *Handler) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := h.templates.List()
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"templates": names})
}

func (h *Handler) HandleTemplateInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.templates.GetTemplateInfo(r.URL.Query().Get("name"))
	if err != nil {
		httpx.Error(w, statusOf(err), err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, info)
}

// RenderRequest renders one template with explicit variables.
type RenderRequest struct {
	Name string                 `json:"name"`
	Vars map[string]interface{} `json:"vars"`
}

func (h *Handler) HandleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	if req.Vars == nil {
		req.Vars = map[string]interface{}{}
	}
	text, err := h.templates.GetPrompt(req.Name, req.Vars)
	if err != nil {
		httpx.Error(w, statusOf(err), err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"name": req.Name, "text": text})
}
