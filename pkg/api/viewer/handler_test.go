package viewer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rating_calculator/pkg/api/httpx"
	"rating_calculator/pkg/core/catalog"
	"rating_calculator/pkg/core/prompt"
)

const fieldYAML = `field_name: Unhedged foreign currency debt
field_type: quantitative
description: Debt in foreign currency without hedging.
synonyms: [uncovered FX debt]
source_guides: [Currency risk notes]
specifications: [Use the consolidated figure]
exclusions: [Debt hedged with swaps]
`

const questionYAML = `question_id: question_17
subfactor: Strategy
question: Is there a published strategic plan?
premises:
  strategic_planning:
    statement: A multi-year plan is published.
  execution:
    statement: Previous targets were met.
`

func newServer(t *testing.T, withFiles bool) (*httptest.Server, string) {
	t.Helper()
	fields, questions := t.TempDir(), filepath.Join(t.TempDir(), "absent")
	if withFiles {
		questions = t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(fields, "027_unhedged_fx_debt.yaml"), []byte(fieldYAML), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(fields, "bad.yaml"), []byte("field_type: narrative\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(questions, "question_17.yaml"), []byte(questionYAML), 0o644))
	}
	defs, err := catalog.NewLoader(fields, questions, nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewHandler(prompt.New(prompt.EmbeddedTemplates()), defs, nil).Register(mux)
	srv := httptest.NewServer(httpx.CORS("*", mux))
	t.Cleanup(srv.Close)
	return srv, questions
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestItems(t *testing.T) {
	srv, _ := newServer(t, true)
	var items ItemsResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/prompts/items", &items))
	assert.Equal(t, "extraction", items.Process)
	assert.Equal(t, []string{"027_unhedged_fx_debt", "bad"}, items.Items)
	assert.Empty(t, items.Warning)

	var errResp httpx.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/prompts/items?process=scoring", &errResp))
	assert.Contains(t, errResp.Error, "invalid process")
}

func TestItemsWarning(t *testing.T) {
	srv, questions := newServer(t, false)
	var items ItemsResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/prompts/items?process=evaluation", &items))
	assert.Equal(t, "Question", items.Label)
	assert.Empty(t, items.Items)
	assert.Equal(t, "No YAML files found in: "+questions, items.Warning)
}

func TestPrompts(t *testing.T) {
	srv, _ := newServer(t, true)

	var resp PromptsResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/prompts?process=evaluation&name=question_17", &resp))
	require.Equal(t, 5, resp.Count)
	assert.Equal(t, "premises_evaluation_prompts.strategic_planning", resp.Prompts[0].Key)
	assert.Equal(t, "strategic_planning", resp.Prompts[0].Label)
	assert.Equal(t, "evaluation_question_17_strategic_planning", resp.Prompts[0].FileStub)
	assert.Contains(t, resp.Prompts[1].Text, "Previous targets were met.")

	var errResp httpx.ErrorResponse
	assert.Equal(t, http.StatusUnprocessableEntity, getJSON(t, srv.URL+"/api/prompts?name=bad", &errResp))
	assert.True(t, strings.HasPrefix(errResp.Error, "Error generating prompts: "))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/prompts?name=missing", &errResp))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/prompts", &errResp))
}

func TestPromptsStayInsideDefinitionDirs(t *testing.T) {
	root := t.TempDir()
	fields := filepath.Join(root, "fields")
	require.NoError(t, os.MkdirAll(fields, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "outside.yaml"), []byte(fieldYAML), 0o644))
	defs, err := catalog.NewLoader(fields, fields, nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewHandler(prompt.New(prompt.EmbeddedTemplates()), defs, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	for _, name := range []string{"../outside", "..%2Foutside", "..%5Coutside"} {
		t.Run(name, func(t *testing.T) {
			var errResp httpx.ErrorResponse
			status := getJSON(t, srv.URL+"/api/prompts?process=extraction&name="+name, &errResp)
			assert.Equal(t, http.StatusNotFound, status)
			assert.NotContains(t, errResp.Error, "Unhedged")
		})
	}
}

func TestPreviewAndDownload(t *testing.T) {
	srv, _ := newServer(t, true)

	resp, err := http.Get(srv.URL + "/api/prompts/preview?name=027_unhedged_fx_debt")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "extract_quantitative", resp.Header.Get("X-Prompt-Key"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(srv.URL + "/api/prompts/preview?name=027_unhedged_fx_debt&key=critique_quantitative&view=markdown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")

	resp, err = http.Get(srv.URL + "/api/prompts/preview?name=027_unhedged_fx_debt&key=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/prompts/download?name=027_unhedged_fx_debt&key=user_prompt_extract&format=txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, `attachment; filename="extraction_027_unhedged_fx_debt_user_prompt_extract.txt"`, resp.Header.Get("Content-Disposition"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	resp, err = http.Get(srv.URL + "/api/prompts/download?name=027_unhedged_fx_debt&format=pdf")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTemplates(t *testing.T) {
	srv, _ := newServer(t, true)

	var list map[string][]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/templates", &list))
	assert.Contains(t, list["templates"], "extraction/extract")

	var info prompt.TemplateInfo
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/templates/info?name=common/user", &info))
	assert.Contains(t, info.Variables, "user_type")

	var errResp httpx.ErrorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/templates/info?name=nope", &errResp))

	resp, err := http.Post(srv.URL+"/api/templates/render", "application/json",
		strings.NewReader(`{"name": "common/user", "vars": {"user_type": "summarize", "content": "abc"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	var rendered map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rendered))
	assert.Contains(t, rendered["text"], "<content>\nabc\n</content>")

	resp, err = http.Post(srv.URL+"/api/templates/render", "application/json", strings.NewReader(`{"name": "common/user"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/templates/render", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
