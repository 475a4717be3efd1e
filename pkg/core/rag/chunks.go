// Package rag retrieves report chunks for a field definition and asks the
// configured chat model to extract or summarize from them.
package rag

import (
	"fmt"
	"strings"

	"rating_calculator/pkg/core/knowledge"
)

// Metadata keys a loader may set to override the chunk identifiers.
const (
	MetaChunkDocument = "chunk_document"
	MetaChunkPage     = "chunk_page"
)

// ChunkLine renders one retrieved document as a single prompt line:
//
//	text: <text> | chunk_id: <id> | chunk_page: <page> | chunk_document: <file>
//
// i is the position of the document in the result list and only appears in
// ids synthesized for documents that carry none.
func ChunkLine(doc knowledge.Document, i int) string {
	md := doc.Metadata
	text := strings.TrimSpace(strings.ReplaceAll(doc.Content, "\n", " "))

	document := "unknown"
	if v, ok := md[MetaChunkDocument]; ok && truthy(v) {
		document = fmt.Sprint(v)
	} else if v, ok := md[knowledge.MetaSource]; ok && truthy(v) {
		document = fmt.Sprint(v)
	}
	document = baseName(document)

	var page interface{} = "unknown"
	if v, ok := md[MetaChunkPage]; ok && v != nil {
		page = v
	} else if v, ok := md[knowledge.MetaPageLabel]; ok {
		page = v
	} else if v, ok := md[knowledge.MetaPage]; ok {
		page = v
	}

	id := ""
	if v, ok := md[knowledge.MetaChunkID]; ok && truthy(v) {
		id = fmt.Sprint(v)
	} else if doc.ID != "" {
		id = doc.ID
	} else {
		var p interface{} = "unk"
		if v, ok := md[knowledge.MetaPage]; ok {
			p = v
		} else if v, ok := md[knowledge.MetaPageLabel]; ok {
			p = v
		}
		id = fmt.Sprintf("%s::p%v::c%d", document, p, i)
	}

	return fmt.Sprintf("text: %s | chunk_id: %s | chunk_page: %v | chunk_document: %s", text, id, page, document)
}

// ChunkLines joins the lines of docs with newlines.
func ChunkLines(docs []knowledge.Document) string {
	lines := make([]string, len(docs))
	for i, d := range docs {
		lines[i] = ChunkLine(d, i)
	}
	return strings.Join(lines, "\n")
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case bool:
		return x
	}
	return true
}

// baseName keeps the file name of a slash or backslash separated path.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
