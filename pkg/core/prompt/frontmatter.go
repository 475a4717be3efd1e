package prompt

import (
	"bytes"
	"fmt"

	"rating_calculator/pkg/core/utils"
)

var delimiter = []byte("---")

// ParseFrontmatter splits data into a Post. Content without a leading "---"
// line has empty metadata. Trailing newlines are dropped from the content in
// both cases so rendered prompts never end with a line break.
func ParseFrontmatter(data []byte) (*Post, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(normalized, delimiter) {
		return &Post{Metadata: map[string]interface{}{}, Content: trimContent(data)}, nil
	}

	// The opening delimiter must be alone on its line.
	firstNL := bytes.IndexByte(normalized, '\n')
	if firstNL < 0 || len(bytes.TrimSpace(normalized[:firstNL])) != len(delimiter) {
		return &Post{Metadata: map[string]interface{}{}, Content: trimContent(data)}, nil
	}
	rest := normalized[firstNL+1:]

	end := -1
	offset := 0
	for offset <= len(rest) {
		lineEnd := bytes.IndexByte(rest[offset:], '\n')
		var line []byte
		if lineEnd < 0 {
			line = rest[offset:]
		} else {
			line = rest[offset : offset+lineEnd]
		}
		if bytes.Equal(bytes.TrimRight(line, " \t"), delimiter) {
			end = offset
			break
		}
		if lineEnd < 0 {
			break
		}
		offset += lineEnd + 1
	}
	if end < 0 {
		return nil, fmt.Errorf("%w: missing closing '---'", ErrFrontmatter)
	}

	meta, err := utils.UnmarshalYAMLMap(rest[:end])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrontmatter, err)
	}

	body := rest[end+len(delimiter):]
	body = bytes.TrimLeft(body, " \t")
	body = bytes.TrimPrefix(body, []byte("\n"))

	return &Post{Metadata: meta, Content: trimContent(body)}, nil
}

func trimContent(b []byte) string {
	return string(bytes.TrimRight(b, "\r\n"))
}
