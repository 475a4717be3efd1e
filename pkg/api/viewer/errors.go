package viewer

import (
	"errors"
	"net/http"

	"rating_calculator/pkg/core/prompt"
)

func statusOf(err error) int {
	switch {
	case errors.Is(err, prompt.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, prompt.ErrRender), errors.Is(err, prompt.ErrFrontmatter):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
