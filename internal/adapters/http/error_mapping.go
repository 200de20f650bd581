package httpadapter

import (
	"net/http"

	"github.com/kirillkom/policy-query/internal/core/domain"
)

// statusByKind is checked in order; the first matching kind wins.
var statusByKind = []struct {
	kind   error
	status int
}{
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrDocumentNotFound, http.StatusNotFound},
	{domain.ErrCapacity, http.StatusConflict},
	{domain.ErrExtraction, http.StatusUnprocessableEntity},
	{domain.ErrChunking, http.StatusUnprocessableEntity},
	{domain.ErrIndex, http.StatusServiceUnavailable},
	{domain.ErrTemporary, http.StatusServiceUnavailable},
}

func mapErrorToHTTPStatus(err error) int {
	for _, m := range statusByKind {
		if domain.IsKind(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
