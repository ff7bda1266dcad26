package wire

import (
	"errors"
	"net/http"

	"github.com/kailas-cloud/regcheck/internal/domain"
)

// StatusClientClosedRequest is reported when the caller abandoned the request.
const StatusClientClosedRequest = 499

// Error codes returned to clients.
const (
	CodeInvalidQuery          = "invalid_query"
	CodeValidationFailed      = "validation_failed"
	CodeDimensionMismatch     = "dimension_mismatch"
	CodeDuplicateID           = "duplicate_id"
	CodeNotFound              = "not_found"
	CodeTimeout               = "timeout"
	CodeCanceled              = "canceled"
	CodeEmbeddingUnavailable  = "embedding_unavailable"
	CodeGenerationUnavailable = "generation_unavailable"
	CodeStoreUnavailable      = "store_unavailable"
	CodeBadRequest            = "bad_request"
	CodeUnauthorized          = "unauthorized"
	CodeInternal              = "internal_error"
)

type mapping struct {
	sentinel error
	status   int
	code     string
	// detail exposes the full error text; only for errors describing caller input.
	detail bool
}

// Ordered: the first match wins, so specific sentinels precede the ones they may wrap.
var mappings = []mapping{
	{domain.ErrInvalidQuery, http.StatusBadRequest, CodeInvalidQuery, true},
	{domain.ErrInvalidDocument, http.StatusBadRequest, CodeValidationFailed, true},
	{domain.ErrDimensionMismatch, http.StatusUnprocessableEntity, CodeDimensionMismatch, false},
	{domain.ErrDuplicateID, http.StatusConflict, CodeDuplicateID, false},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound, false},
	{domain.ErrTimeout, http.StatusGatewayTimeout, CodeTimeout, false},
	{domain.ErrCanceled, StatusClientClosedRequest, CodeCanceled, false},
	{domain.ErrEmbeddingUnavailable, http.StatusBadGateway, CodeEmbeddingUnavailable, false},
	{domain.ErrGenerationUnavailable, http.StatusBadGateway, CodeGenerationUnavailable, false},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable, false},
}

// Classify maps an error to an HTTP status, a wire code and a client-safe message.
// Unknown errors become internal_error so internals never leak.
func Classify(err error) (status int, code, message string) {
	for _, m := range mappings {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		if m.detail {
			return m.status, m.code, err.Error()
		}
		return m.status, m.code, m.sentinel.Error()
	}
	return http.StatusInternalServerError, CodeInternal, "internal error"
}

// ItemCode is Classify without the status, for per-item batch errors.
func ItemCode(err error) (code, message string) {
	_, code, message = Classify(err)
	return code, message
}
