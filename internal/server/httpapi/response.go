package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/hashx"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/contentstore"
)

// Stable error codes returned in the "code" field.
const (
	CodeValidation         = "VALIDATION"
	CodeHashFailed         = "HASH_FAILED"
	CodeStoreAuth          = "STORE_AUTH"
	CodeStoreForbidden     = "STORE_FORBIDDEN"
	CodeStoreUpload        = "STORE_UPLOAD"
	CodeRetrievalExhausted = "RETRIEVAL_EXHAUSTED"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL"
)

type errorBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// classify maps an error to its HTTP status and stable code. Order matters:
// the content store kinds all wrap ErrContentStore.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, hashx.ErrHashComputation):
		return http.StatusInternalServerError, CodeHashFailed
	case errors.Is(err, contentstore.ErrAuth):
		return http.StatusInternalServerError, CodeStoreAuth
	case errors.Is(err, contentstore.ErrForbidden):
		return http.StatusInternalServerError, CodeStoreForbidden
	case errors.Is(err, contentstore.ErrRetrievalExhausted):
		return http.StatusBadGateway, CodeRetrievalExhausted
	case errors.Is(err, contentstore.ErrUpload), errors.Is(err, contentstore.ErrContentStore):
		return http.StatusInternalServerError, CodeStoreUpload
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	writeJSON(w, status, errorBody{
		Error:     err.Error(),
		Code:      code,
		RequestID: chimiddleware.GetReqID(r.Context()),
	})
}

func writeErrorMessage(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{
		Error:     msg,
		Code:      code,
		RequestID: chimiddleware.GetReqID(r.Context()),
	})
}
