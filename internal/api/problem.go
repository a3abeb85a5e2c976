package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/larder/internal/reconcile"
	"github.com/hyperengineering/larder/internal/store"
	"github.com/hyperengineering/larder/internal/validation"
)

// CodeWriteFailed is reported when an import passed validation but a
// storage write failed.
const CodeWriteFailed = "IMPORT_WRITE_FAILED"

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusUnauthorized: {
		typeURI: "https://larder.dev/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://larder.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://larder.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusRequestEntityTooLarge: {
		typeURI: "https://larder.dev/errors/payload-too-large",
		title:   "Payload Too Large",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://larder.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusInternalServerError: {
		typeURI: "https://larder.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
}

func newProblem(r *http.Request, status int, detail string) Problem {
	pt, ok := problemTypes[status]
	if !ok {
		pt.typeURI = "https://larder.dev/errors/unknown"
		pt.title = http.StatusText(status)
	}
	return Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

func writeProblemJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblemJSON(w, status, newProblem(r, status, detail))
}

// ProblemWithErrors extends Problem with field-level validation errors.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	writeProblemJSON(w, http.StatusUnprocessableEntity, ProblemWithErrors{
		Problem: newProblem(r, http.StatusUnprocessableEntity, detail),
		Errors:  errs,
	})
}

// ImportProblem is the error body of a rejected or failed import.
type ImportProblem struct {
	Problem
	Code       string         `json:"code"`
	Violations map[string]int `json:"violations,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	Total      int            `json:"total,omitempty"`
	Partial    *bool          `json:"partial,omitempty"`
}

// WriteImportError maps an import failure onto a Problem Details response.
// Validation rejections keep their code and messages; write failures
// report only whether earlier writes were retained.
func WriteImportError(w http.ResponseWriter, r *http.Request, err error) {
	if ie, ok := validation.AsImportError(err); ok {
		status := http.StatusBadRequest
		detail := "Import rejected"
		switch ie.Code {
		case validation.CodeArrayTooLarge:
			status = http.StatusRequestEntityTooLarge
			detail = "One or more collections exceed the maximum record count"
		case validation.CodeValidationFailed:
			status = http.StatusUnprocessableEntity
			detail = "Backup contains invalid records"
		case validation.CodeUnsupportedVersion:
			detail = "Unsupported backup version"
		case validation.CodeInvalidMode:
			detail = "Invalid import mode"
		}
		p := ImportProblem{
			Problem:    newProblem(r, status, detail),
			Code:       ie.Code,
			Violations: ie.Violations,
			Errors:     ie.Messages,
		}
		if ie.Total > len(ie.Messages) {
			p.Total = ie.Total
		}
		writeProblemJSON(w, status, p)
		return
	}

	var we *reconcile.WriteError
	if errors.As(err, &we) {
		partial := we.Partial
		writeProblemJSON(w, http.StatusInternalServerError, ImportProblem{
			Problem: newProblem(r, http.StatusInternalServerError, "Import failed while writing "+we.Scope),
			Code:    CodeWriteFailed,
			Partial: &partial,
		})
		return
	}

	MapStoreError(w, r, err)
}

// MapStoreError converts domain errors to Problem Details responses.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrUnknownCollection), errors.Is(err, store.ErrUnknownSection):
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
	default:
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
