// Package httputil holds the response and request helpers shared by every
// handler. Errors are written as an IMS Global status-info envelope.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "openbadges/pkg/domain-errors"
)

const maxBodyBytes = 1 << 20

const targetEndSystem = "TargetEndSystem"

// StatusInfo is the imsx_StatusInfo error envelope.
type StatusInfo struct {
	CodeMajor   string     `json:"imsx_codeMajor"`
	Severity    string     `json:"imsx_severity"`
	Description string     `json:"imsx_description,omitempty"`
	CodeMinor   *CodeMinor `json:"imsx_codeMinor,omitempty"`
}

type CodeMinor struct {
	Fields []CodeMinorField `json:"imsx_codeMinorField"`
}

type CodeMinorField struct {
	Name  string `json:"imsx_codeMinorFieldName"`
	Value string `json:"imsx_codeMinorFieldValue"`
}

// Validatable is implemented by request bodies that normalise and check
// themselves after decoding.
type Validatable interface {
	Validate() error
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its HTTP status and writes a status-info body.
// Internal errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	status, info := NewStatusInfo(err)
	if dErrors.CodeOf(err) == dErrors.CodeChainUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	WriteJSON(w, status, info)
}

// NewStatusInfo builds the envelope for err along with its HTTP status. Batch
// responses embed it per item.
func NewStatusInfo(err error) (int, StatusInfo) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	info := StatusInfo{
		CodeMajor: "failure",
		Severity:  "error",
		CodeMinor: &CodeMinor{Fields: []CodeMinorField{{Name: targetEndSystem, Value: codeMinorValue(code)}}},
	}
	if de, ok := dErrors.As(err); ok && status < http.StatusInternalServerError {
		info.Description = de.Message
	}
	if code == dErrors.CodeChainUnavailable {
		info.Description = "ledger temporarily unavailable, retry later"
	}
	return status, info
}

// codeMinorValue maps domain codes onto the vocabulary clients expect.
func codeMinorValue(code dErrors.Code) string {
	switch code {
	case dErrors.CodeUnauthorized:
		return "unauthorizedrequest"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeSeedTooLarge:
		return "invalid_data"
	case dErrors.CodeInvalidQueryParameter:
		return "invalid_query_parameter"
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeConflict, dErrors.CodeDuplicateIssuance:
		return "invalid_data"
	case dErrors.CodeChainUnavailable, dErrors.CodeRateLimited:
		return "server_busy"
	default:
		return "internal_server_error"
	}
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method.
// On failure it writes the error response and returns ok=false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, msg))
		return nil, false
	}

	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(ctx, "invalid request",
				"request_id", requestID,
				"error", err,
			)
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}
