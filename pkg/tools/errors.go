package tools

import (
	"encoding/json"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// It is returned to the model as a successful tool result so the model can
// read the error and correct its next call.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult renders a structured error as tool-result JSON.
func NewErrorResult(code apperrors.Kind, message string) string {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails renders a structured error with additional context.
func NewErrorResultWithDetails(code apperrors.Kind, message string, details any) string {
	resp := ErrorResponse{
		Error:   true,
		Code:    string(code),
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	return string(jsonBytes)
}

// classify returns the kind and model-facing message of a handler error.
// Handlers return *apperrors.Error; anything else is reported as eval_failed.
func classify(err error) (apperrors.Kind, string) {
	kind := apperrors.KindOf(err)
	if kind == "" {
		kind = apperrors.KindEvalFailed
	}
	return kind, apperrors.MessageOf(err)
}
