package errors

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Display string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NewErrorResponse renders err the way the API reports it
func NewErrorResponse(err error) ErrorResponse {
	details := ReportableDetails(err)
	if len(details) == 0 {
		details = nil
	}
	return ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Display: DisplayMessage(err),
			Code:    CodeFromErr(err),
			Details: details,
		},
	}
}

// DisplayMessage returns the first non-empty hint attached to err
func DisplayMessage(err error) string {
	// GetAllHints is post-order traversal
	for _, hint := range errors.GetAllHints(err) {
		if hint = strings.TrimSpace(hint); hint != "" {
			return hint
		}
	}
	return "An unexpected error occurred"
}

// ReportableDetails merges every detail attached with WithReportableDetails
func ReportableDetails(err error) map[string]any {
	details := make(map[string]any)

	for _, sdp := range errors.GetAllSafeDetails(err) {
		for _, payload := range sdp.SafeDetails {
			if !strings.HasPrefix(payload, "__json__:") {
				continue
			}
			var jsonDetails map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(payload, "__json__:")), &jsonDetails); err != nil {
				continue
			}
			for k, v := range jsonDetails {
				details[k] = v
			}
		}
	}

	return details
}
