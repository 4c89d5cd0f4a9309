package errors

import (
	"encoding/json"
)

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Severity string            `json:"severity"`
	Details  map[string]string `json:"details,omitempty"`
	NodeID   string            `json:"node_id,omitempty"`
	Cause    string            `json:"cause,omitempty"`
	Retryable bool             `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error, suitable for
// machine consumption and structured logging sinks.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ae, ok := err.(*Error)
	if !ok {
		ae = New(ErrCodeFileSystem, err.Error(), err)
	}

	je := jsonError{
		Code:      ae.Code,
		Message:   ae.Message,
		Category:  string(ae.Category),
		Severity:  string(ae.Severity),
		Details:   ae.Details,
		NodeID:    ae.NodeID,
		Retryable: ae.Retryable,
	}

	if ae.Cause != nil {
		je.Cause = ae.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error as key-value pairs suitable for slog
// attributes, keeping log lines structured instead of free text.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	ae, ok := err.(*Error)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": ae.Code,
		"message":    ae.Message,
		"category":   string(ae.Category),
		"severity":   string(ae.Severity),
		"retryable":  ae.Retryable,
	}

	if ae.Cause != nil {
		result["cause"] = ae.Cause.Error()
	}

	if ae.NodeID != "" {
		result["node_id"] = ae.NodeID
	}

	for k, v := range ae.Details {
		result["detail_"+k] = v
	}

	return result
}
