package client

import "fmt"

// Accepted is the collector's reply to a stored batch.
type Accepted struct {
	Accepted int    `json:"accepted"`
	BatchID  string `json:"batch_id"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusError is returned when the collector answers with an unexpected
// status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("collector responded with HTTP %d", e.Code)
	}
	return fmt.Sprintf("collector responded with HTTP %d: %s", e.Code, e.Message)
}
