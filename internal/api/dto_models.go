package api

// ErrorResponse is a generic structure for returning errors via API.
type ErrorResponse struct {
	Error   string `json:"error"`             // A high-level error message
	Details string `json:"details,omitempty"` // More specific details about the error, if available
}

// SuccessResponse is a generic structure for simple success messages.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse wraps collections so the body is always a JSON object.
type ListResponse struct {
	Items interface{} `json:"items"`
}

// DiffResponse carries a unified diff.
type DiffResponse struct {
	Diff string `json:"diff"`
}
