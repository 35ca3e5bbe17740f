package unified

import "fmt"

// ValidationError reports the first malformed field of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Validate checks the shape of a normalized request. It has no side effects.
func Validate(req *NormalizedRequest) error {
	if req.Type == "" {
		return &ValidationError{Field: "type", Message: "type is required"}
	}
	if req.Data == nil {
		return &ValidationError{Field: "data", Message: "data must be an object"}
	}
	if !req.Source.Valid() {
		return &ValidationError{
			Field:   "source",
			Message: fmt.Sprintf("source %q must be one of rest, websocket, queue, internal", req.Source),
		}
	}
	if !req.Priority.Valid() {
		return &ValidationError{
			Field:   "priority",
			Message: fmt.Sprintf("priority %q must be one of critical, high, normal, low", req.Priority),
		}
	}
	return nil
}
