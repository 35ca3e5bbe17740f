package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateMessageEnvelope(msg *MessageEnvelope) error {
	if msg == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "message envelope cannot be nil",
		}
	}

	if msg.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "message ID is required",
		}
	}

	if msg.Payload == nil {
		return &ValidationError{
			Field:   "payload",
			Message: "message payload cannot be nil",
		}
	}

	return nil
}

// ValidateCommandEnvelope additionally requires a command type.
func ValidateCommandEnvelope(msg *MessageEnvelope) error {
	if err := ValidateMessageEnvelope(msg); err != nil {
		return err
	}
	if t, _ := msg.Payload["type"].(string); t == "" {
		return &ValidationError{
			Field:   "payload.type",
			Message: "command type is required",
		}
	}
	return nil
}
