package commands

import "time"

// Result is what every command handler returns. A failed command is a
// Result with Success false, not an error.
type Result struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func ok(data interface{}) Result {
	return Result{Success: true, Data: data, Timestamp: time.Now()}
}

func fail(err error) Result {
	return Result{Success: false, Error: err.Error(), Timestamp: time.Now()}
}
