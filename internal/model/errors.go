package model

import "fmt"

// ValidationError is returned for input rejected before any storage or network I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DLQMessage is sent to the dead-letter topic for scan jobs that cannot be processed.
type DLQMessage struct {
	ServiceName  string
	Payload      string
	ErrorMessage string
}
