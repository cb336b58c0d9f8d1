package domain

// Result is the uniform response envelope for every inbound operation.
// Failures are ordinary results with Success=false; the transport layer
// never sees a thrown error for a recoverable condition.
type Result struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message"`
	ConditionName string           `json:"condition_name,omitempty"`
	Completed     bool             `json:"completed,omitempty"`
	Sequence      ProtocolSequence `json:"sequence,omitempty"`
	Orders        []Order          `json:"orders,omitempty"`
	Filename      string           `json:"filename,omitempty"`
}

// OK builds a success result.
func OK(message string) Result {
	return Result{Success: true, Message: message}
}

// Fail builds a failure result with a display-ready message.
func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

// FailErr builds a failure result from a recoverable error. The error text
// is already human-readable by construction (see errors.go).
func FailErr(err error) Result {
	return Result{Success: false, Message: err.Error()}
}
