package errors

// Envelope is the `{success, data|error, ...}` structure every tool
// returns, formatted as JSON before being wrapped in the MCP text content
// part. Internal and StoreUnavailable errors are sanitized: the client sees
// a generic message while the full Error (with cause) goes to the log.
type Envelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   Kind          `json:"error,omitempty"`
	Message string        `json:"message,omitempty"`
	Details []FieldDetail `json:"details,omitempty"`
}

// sanitizedKinds are error kinds whose Message is replaced with a generic
// string in the client-visible envelope; full detail is only logged.
var sanitizedKinds = map[Kind]bool{
	Internal:         true,
	StoreUnavailable: true,
}

// Success builds a success envelope wrapping the given tool result.
func Success(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// FromError builds a failure envelope from err, sanitizing the message for
// error kinds that must not leak internal detail to the client.
func FromError(err error) Envelope {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		e = Wrap(Internal, err, "internal error")
	}

	env := Envelope{
		Success: false,
		Error:   e.Kind,
		Message: e.Message,
		Details: e.Details,
	}
	if sanitizedKinds[e.Kind] {
		env.Message = "an internal error occurred"
		env.Details = nil
	}
	return env
}
