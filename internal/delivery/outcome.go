package delivery

import "fmt"

// Outcome is the result of one delivery attempt.
type Outcome struct {
	// Success is true iff the server answered with a 2xx status.
	Success bool
	// StatusCode is the HTTP status, zero when no response arrived.
	StatusCode int
	// Reason describes a failure.
	Reason string
}

// succeeded builds a successful outcome.
func succeeded(code int) Outcome {
	return Outcome{Success: true, StatusCode: code}
}

// failed builds a failed outcome from a transport fault.
func failed(err error) Outcome {
	return Outcome{Reason: err.Error()}
}

// rejected builds a failed outcome from a non-2xx status.
func rejected(code int) Outcome {
	return Outcome{StatusCode: code, Reason: fmt.Sprintf("unexpected status %d", code)}
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	if o.Success {
		return fmt.Sprintf("success (%d)", o.StatusCode)
	}

	return "failure: " + o.Reason
}
