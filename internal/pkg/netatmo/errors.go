package netatmo

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind categorizes a RequestError for the caller's retry decision
type Kind int

const (
	KindHTTP Kind = iota
	KindNetwork
	KindTimeout
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindDecode:
		return "decode"
	}
	return "unknown"
}

// RequestError is a non-authorization API failure.  The gateway never
// retries these itself; callers may retry idempotent reads but must not
// blindly retry control commands.
type RequestError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request failed (%s, HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("request failed (%s): %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Netatmo wraps every payload in an envelope; error responses carry an
// error object instead of a body
type envelope struct {
	Body   json.RawMessage `json:"body"`
	Status string          `json:"status"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// apiErrorFrom digs the Netatmo error message out of a failure body, else
// falls back to the HTTP status text
func apiErrorFrom(statusCode int, body []byte) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return fmt.Errorf("api error %d: %s", env.Error.Code, env.Error.Message)
	}
	return fmt.Errorf("%s", http.StatusText(statusCode))
}
