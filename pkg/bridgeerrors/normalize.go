package bridgeerrors

import (
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// FromStatus maps an HTTP status code and response body into a taxonomy
// error. This is the single place in the codebase where status-code knowledge
// lives: dispatchers and backends hand every non-2xx response to this
// function and never inspect status codes themselves.
//
// The mapping is total. Every status in {400,401,403,404,405,409,413,422} has
// a fixed kind; anything else resolves to ErrorTypeTransport. The message
// prefers the backend-reported error text from the body; when the body
// carries none, fallback is used.
func FromStatus(status int, body []byte, fallback string) *Error {
	message := backendMessage(body)
	if message == "" {
		message = fallback
	}

	var errType ErrorType
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		errType = ErrorTypeInvalidArgument
	case http.StatusUnauthorized:
		errType = ErrorTypeUnauthorized
	case http.StatusForbidden:
		errType = ErrorTypeForbidden
	case http.StatusNotFound:
		errType = ErrorTypeNotFound
	case http.StatusMethodNotAllowed:
		errType = ErrorTypeUnsupported
	case http.StatusConflict:
		errType = ErrorTypeConflict
	case http.StatusRequestEntityTooLarge:
		errType = ErrorTypePayloadTooLarge
	default:
		errType = ErrorTypeTransport
	}

	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
		Details: map[string]interface{}{"status": status},
	}
}

// Normalize converts an arbitrary error into a taxonomy error. Errors that
// already carry a kind pass through unchanged; everything else (network-level
// failures, DNS, connection refused) becomes ErrorTypeTransport with the
// transport error's own message.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return Wrap(err, ErrorTypeTransport, err.Error())
}

// backendMessage extracts the backend-reported error text from a response
// body. InfluxDB 3 deployments report errors under an "error" key, the
// cloud control plane under "message"; a short non-JSON body is used as-is.
func backendMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
		return ""
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}
