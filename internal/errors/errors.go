package apierrors

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	MessageInvalidEndpoint  = "Invalid endpoint. Use /anthropic/, /openai/, or /bedrock/"
	MessageInvalidJSON      = "Invalid JSON in request body"
	MessageBodyTooLarge     = "Request body too large"
	MessageBadGateway       = "Bad Gateway"
	DetailsUpstreamRedacted = "upstream request failed"
)

// Envelope is the body of every locally produced error response.
type Envelope struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func Marshal(message, details string) []byte {
	if strings.TrimSpace(message) == "" {
		message = "request failed"
	}
	body, err := json.Marshal(Envelope{Error: message, Details: details})
	if err != nil {
		return []byte(`{"error":"failed to marshal error"}`)
	}
	return body
}

func Write(w http.ResponseWriter, statusCode int, message string) {
	WriteDetails(w, statusCode, message, "")
}

func WriteDetails(w http.ResponseWriter, statusCode int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(Marshal(message, details))
}
