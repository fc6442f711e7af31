package adapter

import (
	"net/http"

	"keybridge/internal/config"
)

const (
	HeaderAPIKey        = "x-api-key"
	HeaderAuthorization = "Authorization"
	HeaderModelProvider = "x-model-provider"
)

// Adapter turns an inbound header set into the header set one provider's
// upstream expects. The inbound header is never modified. ApplyHeaders fails
// only with *MissingCredentialError.
type Adapter interface {
	Name() string
	ApplyHeaders(in http.Header, target config.Target) (http.Header, error)
}

// MissingCredentialError is returned when the header carrying the caller's
// credential is absent or empty.
type MissingCredentialError struct {
	Header string
}

func (e *MissingCredentialError) Error() string {
	return e.Header + " header is required"
}

// BearerAdapter moves the x-api-key credential into a bearer Authorization
// header, optionally tagging the request with a model provider.
type BearerAdapter struct {
	name          string
	modelProvider string
}

func NewAnthropicAdapter() *BearerAdapter {
	return &BearerAdapter{name: config.ProviderAnthropic}
}

func NewBedrockAdapter() *BearerAdapter {
	return &BearerAdapter{name: config.ProviderBedrock, modelProvider: "bedrock"}
}

func (a *BearerAdapter) Name() string {
	return a.name
}

func (a *BearerAdapter) ApplyHeaders(in http.Header, target config.Target) (http.Header, error) {
	apiKey := in.Get(HeaderAPIKey)
	if apiKey == "" {
		return nil, &MissingCredentialError{Header: HeaderAPIKey}
	}

	out := CloneHeaders(in)
	out.Del(HeaderAPIKey)
	out.Set(HeaderAuthorization, "Bearer "+apiKey)
	if a.modelProvider != "" {
		out.Set(HeaderModelProvider, a.modelProvider)
	}
	SetHost(out, target.Host())
	return out, nil
}

// PassthroughAdapter forwards the caller's Authorization header untouched.
type PassthroughAdapter struct {
	name string
}

func NewOpenAIAdapter() *PassthroughAdapter {
	return &PassthroughAdapter{name: config.ProviderOpenAI}
}

func (a *PassthroughAdapter) Name() string {
	return a.name
}

func (a *PassthroughAdapter) ApplyHeaders(in http.Header, target config.Target) (http.Header, error) {
	if in.Get(HeaderAuthorization) == "" {
		return nil, &MissingCredentialError{Header: HeaderAuthorization}
	}

	out := CloneHeaders(in)
	SetHost(out, target.Host())
	return out, nil
}

// Credential returns the value an adapter authenticates with, for logging.
func Credential(a Adapter, h http.Header) string {
	if _, ok := a.(*BearerAdapter); ok {
		return h.Get(HeaderAPIKey)
	}
	return h.Get(HeaderAuthorization)
}
