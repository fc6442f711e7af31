package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"keybridge/internal/adapter"
	"keybridge/internal/config"
	apierrors "keybridge/internal/errors"
	"keybridge/internal/models"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

type Service struct {
	cfg       *config.Config
	rules     models.Rules
	forwarder *Forwarder
	logger    *slog.Logger

	anthropic adapter.Adapter
	bedrock   adapter.Adapter
	openai    adapter.Adapter
}

func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		rules:     models.RulesFromConfig(cfg),
		forwarder: NewForwarder(cfg.UpstreamTimeout, logger),
		logger:    logger,
		anthropic: adapter.NewAnthropicAdapter(),
		bedrock:   adapter.NewBedrockAdapter(),
		openai:    adapter.NewOpenAIAdapter(),
	}
}

func (s *Service) HandleAnthropic(w http.ResponseWriter, r *http.Request) {
	s.proxyStream(w, r, s.anthropic)
}

func (s *Service) HandleBedrock(w http.ResponseWriter, r *http.Request) {
	s.proxyStream(w, r, s.bedrock)
}

func (s *Service) HandleOpenAI(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	target, header, ok := s.prepare(w, r, s.openai)
	if !ok {
		return
	}

	out := outbound{
		method:        r.Method,
		target:        target,
		header:        header,
		body:          r.Body,
		contentLength: r.ContentLength,
	}

	if carriesBody(r.Method) && r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				s.logger.Warn("rejected request: body too large", "limit", s.cfg.MaxBodyBytes, "request_id", requestID)
				apierrors.Write(w, http.StatusRequestEntityTooLarge, apierrors.MessageBodyTooLarge)
				return
			}
			s.logger.Error("failed to read request body", "error", err, "request_id", requestID)
			apierrors.Write(w, http.StatusBadRequest, apierrors.MessageInvalidJSON)
			return
		}

		if len(body) == 0 {
			out.body, out.contentLength = http.NoBody, 0
		} else {
			rewrite, err := adapter.RewriteOpenAIBody(body, s.rules)
			if err != nil {
				s.logger.Error("failed to parse request body", "error", err, "request_id", requestID)
				apierrors.Write(w, http.StatusBadRequest, apierrors.MessageInvalidJSON)
				return
			}
			if rewrite.ModelAliased() {
				s.logger.Info("model aliased", "from", rewrite.ModelFrom, "to", rewrite.ModelTo, "request_id", requestID)
			}
			if rewrite.EffortRemoved {
				s.logger.Info("removed reasoning.effort", "request_id", requestID)
			}

			out.body = bytes.NewReader(rewrite.Body)
			out.contentLength = int64(len(rewrite.Body))
			adapter.SetContentLength(out.header, len(rewrite.Body))
		}
	}

	s.forward(w, r, s.openai.Name(), out)
}

// HandleUnmatched answers paths that belong to no provider.
func (s *Service) HandleUnmatched(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("rejected request: unknown endpoint", "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()))
	apierrors.Write(w, http.StatusNotFound, apierrors.MessageInvalidEndpoint)
}

func (s *Service) proxyStream(w http.ResponseWriter, r *http.Request, ad adapter.Adapter) {
	target, header, ok := s.prepare(w, r, ad)
	if !ok {
		return
	}

	s.forward(w, r, ad.Name(), outbound{
		method:        r.Method,
		target:        target,
		header:        header,
		body:          r.Body,
		contentLength: r.ContentLength,
	})
}

// prepare resolves the provider target and rewrites the headers, answering
// the request itself when the caller's credential is missing.
func (s *Service) prepare(w http.ResponseWriter, r *http.Request, ad adapter.Adapter) (config.Target, http.Header, bool) {
	requestID := RequestIDFromContext(r.Context())

	target, found := s.cfg.Target(ad.Name())
	if !found {
		s.logger.Error("no target configured", "provider", ad.Name(), "request_id", requestID)
		apierrors.WriteDetails(w, http.StatusBadGateway, apierrors.MessageBadGateway, "no target configured for "+ad.Name())
		return config.Target{}, nil, false
	}

	header, err := ad.ApplyHeaders(r.Header, target)
	if err != nil {
		s.logger.Warn("rejected request: missing credential", "provider", ad.Name(), "error", err, "request_id", requestID)
		apierrors.Write(w, http.StatusUnauthorized, err.Error())
		return config.Target{}, nil, false
	}

	s.logger.Info(
		"forwarding request",
		"provider", ad.Name(),
		"method", r.Method,
		"target", target.String(),
		"credential", adapter.MaskSecret(adapter.Credential(ad, r.Header)),
		"request_id", requestID,
	)
	return target, header, true
}

func (s *Service) forward(w http.ResponseWriter, r *http.Request, provider string, out outbound) {
	requestID := RequestIDFromContext(r.Context())

	resp, err := s.forwarder.Do(r.Context(), out)
	if err != nil {
		s.handleUpstreamFailure(w, provider, err, requestID)
		return
	}
	defer resp.Body.Close()

	s.forwarder.Relay(w, resp, requestID)
}

func (s *Service) handleUpstreamFailure(w http.ResponseWriter, provider string, err error, requestID string) {
	if errors.Is(err, context.Canceled) {
		s.logger.Warn("client canceled before upstream responded", "provider", provider, "request_id", requestID)
	} else {
		s.logger.Error("upstream request failed", "provider", provider, "error", err, "request_id", requestID)
	}

	details := apierrors.DetailsUpstreamRedacted
	if s.cfg.ShouldExposeErrorDetails() {
		details = err.Error()
	}
	apierrors.WriteDetails(w, http.StatusBadGateway, apierrors.MessageBadGateway, details)
}

func carriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
