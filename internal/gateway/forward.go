package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"keybridge/internal/adapter"
	"keybridge/internal/config"
)

const relayBufferSize = 32 * 1024

// outbound is the request sent upstream, derived from the inbound one.
type outbound struct {
	method        string
	target        config.Target
	header        http.Header
	body          io.Reader
	contentLength int64
}

// Forwarder performs the single upstream call for a request and relays the
// response back unmodified.
type Forwarder struct {
	client *http.Client
	logger *slog.Logger
}

func NewForwarder(responseHeaderTimeout time.Duration, logger *slog.Logger) *Forwarder {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	transport.ResponseHeaderTimeout = responseHeaderTimeout

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Forwarder{client: client, logger: logger}
}

func (f *Forwarder) Do(ctx context.Context, out outbound) (*http.Response, error) {
	body := out.body
	if body == nil || out.contentLength == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, out.method, out.target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	req.Header = out.header
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
	}
	req.Header.Del("Host")
	req.Header.Del("Content-Length")
	if body != http.NoBody {
		req.ContentLength = out.contentLength
	}

	return f.client.Do(req)
}

// Relay writes resp to w: status, headers minus hop-by-hop ones, then the body,
// flushed chunk by chunk so event streams reach the caller as they arrive.
// Headers already staged on w are discarded so only upstream's are sent.
func (f *Forwarder) Relay(w http.ResponseWriter, resp *http.Response, requestID string) {
	clear(w.Header())
	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	f.stream(w, resp.Body, requestID)
}

func (f *Forwarder) stream(w http.ResponseWriter, body io.Reader, requestID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		if _, err := io.Copy(w, body); err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Error("failed to relay upstream body", "error", err, "request_id", requestID)
		}
		return
	}

	buf := make([]byte, relayBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				f.logger.Error("failed to write stream chunk", "error", writeErr, "request_id", requestID)
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return
			}
			f.logger.Error("failed to read stream chunk", "error", err, "request_id", requestID)
			return
		}
	}
}

func copyResponseHeaders(dst, src http.Header) {
	for k, values := range src {
		if adapter.IsHopByHopHeader(k) {
			continue
		}
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
