package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybridge/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestForwarderSetsHostAndLength(t *testing.T) {
	var gotHost, gotBody string
	var gotLength int64
	var gotHeader http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotHost, gotBody, gotLength, gotHeader = r.Host, string(body), r.ContentLength, r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer upstream.Close()

	u, err := url.Parse(upstream.URL + "/v1/messages")
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Host", "upstream.internal")
	header.Set("Content-Length", "999")
	header.Set("X-Trace", "abc")

	f := NewForwarder(time.Second, discardLogger())
	resp, err := f.Do(context.Background(), outbound{
		method:        http.MethodPost,
		target:        config.Target{Name: "test", URL: u},
		header:        header,
		body:          strings.NewReader("hello"),
		contentLength: 5,
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "upstream.internal", gotHost)
	assert.Equal(t, "hello", gotBody)
	assert.Equal(t, int64(5), gotLength)
	assert.Equal(t, "abc", gotHeader.Get("X-Trace"))
	assert.Empty(t, gotHeader.Get("Accept-Encoding"))
}

func TestForwarderHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer upstream.Close()
	defer close(release)

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	f := NewForwarder(time.Minute, discardLogger())
	_, err = f.Do(ctx, outbound{method: http.MethodGet, target: config.Target{URL: u}, header: http.Header{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestForwarderResponseHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer upstream.Close()
	defer close(release)

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	f := NewForwarder(50*time.Millisecond, discardLogger())
	_, err = f.Do(context.Background(), outbound{method: http.MethodGet, target: config.Target{URL: u}, header: http.Header{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestRelayCopiesHeadersAndBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTeapot,
		Header: http.Header{
			"Content-Type": {"application/json"},
			"Connection":   {"close"},
			"X-Request-Id": {"upstream-id"},
			"Set-Cookie":   {"a=1", "b=2"},
		},
		Body: io.NopCloser(strings.NewReader(`{"brewing":false}`)),
	}

	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-Id", "local-id")
	NewForwarder(time.Second, discardLogger()).Relay(rec, resp, "req-1")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, `{"brewing":false}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Equal(t, []string{"upstream-id"}, rec.Header().Values("X-Request-Id"))
	assert.Equal(t, []string{"a=1", "b=2"}, rec.Header().Values("Set-Cookie"))
	assert.True(t, rec.Flushed)
}

func TestCarriesBody(t *testing.T) {
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		assert.True(t, carriesBody(m), m)
	}
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions} {
		assert.False(t, carriesBody(m), m)
	}
}

func TestRequestIDContext(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	ctx := ContextWithRequestID(context.Background(), "req-9")
	assert.Equal(t, "req-9", RequestIDFromContext(ctx))
}

func TestRelayDropsLocallyStagedHeaders(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader("ok")),
	}

	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-Id", "local-id")
	NewForwarder(time.Second, discardLogger()).Relay(rec, resp, "local-id")

	assert.Empty(t, rec.Header().Values("X-Request-Id"))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}
