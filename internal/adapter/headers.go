package adapter

import (
	"net/http"
	"strconv"
	"strings"
)

// CloneHeaders deep-copies src, dropping hop-by-hop headers.
func CloneHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, values := range src {
		if IsHopByHopHeader(k) {
			continue
		}
		dst[k] = append([]string(nil), values...)
	}
	return dst
}

// SetHost records the upstream host in the outbound header set. net/http sends
// it from Request.Host; the forwarder moves it there.
func SetHost(h http.Header, host string) {
	if host == "" {
		return
	}
	h.Set("Host", host)
}

func SetContentLength(h http.Header, n int) {
	h.Set("Content-Length", strconv.Itoa(n))
}

func IsHopByHopHeader(key string) bool {
	switch strings.ToLower(key) {
	case "connection", "proxy-connection", "keep-alive", "proxy-authenticate", "proxy-authorization", "te", "trailer", "transfer-encoding", "upgrade":
		return true
	default:
		return false
	}
}

// MaskSecret keeps the last six characters of a credential.
func MaskSecret(secret string) string {
	const visible = 6
	if len(secret) <= visible {
		return "..."
	}
	return "..." + secret[len(secret)-visible:]
}
