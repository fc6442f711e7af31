package httpserver

import (
	"net/http"
	"strings"

	"keybridge/internal/gateway"
)

type route struct {
	prefix  string
	handler http.HandlerFunc
}

// Router dispatches on the path prefix, testing providers in a fixed order.
type Router struct {
	strict   bool
	routes   []route
	notFound http.HandlerFunc
}

func NewRouter(service *gateway.Service, strict bool) *Router {
	return &Router{
		strict: strict,
		routes: []route{
			{prefix: "/anthropic", handler: service.HandleAnthropic},
			{prefix: "/openai", handler: service.HandleOpenAI},
			{prefix: "/bedrock", handler: service.HandleBedrock},
		},
		notFound: service.HandleUnmatched,
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, candidate := range rt.routes {
		if matchPrefix(r.URL.Path, candidate.prefix, rt.strict) {
			candidate.handler(w, r)
			return
		}
	}
	rt.notFound(w, r)
}

// matchPrefix is a plain starts-with test unless strict, in which case the
// prefix must be followed by the end of the path or a slash.
func matchPrefix(path, prefix string, strict bool) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if !strict {
		return true
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/'
}
