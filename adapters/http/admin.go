// Package http provides the read-only admin/observability HTTP surface:
// router introspection and a dry-run match endpoint, instrumented with
// Prometheus metrics and documented with swaggo annotations.
package http

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/artpar/selector/adapters/metrics"
	"github.com/artpar/selector/domain/router"
	"github.com/artpar/selector/domain/schema"
	"github.com/artpar/selector/domain/verdict"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RouterInfo is the swagger-documented view of one configured Router.
type RouterInfo struct {
	Name         string   `json:"name" example:"api"`
	Enabled      bool     `json:"enabled" example:"true"`
	HostPatterns []string `json:"host_patterns" example:"api.example.com"`
	Dynamic      bool     `json:"dynamic" example:"false"`
	Connected    bool     `json:"connected" example:"false"`
}

// MatchRequest describes the parameters accepted by /debug/match.
type MatchRequest struct {
	Router string `json:"router" example:"api"`
	Method string `json:"method" example:"GET"`
	Path   string `json:"path" example:"/v1/widgets"`
	Host   string `json:"host" example:"api.example.com"`
}

// ErrorBody is the JSON error body returned by admin endpoints.
type ErrorBody struct {
	Error string `json:"error" example:"router not found"`
}

// AdminHandler serves the debug/observability endpoints over a fixed set
// of Routers. The Router fleet itself is immutable here — Dynamic state
// updates are applied in place on each *router.Router by its own watcher,
// so re-reading them through this handler always reflects the latest
// applied state.
type AdminHandler struct {
	routers []*router.Router
	byName  map[string]*router.Router
	metrics *metrics.Collector
	logger  zerolog.Logger
	rand    *rand.Rand
}

// NewAdminHandler builds an AdminHandler over routers. m may be nil, in
// which case match calls are not instrumented.
func NewAdminHandler(routers []*router.Router, m *metrics.Collector, logger zerolog.Logger) *AdminHandler {
	byName := make(map[string]*router.Router, len(routers))
	for _, r := range routers {
		byName[r.Name] = r
	}
	return &AdminHandler{
		routers: routers,
		byName:  byName,
		metrics: m,
		logger:  logger,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Route mounts the admin endpoints onto a chi.Router.
func (h *AdminHandler) Route(r chi.Router) {
	r.Get("/debug/routers", h.ListRouters)
	r.Get("/debug/match", h.Match)
}

// ListRouters returns every configured router and its current state.
//
//	@Summary		List routers
//	@Description	Returns the name, enabled state and host patterns of every configured router
//	@Tags			Debug
//	@Produce		json
//	@Success		200	{array}	RouterInfo
//	@Router			/debug/routers [get]
func (h *AdminHandler) ListRouters(w http.ResponseWriter, r *http.Request) {
	out := make([]RouterInfo, 0, len(h.routers))
	for _, rt := range h.routers {
		out = append(out, RouterInfo{
			Name:         rt.Name,
			Enabled:      rt.Enabled(),
			HostPatterns: rt.HostPatterns(),
			Dynamic:      rt.IsDynamic(),
			Connected:    rt.IsConnected(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Match dry-runs a request against a router's host match and upstream
// selection without actually dispatching anything.
//
//	@Summary		Dry-run a match
//	@Description	Resolves which upstream a request would be sent to, without dispatching it
//	@Tags			Debug
//	@Produce		json
//	@Param			router	query		string	false	"Router name (auto-detected from host if omitted)"
//	@Param			method	query		string	false	"HTTP method"	default(GET)
//	@Param			path	query		string	false	"Request path"	default(/)
//	@Param			host	query		string	false	"Host header value"
//	@Success		200		{object}	verdict.MatchResult
//	@Failure		404		{object}	ErrorBody
//	@Router			/debug/match [get]
func (h *AdminHandler) Match(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	q := r.URL.Query()

	method := q.Get("method")
	if method == "" {
		method = http.MethodGet
	}
	path := q.Get("path")
	if path == "" {
		path = "/"
	}
	host := q.Get("host")

	rt := h.resolveRouter(q.Get("router"), host)
	if rt == nil {
		h.logger.Warn().Str("trace_id", traceID).Str("host", host).Msg("debug match: no router found")
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: "no router matches the given name/host"})
		return
	}

	env := map[string]interface{}{
		"REQUEST_METHOD": method,
		"PATH_INFO":      path,
		"QUERY_STRING":   q.Get("query_string"),
		"HTTP_HOST":      host,
	}
	req := schema.NewRequest(env, rt.RequestSchema)

	start := time.Now()
	up, err := rt.MatchUpstream(req)
	elapsed := time.Since(start)

	result := verdict.MatchResult{Router: rt.Name}

	if err != nil {
		h.observeMatch(rt.Name, "error", elapsed)
		h.logger.Error().Err(err).Str("trace_id", traceID).Str("router", rt.Name).Msg("debug match: evaluation error")
		writeJSON(w, http.StatusOK, result)
		return
	}

	if up == nil || up.Len() == 0 {
		h.observeMatch(rt.Name, "no_match", elapsed)
		writeJSON(w, http.StatusOK, result)
		return
	}

	result.Matched = true
	result.Verdicts = verdict.FromUpstream(up)
	picked := verdict.FromServer(up.Pick(h.rand), 0)
	result.Picked = &picked

	h.observeMatch(rt.Name, "matched", elapsed)
	h.logger.Info().
		Str("trace_id", traceID).
		Str("router", rt.Name).
		Str("picked", picked.Location).
		Dur("elapsed", elapsed).
		Msg("debug match")

	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) observeMatch(routerName, result string, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.MatchesTotal.WithLabelValues(routerName, result).Inc()
	h.metrics.MatchDuration.WithLabelValues(routerName).Observe(elapsed.Seconds())
	if result == "error" {
		h.metrics.MatchErrors.WithLabelValues(routerName).Inc()
	}
}

// resolveRouter looks a router up by name if given, otherwise picks the
// first configured router whose host patterns match host.
func (h *AdminHandler) resolveRouter(name, host string) *router.Router {
	if name != "" {
		return h.byName[name]
	}
	for _, rt := range h.routers {
		if rt.MatchMe(host) {
			return rt
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
