// Package api implements the External API Surface (component C8): the
// four HTTP endpoints described in spec.md §6, request validation, SSE
// framing, and per-request correlation ids.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/go-playground/validator/v10"

	"github.com/chainlens/nlquery/pkg/cache"
	"github.com/chainlens/nlquery/pkg/contracts"
	"github.com/chainlens/nlquery/pkg/pipeline"
	"github.com/chainlens/nlquery/pkg/shared/cors"
	"github.com/chainlens/nlquery/pkg/shared/logging"
	"github.com/chainlens/nlquery/pkg/types"
)

var validate = validator.New()

// Server holds the collaborators the four endpoints are built on.
type Server struct {
	orchestrator *pipeline.Orchestrator
	gate         *cache.Gate
	llm          contracts.LanguageModelClient
	log          *logrus.Logger
	corsOpts     *cors.Options
}

// New builds a Server. corsOpts is optional; nil falls back to
// cors.FromEnvironment().
func New(orchestrator *pipeline.Orchestrator, gate *cache.Gate, llm contracts.LanguageModelClient, log *logrus.Logger, corsOpts *cors.Options) *Server {
	if corsOpts == nil {
		corsOpts = cors.FromEnvironment()
	}
	return &Server{orchestrator: orchestrator, gate: gate, llm: llm, log: log, corsOpts: corsOpts}
}

// Router builds the chi router for the four endpoints (spec.md §6).
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestID)
	r.Use(cors.Handler(s.corsOpts))

	r.Post("/api/v1/nl/query", s.handleQuery)
	r.Get("/api/v1/nl/queries/top", s.handleTopQueries)
	r.Get("/api/v1/nl/health", s.handleHealth)
	r.Get("/api/v1/nl/cache/stats", s.handleCacheStats)

	return r
}

type requestIDKey struct{}

// requestID attaches a fresh correlation id to every request's context,
// used in log fields threaded through C7/C8 (SPEC_FULL.md "ambient
// stack").
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// problem is an RFC 7807-flavored error body, matching the teacher's
// existing handler convention.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func writeProblem(w http.ResponseWriter, status int, problemType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{Type: problemType, Title: title, Detail: detail})
}

// handleQuery streams a single-shot answer over an SSE-flavored text
// stream (spec.md §6 "Stream frame format").
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	fields := logging.NewFields().Component("api").Operation("query").RequestID(requestIDFrom(r.Context()))

	var req types.NLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid-body", "Invalid Request Body", "request body must be valid JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid-query", "Invalid Query", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "streaming-unsupported", "Streaming Unsupported", "response writer does not support flushing")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	out := make(chan types.PipelineEvent, 16)
	go s.orchestrator.Run(r.Context(), req, out)

	for event := range out {
		if _, err := w.Write([]byte(renderFrame(event))); err != nil {
			s.log.WithFields(fields.Error(err).ToLogrus()).Warn("client disconnected mid-stream")
			return
		}
		flusher.Flush()
	}
}

// renderFrame encodes a PipelineEvent per spec.md §6 "Stream frame
// format": status and heartbeat frames share the "status: " prefix (the
// client distinguishes them only by content, never by frame kind), error
// frames use "error: ", answer chunks are written verbatim, and Done
// emits the terminal "data: [DONE]" marker.
func renderFrame(event types.PipelineEvent) string {
	switch event.Kind {
	case types.EventStatus, types.EventHeartbeat:
		return "status: " + event.Text + "\n"
	case types.EventError:
		return "error: " + event.Text + "\n"
	case types.EventDone:
		return "data: [DONE]\n"
	default:
		return event.Text
	}
}

// handleTopQueries returns the top-N popular queries (spec.md §6).
func (s *Server) handleTopQueries(w http.ResponseWriter, r *http.Request) {
	limit := cache.DefaultPopularLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	popular, err := s.gate.Popular(r.Context(), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "cache-unavailable", "Cache Unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"queries": popular})
}

// handleHealth reports language-model reachability and model id
// (spec.md §6).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	reachable, err := s.llm.HealthCheck(ctx)
	status := http.StatusOK
	if err != nil || !reachable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"reachable": reachable && err == nil,
		"model":     s.llm.Model(),
	})
}

// handleCacheStats reports the top-10 popular queries with counts
// (spec.md §6).
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	popular, err := s.gate.Popular(r.Context(), cache.DefaultPopularLimit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "cache-unavailable", "Cache Unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"top_queries": popular})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
