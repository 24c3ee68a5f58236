package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sha1n/snipsearch/internal/discovery"
	"github.com/sha1n/snipsearch/internal/domain"
	"github.com/sha1n/snipsearch/internal/explain"
	"github.com/sha1n/snipsearch/internal/retriever"
)

// RequestIDHeader carries the id assigned to every API request.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds API request bodies.
const maxBodyBytes = 1 << 20

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query      string `json:"query"`
	TopK       int    `json:"top_k,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// ExplainRequest is the body of POST /explain.
type ExplainRequest struct {
	Code string `json:"code"`
}

// ExplainResponse is the body returned by POST /explain.
type ExplainResponse struct {
	Explanation string `json:"explanation"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// API serves the JSON endpoints next to the SSE transport.
type API struct {
	services *Services
}

// NewAPI creates the JSON API over the given services.
func NewAPI(services *Services) *API {
	if services == nil {
		services = &Services{}
	}
	return &API{services: services}
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.Handle("POST /search", withRequestID(http.HandlerFunc(a.handleSearch)))
	mux.Handle("POST /explain", withRequestID(http.HandlerFunc(a.handleExplain)))
	mux.Handle("GET /categories", withRequestID(http.HandlerFunc(a.handleCategories)))
	mux.Handle("GET /snippets", withRequestID(http.HandlerFunc(a.handleSnippets)))
	mux.Handle("GET /snippets/{id}", withRequestID(http.HandlerFunc(a.handleSnippet)))
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	if a.services.Searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not available")
		return
	}

	var req SearchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	results, err := a.services.Searcher.Search(r.Context(), retriever.Query{
		Text:       req.Query,
		TopK:       req.TopK,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		if errors.Is(err, retriever.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Search failed", "request_id", requestID(w), "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []domain.ScoredSnippet{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *API) handleExplain(w http.ResponseWriter, r *http.Request) {
	if a.services.Explainer == nil {
		writeError(w, http.StatusServiceUnavailable, "code explanation is not configured")
		return
	}

	var req ExplainRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	explanation, err := a.services.Explainer.Explain(r.Context(), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, explain.ErrEmptyCode):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, explain.ErrDisabled):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			slog.Error("Explain failed", "request_id", requestID(w), "error", err)
			writeError(w, http.StatusInternalServerError, "explanation failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, ExplainResponse{Explanation: explanation})
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	if a.services.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog is not available")
		return
	}

	categories, err := a.services.Catalog.Categories(r.Context())
	if err != nil {
		slog.Error("Listing categories failed", "request_id", requestID(w), "error", err)
		writeError(w, http.StatusInternalServerError, "listing categories failed")
		return
	}
	if categories == nil {
		categories = []discovery.CategoryCount{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (a *API) handleSnippets(w http.ResponseWriter, r *http.Request) {
	if a.services.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog is not available")
		return
	}

	params := r.URL.Query()
	limit := 0
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var (
		snippets []domain.Snippet
		err      error
	)
	if q := params.Get("q"); q != "" {
		snippets, err = a.services.Catalog.Search(r.Context(), discovery.SearchRequest{
			Query:      q,
			Category:   params.Get("category"),
			Difficulty: params.Get("difficulty"),
			Limit:      limit,
			Fuzzy:      params.Get("exact") != "true",
		})
	} else {
		snippets = a.services.Catalog.List(r.Context(), discovery.ListRequest{
			Category:   params.Get("category"),
			Difficulty: params.Get("difficulty"),
			Limit:      limit,
		})
	}
	if err != nil {
		slog.Error("Catalog search failed", "request_id", requestID(w), "error", err)
		writeError(w, http.StatusInternalServerError, "catalog search failed")
		return
	}
	if snippets == nil {
		snippets = []domain.Snippet{}
	}
	writeJSON(w, http.StatusOK, snippets)
}

func (a *API) handleSnippet(w http.ResponseWriter, r *http.Request) {
	if a.services.Snippets == nil {
		writeError(w, http.StatusServiceUnavailable, "snippets are not available")
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "id must be a non-negative integer")
		return
	}

	snippet, ok := a.services.Snippets.Snippet(id)
	if !ok {
		writeError(w, http.StatusNotFound, "snippet not found")
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// statusRecorder captures the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestID tags each request with an id, echoes it in the response
// and logs the outcome.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		slog.Debug("API request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func requestID(w http.ResponseWriter) string {
	return w.Header().Get(RequestIDHeader)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
