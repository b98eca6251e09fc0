package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ollamad/internal/apperr"
	"ollamad/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels(ctx context.Context) ([]types.Model, error)
	SearchModels(ctx context.Context, q string) ([]types.Model, error)
	Stats(ctx context.Context) (types.ModelStats, error)
	Status() types.ProcessResponse
	Generate(ctx context.Context, req types.GenerateRequest, emit func(types.GenerateResponse) error) (types.GenerateResponse, error)
	Chat(ctx context.Context, req types.ChatRequest, emit func(types.ChatResponse) error) (types.ChatResponse, error)
	Unload(id string) (bool, error)
	Remove(ctx context.Context, id string) (bool, error)
	Ready() bool
}

// NewMux builds the router serving the Ollama-compatible API.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints; NDJSON streams are left alone.
	r.Use(middleware.Compress(5, "application/json"))
	if corsEnabled {
		origins, methods, headers := corsConfig()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: methods,
			AllowedHeaders: headers,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", h.generate)
		r.Post("/chat", h.chat)
		r.Get("/tags", h.tags)
		r.Get("/search", h.search)
		r.Get("/stats", h.stats)
		r.Get("/ps", h.ps)
		r.Post("/unload", h.unload)
		r.Delete("/delete", h.remove)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

type handlers struct {
	svc Service
}

// generate godoc
// @Summary      Generate a completion
// @Description  Completes a prompt. Streams NDJSON records unless stream is false.
// @Tags         generation
// @Accept       json
// @Produce      json,application/x-ndjson
// @Param        request  body      types.GenerateRequest  true  "Generation request"
// @Success      200      {object}  types.GenerateResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      500      {object}  types.ErrorResponse
// @Router       /api/generate [post]
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, apperr.KindBadRequest, "model is required")
		return
	}
	serveGeneration(w, r, req.Model, req.IsStreaming(), func(ctx context.Context, emit func(types.GenerateResponse) error) (types.GenerateResponse, error) {
		return h.svc.Generate(ctx, req, emit)
	})
}

// chat godoc
// @Summary      Chat completion
// @Description  Renders the conversation with the instruction template and completes it.
// @Tags         generation
// @Accept       json
// @Produce      json,application/x-ndjson
// @Param        request  body      types.ChatRequest  true  "Chat request"
// @Success      200      {object}  types.ChatResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      500      {object}  types.ErrorResponse
// @Router       /api/chat [post]
func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, apperr.KindBadRequest, "model is required")
		return
	}
	serveGeneration(w, r, req.Model, req.IsStreaming(), func(ctx context.Context, emit func(types.ChatResponse) error) (types.ChatResponse, error) {
		return h.svc.Chat(ctx, req, emit)
	})
}

// tags godoc
// @Summary  List registered models
// @Tags     models
// @Produce  json
// @Success  200  {object}  types.ModelsResponse
// @Failure  503  {object}  types.ErrorResponse
// @Router   /api/tags [get]
func (h *handlers) tags(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: nonNil(models)})
}

// search godoc
// @Summary  Search models by name
// @Tags     models
// @Produce  json
// @Param    q    query     string  false  "Case-insensitive name fragment"
// @Success  200  {object}  types.ModelsResponse
// @Failure  503  {object}  types.ErrorResponse
// @Router   /api/search [get]
func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.SearchModels(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: nonNil(models)})
}

// stats godoc
// @Summary  Catalog statistics
// @Tags     models
// @Produce  json
// @Success  200  {object}  types.ModelStats
// @Failure  503  {object}  types.ErrorResponse
// @Router   /api/stats [get]
func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ps godoc
// @Summary  Loaded models
// @Tags     models
// @Produce  json
// @Success  200  {object}  types.ProcessResponse
// @Router   /api/ps [get]
func (h *handlers) ps(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status()
	if st.Models == nil {
		st.Models = []types.RunningModel{}
	}
	writeJSON(w, http.StatusOK, st)
}

// unload godoc
// @Summary  Unload a model
// @Description  Releases the loaded instance. Removed is false when nothing was loaded.
// @Tags     models
// @Accept   json
// @Produce  json
// @Param    request  body      types.ModelRequest  true  "Model to unload"
// @Success  200      {object}  types.UnloadResponse
// @Failure  400      {object}  types.ErrorResponse
// @Router   /api/unload [post]
func (h *handlers) unload(w http.ResponseWriter, r *http.Request) {
	var req types.ModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	removed, err := h.svc.Unload(req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.UnloadResponse{Model: req.Model, Removed: removed})
}

// remove godoc
// @Summary  Delete a model record
// @Description  Unloads the model and removes it from the catalog. The weight file stays on disk.
// @Tags     models
// @Accept   json
// @Produce  json
// @Param    request  body      types.ModelRequest  true  "Model to delete"
// @Success  200      {object}  types.UnloadResponse
// @Failure  400      {object}  types.ErrorResponse
// @Failure  404      {object}  types.ErrorResponse
// @Router   /api/delete [delete]
func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	var req types.ModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	removed, err := h.svc.Remove(r.Context(), req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	if !removed {
		writeError(w, apperr.ModelNotFound(req.Model))
		return
	}
	writeJSON(w, http.StatusOK, types.UnloadResponse{Model: req.Model, Removed: true})
}

// decodeJSON enforces the content type and body limit and decodes into v. It
// writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, apperr.KindBadRequest, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, apperr.KindBadRequest, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, apperr.KindBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// serveGeneration runs a generation and writes either an NDJSON stream ending in
// the final record or a single JSON object. Errors raised before the first
// streamed record get a JSON error with a mapped status; errors after it are
// written as a trailing error record since the status is already sent.
func serveGeneration[T any](w http.ResponseWriter, r *http.Request, model string, streaming bool, run func(context.Context, func(T) error) (T, error)) {
	rl := newReqLog(r, model)
	rl.start()
	start := time.Now()

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	out := io.Writer(w)
	if rl.lvl >= LevelDebug {
		out = io.MultiWriter(w, &loggingLineWriter{model: model, reqID: rl.reqID})
	}
	enc := json.NewEncoder(out)
	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	pattern := routePatternOrPath(r)
	started := false
	write := func(rec any) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
		streamRecordsTotal.WithLabelValues(pattern).Inc()
		flush()
		return nil
	}

	var emit func(T) error
	if streaming {
		emit = func(chunk T) error { return write(chunk) }
	}
	final, err := run(ctx, emit)
	if err != nil {
		switch {
		case r.Context().Err() != nil:
			// Client went away; nobody is listening.
			rl.end(0, time.Since(start), err)
		case started:
			_ = write(errorBody(err))
			rl.end(http.StatusOK, time.Since(start), err)
		case serverBaseCtx.Err() != nil:
			writeJSONError(w, http.StatusServiceUnavailable, apperr.KindUnknown, "server shutting down")
			rl.end(http.StatusServiceUnavailable, time.Since(start), err)
		default:
			rl.end(writeError(w, err), time.Since(start), err)
		}
		return
	}
	if streaming {
		_ = write(final)
	} else {
		writeJSON(w, http.StatusOK, final)
	}
	rl.end(http.StatusOK, time.Since(start), nil)
}

func nonNil(models []types.Model) []types.Model {
	if models == nil {
		return []types.Model{}
	}
	return models
}
