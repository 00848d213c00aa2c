// Package httpapi is the control surface the UI shell talks to. It is an
// adapter only: request parsing, NDJSON streaming, and error-to-status
// mapping live here; all behavior lives in the service behind it.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lingolens/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Status() types.StatusResponse
	ListModels() []types.ModelStatus
	Download(ctx context.Context, modelID string, w io.Writer, flush func()) error
	CancelDownload(modelID string)
	Load(ctx context.Context, req types.LoadRequest) (types.LoadResult, error)
	Release()
	Capture(ctx context.Context, req types.CaptureRequest, w io.Writer, flush func()) error
	SaveCard() (types.LearnCard, error)
	CancelCapture()
	ListCards() []types.LearnCard
	DeleteCard(id string) error
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.ModelsResponse{Models: svc.ListModels()})
	})

	r.Post("/models/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		w.Header().Set("Content-Type", "application/x-ndjson")
		flush := flusherFor(w)
		lvl := requestLogLevel(r)
		start := time.Now()
		logRequest(lvl, middleware.GetReqID(r.Context()), "download start", map[string]any{"model": id})

		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.Download(joinedCtx, id, w, flush); err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusFor(err)
			if status == http.StatusConflict {
				IncrementConflict("download_active")
			}
			writeJSONError(w, status, err.Error())
			logRequest(lvl, middleware.GetReqID(r.Context()), "download end", map[string]any{"model": id, "status": status, "dur": time.Since(start).String()})
			return
		}
		logRequest(lvl, middleware.GetReqID(r.Context()), "download end", map[string]any{"model": id, "status": 200, "dur": time.Since(start).String()})
	})

	r.Post("/models/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		svc.CancelDownload(chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/load", func(w http.ResponseWriter, r *http.Request) {
		var req types.LoadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		res, err := svc.Load(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, res)
	})

	r.Post("/release", func(w http.ResponseWriter, r *http.Request) {
		svc.Release()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/capture", func(w http.ResponseWriter, r *http.Request) {
		var req types.CaptureRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.ImagePath) == "" {
			writeJSONError(w, http.StatusBadRequest, "image_path is required")
			return
		}
		if req.Mode != types.ModeScene && req.Mode != types.ModeObject {
			writeJSONError(w, http.StatusBadRequest, "mode must be scene or object")
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		flush := flusherFor(w)
		lvl := requestLogLevel(r)
		start := time.Now()
		logRequest(lvl, middleware.GetReqID(r.Context()), "capture start", map[string]any{"mode": string(req.Mode)})

		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.Capture(joinedCtx, req, w, flush); err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusFor(err)
			if status == http.StatusConflict {
				IncrementConflict("capture_busy")
			}
			writeJSONError(w, status, err.Error())
			logRequest(lvl, middleware.GetReqID(r.Context()), "capture end", map[string]any{"status": status, "dur": time.Since(start).String()})
			return
		}
		logRequest(lvl, middleware.GetReqID(r.Context()), "capture end", map[string]any{"status": 200, "dur": time.Since(start).String()})
	})

	r.Post("/capture/save", func(w http.ResponseWriter, r *http.Request) {
		card, err := svc.SaveCard()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, card)
	})

	r.Post("/capture/cancel", func(w http.ResponseWriter, r *http.Request) {
		svc.CancelCapture()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/cards", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.CardsResponse{Cards: svc.ListCards()})
	})

	r.Delete("/cards/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteCard(chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeJSON enforces the JSON content type and body limit, then decodes
// into dst. It writes the error response itself and reports success.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

func flusherFor(w http.ResponseWriter) func() {
	if f, ok := w.(http.Flusher); ok {
		return f.Flush
	}
	return nil
}
