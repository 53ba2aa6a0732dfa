package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/memelens/memelens/internal/domain/analysis"
	"github.com/memelens/memelens/internal/domain/meme"
	"github.com/memelens/memelens/internal/middleware"
)

// Router serves single-record analysis. No batching, no checkpointing; a
// bad record fails its own request and nothing else.
type Router struct {
	urlClient  analysis.Client
	dataClient analysis.Client
}

// NewRouter wires the analysis endpoints. urlClient submits images by
// reference URL; dataClient inlines the bytes (data image mode).
func NewRouter(urlClient, dataClient analysis.Client, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{urlClient: urlClient, dataClient: dataClient}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	mux.Use(middleware.Logging)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimit(30, 10))

	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Post("/analyze", r.wrap(r.handleAnalyze))

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks handler errors that are the caller's fault.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var br badRequest
		if errors.As(err, &br) {
			writeError(w, http.StatusBadRequest, "bad_request", br.msg)
			return
		}

		var ae *analysis.Error
		if errors.As(err, &ae) {
			switch ae.Kind {
			case analysis.KindRateLimited:
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, ae.Kind.String(), ae.Msg)
			case analysis.KindInvalidRequest:
				writeError(w, http.StatusBadRequest, ae.Kind.String(), ae.Msg)
			case analysis.KindAuth:
				writeError(w, http.StatusBadGateway, ae.Kind.String(), "upstream credential rejected")
			default:
				writeError(w, http.StatusBadGateway, ae.Kind.String(), ae.Msg)
			}
			return
		}

		writeError(w, http.StatusInternalServerError, "analysis_failed", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": msg})
}

// POST /analyze
// Body: {"url": "...", "image_mode": "url|data", "download_timeout": 15}
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URL             string  `json:"url"`
		ImageMode       string  `json:"image_mode"`
		DownloadTimeout float64 `json:"download_timeout"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest{"invalid json"}
	}
	if body.URL == "" {
		return badRequest{"missing or invalid 'url' field"}
	}

	client := r.urlClient
	ctx := req.Context()
	switch body.ImageMode {
	case "", "url", "remote":
	case "data":
		client = r.dataClient
		if body.DownloadTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(body.DownloadTimeout*float64(time.Second)))
			defer cancel()
		}
	default:
		return badRequest{fmt.Sprintf("unknown image_mode %q", body.ImageMode)}
	}

	middleware.IncrementAnalyses()
	result, err := client.Analyze(ctx, meme.Record{Name: body.URL, URL: body.URL})
	if err != nil {
		middleware.IncrementAnalysesFailed()
		return err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(map[string]meme.AnalysisResult{"analysis": result})
}
