// Package httpview serves the live map frame and the rider intents over HTTP.
package httpview

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"campus-transport/internal/general/logger"
	"campus-transport/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

// intents may wait on the device location
const intentTimeout = 30 * time.Second

// Handler adapts HTTP requests to the TrackerService.
type Handler struct {
	svc     ports.TrackerService
	logger  *logger.Logger
	origins []string
}

// NewHandler wires an HTTP handler around the TrackerService.
func NewHandler(svc ports.TrackerService, logger *logger.Logger, allowedOrigins []string) *Handler {
	return &Handler{svc: svc, logger: logger, origins: allowedOrigins}
}

// Routes builds the router.
func (handler *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: handler.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", handler.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/frame", handler.handleFrame)
		r.Get("/route", handler.handleRoute)
		r.Route("/rider", func(r chi.Router) {
			r.Get("/", handler.handleRiderStatus)
			r.Post("/register", handler.handleRegister)
			r.Post("/done", handler.handleDone)
			r.Post("/locate", handler.handleLocate)
		})
	})
	return r
}

// ----- general helpers -----

// jsonResponse encodes data as the response body.
func (handler *Handler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *Handler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusUnprocessableEntity {
		action = "location_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID takes X-Request-ID or mints one, echoes it and adds it to the context.
func (handler *Handler) withReqID(w http.ResponseWriter, r *http.Request) context.Context {
	reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", reqID)
	return handler.logger.WithRequestID(r.Context(), reqID)
}
