package httpview

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"campus-transport/internal/domain/fleet"
	"campus-transport/internal/general/location"
	"campus-transport/internal/software/channel"
	"campus-transport/internal/software/rider"
)

type registerRequest struct {
	Type string `json:"type"`
}

// ----- Handler: GET /api/rider -----

func (handler *Handler) handleRiderStatus(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, handler.svc.Rider().Status())
}

// ----- Handler: POST /api/rider/register -----

func (handler *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(w, r)

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "content type must be application/json", nil)
		return
	}

	var req registerRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<12))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	riderType, err := fleet.ParseRiderType(req.Type)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, `type must be "within" or "outside"`, err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, intentTimeout)
	defer cancel()

	if err := handler.svc.Rider().Register(ctxWithTimeout, riderType); err != nil {
		handler.intentError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusAccepted, handler.svc.Rider().Status())
}

// ----- Handler: POST /api/rider/done -----

func (handler *Handler) handleDone(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(w, r)

	if !handler.svc.Rider().Done(ctx) {
		handler.httpError(ctx, w, http.StatusConflict, "not registered", nil)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, handler.svc.Rider().Status())
}

// ----- Handler: POST /api/rider/locate -----

func (handler *Handler) handleLocate(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(w, r)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, intentTimeout)
	defer cancel()

	point, err := handler.svc.Rider().Locate(ctxWithTimeout)
	if err != nil {
		handler.intentError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, point)
}

// intentError maps rider session failures onto status codes.
func (handler *Handler) intentError(ctx context.Context, w http.ResponseWriter, err error) {
	if f, ok := location.AsFailure(err); ok {
		handler.httpError(ctx, w, http.StatusUnprocessableEntity, f.Message(), err)
		return
	}
	switch {
	case errors.Is(err, channel.ErrNotJoined):
		handler.httpError(ctx, w, http.StatusServiceUnavailable, "not connected to the transport server", err)
	case errors.Is(err, rider.ErrAlreadyRegistered):
		handler.httpError(ctx, w, http.StatusConflict, "already registered", err)
	case errors.Is(err, rider.ErrLocating):
		handler.httpError(ctx, w, http.StatusConflict, "a location request is already running", err)
	case errors.Is(err, rider.ErrClosed):
		handler.httpError(ctx, w, http.StatusServiceUnavailable, "tracker is shutting down", err)
	default:
		handler.httpError(ctx, w, http.StatusInternalServerError, "request failed", err)
	}
}
