package httpview

import (
	"net/http"

	"campus-transport/internal/domain/geo"
	"campus-transport/internal/domain/route"
	"campus-transport/internal/software/view"
)

type frameResponse struct {
	Connected bool `json:"connected"`
	view.Frame
}

type stopDTO struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Position geo.Point `json:"position"`
}

type routeResponse struct {
	Version string       `json:"version"`
	Stops   []stopDTO    `json:"stops"`
	Paths   []route.Path `json:"paths"`
}

// ----- Handler: GET /api/frame -----

func (handler *Handler) handleFrame(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, frameResponse{
		Connected: handler.svc.Connected(),
		Frame:     handler.svc.Frame(),
	})
}

// ----- Handler: GET /api/route -----

func (handler *Handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(w, r)

	rt := handler.svc.Route()
	if rt == nil {
		handler.httpError(ctx, w, http.StatusNotFound, "no route loaded", nil)
		return
	}

	stops := rt.Stops()
	resp := routeResponse{
		Version: rt.Version(),
		Stops:   make([]stopDTO, 0, len(stops)),
		Paths:   rt.Paths(),
	}
	for _, s := range stops {
		resp.Stops = append(resp.Stops, stopDTO{ID: s.ID, Name: s.Name, Position: s.Position})
	}
	handler.jsonResponse(ctx, w, http.StatusOK, resp)
}
