package httpview

import (
	"net/http"
)

// ----- Handler: GET /health -----

func (handler *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	type resp struct {
		Status    string `json:"status"`
		Connected bool   `json:"connected"`
	}
	handler.jsonResponse(r.Context(), w, http.StatusOK, resp{Status: "ok", Connected: handler.svc.Connected()})
}
