package handlers

import (
	"net/http"
)

type whitelistRequest struct {
	IDs []string `json:"ids"`
}

// NewWhitelistHandler returns PUT /whitelist handler.
func NewWhitelistHandler(svc Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req whitelistRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		result := svc.ReplaceWhitelist(r.Context(), req.IDs)
		status := http.StatusOK
		if !result.OK() {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, result)
	}
}

// NewHealthHandler returns GET /health handler.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
