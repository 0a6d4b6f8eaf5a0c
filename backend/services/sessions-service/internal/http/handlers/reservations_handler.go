package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
	"evroaming/backend/services/sessions-service/internal/stationproxy"
)

// ReservationsHandler serves /reservations.
type ReservationsHandler struct {
	svc    Lifecycle
	logger *zap.Logger
}

// NewReservationsHandler builds handler set.
func NewReservationsHandler(svc Lifecycle, logger *zap.Logger) *ReservationsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationsHandler{svc: svc, logger: logger}
}

type reserveRequest struct {
	ReservationID     models.ReservationID      `json:"reservationId"`
	EVSEID            models.EVSEID             `json:"EVSEId"`
	ChargingStationID models.ChargingStationID  `json:"chargingStationId"`
	StartTime         *time.Time                `json:"startTime"`
	Duration          float64                   `json:"duration"`
	ProviderID        models.ProviderID         `json:"providerId"`
	Authentication    models.AuthIdentification `json:"authentication"`
	ChargingProduct   models.ChargingProductID  `json:"chargingProduct"`
	AuthTokens        []string                  `json:"authTokens"`
	EMAIDs            []string                  `json:"eMAIds"`
	PINs              []uint32                  `json:"PINs"`
}

// HandleReserve handles POST /reservations.
func (h *ReservationsHandler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.EVSEID.IsEmpty() && req.ChargingStationID.IsEmpty() {
		writeError(w, http.StatusBadRequest, "EVSEId or chargingStationId is required")
		return
	}
	if req.Duration < 0 {
		writeError(w, http.StatusBadRequest, "duration must not be negative")
		return
	}

	result := h.svc.Reserve(r.Context(), stationproxy.ReserveRequest{
		ReservationID:     req.ReservationID,
		EVSEID:            req.EVSEID,
		ChargingStationID: req.ChargingStationID,
		StartTime:         req.StartTime,
		Duration:          seconds(req.Duration),
		ProviderID:        req.ProviderID,
		Authentication:    req.Authentication,
		ChargingProduct:   req.ChargingProduct,
		AuthTokens:        req.AuthTokens,
		EMAIDs:            req.EMAIDs,
		PINs:              req.PINs,
	})
	status := statusFor(string(result.Code))
	if result.IsSuccess() {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// HandleCancel handles DELETE /reservations/{id}.
func (h *ReservationsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := models.ReservationID(chi.URLParam(r, "id"))
	reason := reservation.CancelReasonDeleted
	switch q := r.URL.Query().Get("reason"); q {
	case "", string(reservation.CancelReasonDeleted):
	case string(reservation.CancelReasonExpired):
		reason = reservation.CancelReasonExpired
	default:
		writeError(w, http.StatusBadRequest, "unknown cancel reason")
		return
	}

	result := h.svc.CancelReservation(r.Context(), id, reason)
	writeJSON(w, statusFor(string(result.Code)), result)
}

// HandleList handles GET /reservations.
func (h *ReservationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	pending := h.svc.Reservations()
	out := make([]*reservation.ChargingReservation, 0, len(pending))
	for i := range pending {
		out = append(out, &pending[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": out})
}
