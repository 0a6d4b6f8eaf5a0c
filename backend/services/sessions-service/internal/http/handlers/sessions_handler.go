package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/cdr"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
	"evroaming/backend/services/sessions-service/internal/service"
	"evroaming/backend/services/sessions-service/internal/store"
)

// SessionsHandler serves /sessions.
type SessionsHandler struct {
	svc    Lifecycle
	logger *zap.Logger
}

// NewSessionsHandler builds handler set.
func NewSessionsHandler(svc Lifecycle, logger *zap.Logger) *SessionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionsHandler{svc: svc, logger: logger}
}

type startRequest struct {
	EVSEID               models.EVSEID             `json:"EVSEId"`
	SessionID            models.SessionID          `json:"sessionId"`
	ReservationID        models.ReservationID      `json:"reservationId"`
	ProviderID           models.ProviderID         `json:"providerId"`
	CSORoamingProviderID models.RoamingProviderID  `json:"CSORoamingProviderId"`
	EMPRoamingProviderID models.RoamingProviderID  `json:"EMPRoamingProviderId"`
	Authentication       models.AuthIdentification `json:"authentication"`
	ChargingProduct      models.ChargingProductID  `json:"chargingProduct"`
}

type stopRequest struct {
	EVSEID              models.EVSEID             `json:"EVSEId"`
	ReservationHandling *reservation.Handling     `json:"reservationHandling"`
	ProviderID          models.ProviderID         `json:"providerId"`
	Authentication      models.AuthIdentification `json:"authentication"`
}

type meterValuesRequest struct {
	EnergyMeterValues []struct {
		Timestamp time.Time `json:"timestamp"`
		Value     float64   `json:"value"`
	} `json:"energyMeterValues"`
}

// HandleStart handles POST /sessions.
func (h *SessionsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.EVSEID.IsEmpty() {
		writeError(w, http.StatusBadRequest, "EVSEId is required")
		return
	}

	result := h.svc.RemoteStart(r.Context(), service.StartInput{
		EVSEID:               req.EVSEID,
		SessionID:            req.SessionID,
		ReservationID:        req.ReservationID,
		ProviderID:           req.ProviderID,
		CSORoamingProviderID: req.CSORoamingProviderID,
		EMPRoamingProviderID: req.EMPRoamingProviderID,
		Authentication:       req.Authentication,
		ChargingProduct:      req.ChargingProduct,
	})
	status := statusFor(string(result.Code))
	if result.IsSuccess() {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// HandleList handles GET /sessions.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": h.svc.Sessions()})
}

// HandleGet handles GET /sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.svc.Session(models.SessionID(chi.URLParam(r, "id")))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleStop handles POST /sessions/{id}/stop.
func (h *SessionsHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	var req stopRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	result := h.svc.RemoteStop(r.Context(), service.StopInput{
		SessionID:           models.SessionID(chi.URLParam(r, "id")),
		EVSEID:              req.EVSEID,
		ReservationHandling: req.ReservationHandling,
		ProviderID:          req.ProviderID,
		Authentication:      req.Authentication,
	})
	writeJSON(w, statusFor(string(result.Code)), result)
}

// HandleMeterValues handles POST /sessions/{id}/meter-values.
func (h *SessionsHandler) HandleMeterValues(w http.ResponseWriter, r *http.Request) {
	var req meterValuesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	values := make([]models.EnergyMeterValue, 0, len(req.EnergyMeterValues))
	for _, v := range req.EnergyMeterValues {
		if v.Timestamp.IsZero() {
			writeError(w, http.StatusBadRequest, "meter value timestamp is required")
			return
		}
		values = append(values, models.EnergyMeterValue{Timestamp: v.Timestamp, Value: v.Value})
	}

	err := h.svc.AddMeterValues(r.Context(), models.SessionID(chi.URLParam(r, "id")), values)
	if errors.Is(err, store.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("add meter values failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add meter values")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(values)})
}

// HandleCDR handles POST /sessions/{id}/cdr. An empty body asks the service
// to build the record from the live session.
func (h *SessionsHandler) HandleCDR(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	var record *cdr.ChargeDetailRecord
	if len(body) > 0 {
		record, err = cdr.Parse(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	accepted, err := h.svc.CloseSession(r.Context(), models.SessionID(chi.URLParam(r, "id")), record)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrCDRSessionMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("accept cdr failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to accept charge detail record")
	default:
		writeJSON(w, http.StatusAccepted, accepted)
	}
}
