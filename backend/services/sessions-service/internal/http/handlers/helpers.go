package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"evroaming/backend/services/sessions-service/internal/cdr"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
	"evroaming/backend/services/sessions-service/internal/service"
	"evroaming/backend/services/sessions-service/internal/session"
	"evroaming/backend/services/sessions-service/internal/stationproxy"
)

const maxBodyBytes = 1 << 20

// Lifecycle is the service surface the handlers drive.
type Lifecycle interface {
	Reserve(ctx context.Context, req stationproxy.ReserveRequest) reservation.Result
	CancelReservation(ctx context.Context, id models.ReservationID, reason reservation.CancelReason) reservation.CancelResult
	Reservations() []reservation.ChargingReservation
	RemoteStart(ctx context.Context, in service.StartInput) session.RemoteStartResult
	RemoteStop(ctx context.Context, in service.StopInput) session.RemoteStopResult
	AddMeterValues(ctx context.Context, id models.SessionID, values []models.EnergyMeterValue) error
	Session(id models.SessionID) (*session.ChargingSession, bool)
	Sessions() []*session.ChargingSession
	CloseSession(ctx context.Context, id models.SessionID, record *cdr.ChargeDetailRecord) (service.CDRAccepted, error)
	ReplaceWhitelist(ctx context.Context, target []string) stationproxy.WhitelistResult
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// statusFor maps a result tag onto the HTTP status reported to API callers.
func statusFor(code string) int {
	switch code {
	case "Success":
		return http.StatusOK
	case "UnknownOperator", "UnknownChargingPool", "UnknownChargingStation", "UnknownEVSE",
		"UnknownChargingReservationId", "InvalidSessionId":
		return http.StatusNotFound
	case "InvalidCredentials":
		return http.StatusForbidden
	case "AlreadyInUse", "AlreadyReserved", "Reserved", "InternalUse", "NoEVSEsAvailable":
		return http.StatusConflict
	case "OutOfService", "Offline":
		return http.StatusServiceUnavailable
	case "Timeout":
		return http.StatusGatewayTimeout
	case "CommunicationError":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
