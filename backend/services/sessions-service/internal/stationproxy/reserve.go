package stationproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
)

// ReserveRequest asks the backend to reserve an EVSE or a whole station.
// Exactly one of EVSEID and ChargingStationID should be set.
type ReserveRequest struct {
	ReservationID     models.ReservationID
	EVSEID            models.EVSEID
	ChargingStationID models.ChargingStationID
	StartTime         *time.Time
	Duration          time.Duration
	ProviderID        models.ProviderID
	Authentication    models.AuthIdentification
	ChargingProduct   models.ChargingProductID
	AuthTokens        []string
	EMAIDs            []string
	PINs              []uint32
	// Timeout overrides Config.ReserveTimeout when positive.
	Timeout time.Duration
}

type reserveBody struct {
	ReservationID   models.ReservationID       `json:"reservationId,omitempty"`
	StartTime       *time.Time                 `json:"startTime,omitempty"`
	Duration        float64                    `json:"duration,omitempty"`
	ProviderID      models.ProviderID          `json:"providerId,omitempty"`
	Authentication  *models.AuthIdentification `json:"authentication,omitempty"`
	ChargingProduct models.ChargingProductID   `json:"chargingProductId,omitempty"`
	AuthTokens      []string                   `json:"authTokens,omitempty"`
	EMAIDs          []string                   `json:"eMAIds,omitempty"`
	PINs            []uint32                   `json:"PINs,omitempty"`
}

type reserveResponse struct {
	ReservationID models.ReservationID `json:"reservationId"`
	StartTime     *time.Time           `json:"startTime"`
	Duration      *float64             `json:"duration"`
	PIN           pinValue             `json:"pin"`
}

// pinValue accepts a pin sent either as a JSON string or as a number.
type pinValue string

func (v *pinValue) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = pinValue(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("pin must be a string or a number: %w", err)
	}
	*v = pinValue(s)
	return nil
}

// Reserve reserves capacity at the remote backend.
func (p *Proxy) Reserve(ctx context.Context, req ReserveRequest) reservation.Result {
	var (
		path  string
		id    string
		level reservation.Level
	)
	switch {
	case !req.EVSEID.IsEmpty():
		path, id, level = "/EVSEs/"+escape(string(req.EVSEID))+"/Reservation", string(req.EVSEID), reservation.LevelEVSE
	case !req.ChargingStationID.IsEmpty():
		path, id, level = "/ChargingStations/"+escape(string(req.ChargingStationID))+"/Reservation", string(req.ChargingStationID), reservation.LevelChargingStation
	default:
		return reservation.Failed("no EVSE or charging station to reserve", 0)
	}

	body := reserveBody{
		ReservationID:   req.ReservationID,
		StartTime:       req.StartTime,
		Duration:        req.Duration.Seconds(),
		ProviderID:      req.ProviderID,
		ChargingProduct: req.ChargingProduct,
		AuthTokens:      req.AuthTokens,
		EMAIDs:          req.EMAIDs,
		PINs:            req.PINs,
	}
	if !req.Authentication.IsEmpty() {
		auth := req.Authentication
		body.Authentication = &auth
	}

	ex := p.do(ctx, call{
		op:      "Reserve",
		id:      id,
		method:  http.MethodPost,
		path:    path,
		body:    body,
		timeout: timeoutOr(req.Timeout, p.cfg.ReserveTimeout),
	})
	if ex.err != nil {
		if ex.failure == failureTimeout {
			return reservation.Timeout(ex.runtime)
		}
		return reservation.CommunicationError(ex.transportMessage(), ex.runtime)
	}

	switch classify(ex.status, ex.description) {
	case outcomeSuccess:
		res, err := p.reservationFrom(req, level, ex.body)
		if err != nil {
			return reservation.Failed(err.Error(), ex.runtime).WithAdditionalInfo(ex.info())
		}
		return reservation.Success(res, ex.runtime)
	case outcomeInvalidCredentials:
		return reservation.InvalidCredentials(ex.runtime)
	case outcomeUnauthorized:
		return reservation.CommunicationError(ex.description, ex.runtime).WithAdditionalInfo(ex.info())
	case outcomeUnknownReservation:
		return reservation.UnknownChargingReservationID(req.ReservationID, ex.runtime)
	case outcomeUnknownEVSE:
		return reservation.UnknownEVSE(ex.runtime)
	case outcomeUnknownStation:
		return reservation.UnknownChargingStation(ex.runtime)
	case outcomeAlreadyReserved:
		return reservation.AlreadyReserved(ex.runtime)
	case outcomeAlreadyInUse:
		return reservation.AlreadyInUse(ex.runtime)
	case outcomeOutOfService:
		return reservation.OutOfService(ex.runtime)
	case outcomeOffline:
		return reservation.Offline(ex.runtime)
	case outcomeNoEVSEsAvailable:
		return reservation.NoEVSEsAvailable(ex.runtime)
	default:
		return reservation.Failed(errorMessage(ex.status, ex.description), ex.runtime).WithAdditionalInfo(ex.info())
	}
}

// reservationFrom builds the reservation from the request, refreshed with
// whatever the backend returned.
func (p *Proxy) reservationFrom(req ReserveRequest, level reservation.Level, body []byte) (*reservation.ChargingReservation, error) {
	// The backend has already created the reservation, so an odd body only
	// loses details; the request's own values stand in for them.
	var resp reserveResponse
	if len(body) > 0 {
		if err := decodeJSON(body, &resp); err != nil {
			p.logger.Warn("reservation response not understood", zap.String("reservation", string(req.ReservationID)), zap.Error(err))
			resp = reserveResponse{}
		}
	}

	res := &reservation.ChargingReservation{
		ID:                req.ReservationID,
		StartTime:         now(),
		Duration:          req.Duration,
		Level:             level,
		EVSEID:            req.EVSEID,
		ChargingStationID: req.ChargingStationID,
		ProviderID:        req.ProviderID,
		Authentication:    req.Authentication,
		AuthTokens:        req.AuthTokens,
		EMAIDs:            req.EMAIDs,
		PINs:              append([]uint32(nil), req.PINs...),
	}
	if req.StartTime != nil {
		res.StartTime = req.StartTime.UTC()
	}
	if !resp.ReservationID.IsEmpty() {
		res.ID = resp.ReservationID
	}
	if resp.StartTime != nil {
		res.StartTime = resp.StartTime.UTC()
	}
	if resp.Duration != nil && *resp.Duration >= 0 {
		res.Duration = time.Duration(*resp.Duration * float64(time.Second))
	}
	if res.ID.IsEmpty() {
		return nil, fmt.Errorf("stationproxy: backend returned no reservation id")
	}
	if pin := strings.TrimSpace(string(resp.PIN)); pin != "" {
		parsed, err := strconv.ParseUint(pin, 10, 32)
		if err != nil {
			p.logger.Warn("reservation pin ignored", zap.String("reservation", string(res.ID)), zap.String("pin", pin))
		} else {
			res.PINs = appendPIN(res.PINs, uint32(parsed))
		}
	}

	if p.dir != nil {
		if !res.EVSEID.IsEmpty() {
			if evse, ok := p.dir.EVSE(res.EVSEID); ok && res.ChargingStationID.IsEmpty() {
				res.ChargingStationID = evse.StationID
			}
		}
		if st, ok := p.dir.ChargingStation(res.ChargingStationID); ok {
			res.ChargingPoolID = st.PoolID
			if pool, ok := p.dir.ChargingPool(st.PoolID); ok {
				res.OperatorID = pool.OperatorID
			}
		}
	}
	return res, nil
}

func appendPIN(pins []uint32, pin uint32) []uint32 {
	for _, existing := range pins {
		if existing == pin {
			return pins
		}
	}
	return append(pins, pin)
}

// CancelReservation deletes a reservation at the backend. Expired
// reservations are cancelled locally without contacting the backend.
func (p *Proxy) CancelReservation(ctx context.Context, id models.ReservationID, reason reservation.CancelReason, timeout time.Duration) reservation.CancelResult {
	if reason == reservation.CancelReasonExpired {
		return reservation.CancelSuccess(id, reason, 0)
	}
	if id.IsEmpty() {
		return reservation.CancelFailed(id, reason, "reservation id is required", 0)
	}

	ex := p.do(ctx, call{
		op:      "CancelReservation",
		id:      string(id),
		method:  http.MethodPost,
		path:    "/Reservations/" + escape(string(id)) + "/Delete",
		body:    map[string]string{"reason": string(reason)},
		timeout: timeoutOr(timeout, p.cfg.CancelTimeout),
	})
	if ex.err != nil {
		if ex.failure == failureTimeout {
			return reservation.CancelTimeout(id, reason, ex.runtime)
		}
		return reservation.CancelCommunicationError(id, reason, ex.transportMessage(), ex.runtime)
	}

	switch classify(ex.status, ex.description) {
	case outcomeSuccess:
		return reservation.CancelSuccess(id, reason, ex.runtime)
	case outcomeInvalidCredentials:
		return reservation.CancelInvalidCredentials(id, reason, ex.runtime)
	case outcomeUnauthorized:
		return reservation.CancelCommunicationError(id, reason, ex.description, ex.runtime).WithAdditionalInfo(ex.info())
	case outcomeUnknownReservation:
		return reservation.CancelUnknownReservation(id, reason, ex.runtime)
	case outcomeUnknownEVSE:
		return reservation.CancelUnknownEVSE(id, reason, ex.runtime)
	case outcomeOffline:
		return reservation.CancelOffline(id, reason, ex.runtime)
	default:
		return reservation.CancelFailed(id, reason, errorMessage(ex.status, ex.description), ex.runtime).WithAdditionalInfo(ex.info())
	}
}
