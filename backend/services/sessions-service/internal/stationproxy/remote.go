package stationproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
	"evroaming/backend/services/sessions-service/internal/session"
)

var newSessionID = func() models.SessionID { return models.SessionID(uuid.NewString()) }

func escape(s string) string { return url.PathEscape(s) }

func decodeJSON(body []byte, v any) error { return json.Unmarshal(body, v) }

// RemoteStartRequest asks the backend to start charging on an EVSE.
type RemoteStartRequest struct {
	EVSEID               models.EVSEID
	SessionID            models.SessionID
	ReservationID        models.ReservationID
	ProviderID           models.ProviderID
	CSORoamingProviderID models.RoamingProviderID
	EMPRoamingProviderID models.RoamingProviderID
	Authentication       models.AuthIdentification
	ChargingProduct      models.ChargingProductID
	Timeout              time.Duration
}

type remoteStartBody struct {
	SessionID       models.SessionID           `json:"sessionId,omitempty"`
	ReservationID   models.ReservationID       `json:"reservationId,omitempty"`
	ProviderID      models.ProviderID          `json:"providerId,omitempty"`
	Authentication  *models.AuthIdentification `json:"authentication,omitempty"`
	ChargingProduct models.ChargingProductID   `json:"chargingProductId,omitempty"`
}

type remoteStartResponse struct {
	SessionID models.SessionID `json:"sessionId"`
	StartTime *time.Time       `json:"startTime"`
}

// RemoteStart starts a charging session. A successful result carries a new
// session located at the EVSE.
func (p *Proxy) RemoteStart(ctx context.Context, req RemoteStartRequest) session.RemoteStartResult {
	if req.EVSEID.IsEmpty() {
		return session.StartFailed(session.StartUnknownEVSE, "EVSE id is required", 0)
	}

	body := remoteStartBody{
		SessionID:       req.SessionID,
		ReservationID:   req.ReservationID,
		ProviderID:      req.ProviderID,
		ChargingProduct: req.ChargingProduct,
	}
	if !req.Authentication.IsEmpty() {
		auth := req.Authentication
		body.Authentication = &auth
	}

	ex := p.do(ctx, call{
		op:      "RemoteStart",
		id:      string(req.EVSEID),
		method:  http.MethodPost,
		path:    "/EVSEs/" + escape(string(req.EVSEID)) + "/RemoteStart",
		body:    body,
		timeout: timeoutOr(req.Timeout, p.cfg.RemoteStartTimeout),
	})
	if ex.err != nil {
		if ex.failure == failureTimeout {
			return session.StartFailed(session.StartTimeout, "", ex.runtime)
		}
		return session.StartFailed(session.StartCommunicationError, ex.transportMessage(), ex.runtime)
	}

	var code session.StartCode
	switch classify(ex.status, ex.description) {
	case outcomeSuccess:
		s, err := p.sessionFrom(req, ex.body)
		if err != nil {
			return session.StartFailed(session.StartError, err.Error(), ex.runtime).WithAdditionalInfo(ex.info())
		}
		return session.Started(s, ex.runtime)
	case outcomeInvalidCredentials:
		code = session.StartInvalidCredentials
	case outcomeUnauthorized:
		return session.StartFailed(session.StartCommunicationError, ex.description, ex.runtime).WithAdditionalInfo(ex.info())
	case outcomeUnknownEVSE:
		code = session.StartUnknownEVSE
	case outcomeUnknownStation:
		code = session.StartUnknownChargingStation
	case outcomeAlreadyReserved:
		code = session.StartReserved
	case outcomeAlreadyInUse:
		code = session.StartAlreadyInUse
	case outcomeOutOfService:
		code = session.StartOutOfService
	case outcomeOffline:
		code = session.StartOffline
	case outcomeNoEVSEsAvailable:
		code = session.StartNoEVSEsAvailable
	default:
		return session.StartFailed(session.StartError, errorMessage(ex.status, ex.description), ex.runtime).WithAdditionalInfo(ex.info())
	}
	return session.StartFailed(code, ex.description, ex.runtime)
}

func (p *Proxy) sessionFrom(req RemoteStartRequest, body []byte) (*session.ChargingSession, error) {
	var resp remoteStartResponse
	if len(body) > 0 {
		// A body without session details is still a successful start.
		_ = decodeJSON(body, &resp)
	}

	id := req.SessionID
	if !resp.SessionID.IsEmpty() {
		id = resp.SessionID
	}
	if id.IsEmpty() {
		id = newSessionID()
	}
	started := now()
	if resp.StartTime != nil {
		started = resp.StartTime.UTC()
	}

	s, err := session.New(id, p.dir,
		session.WithStartTime(started),
		session.WithStartParty(session.Party{
			SystemID:             p.cfg.SystemID,
			CSORoamingProviderID: req.CSORoamingProviderID,
			EMPRoamingProviderID: req.EMPRoamingProviderID,
			ProviderID:           req.ProviderID,
			Authentication:       req.Authentication,
		}),
	)
	if err != nil {
		return nil, err
	}
	s.SetEVSEID(req.EVSEID)
	s.SetChargingProduct(req.ChargingProduct)
	if !req.ReservationID.IsEmpty() {
		s.SetReservationID(req.ReservationID)
	}
	return s, nil
}

// RemoteStopRequest asks the backend to stop a session.
type RemoteStopRequest struct {
	EVSEID              models.EVSEID
	SessionID           models.SessionID
	ReservationHandling *reservation.Handling
	ProviderID          models.ProviderID
	Authentication      models.AuthIdentification
	Timeout             time.Duration
}

type remoteStopBody struct {
	SessionID           models.SessionID           `json:"sessionId"`
	ReservationHandling *reservation.Handling      `json:"reservationHandling,omitempty"`
	ProviderID          models.ProviderID          `json:"providerId,omitempty"`
	Authentication      *models.AuthIdentification `json:"authentication,omitempty"`
}

type remoteStopResponse struct {
	ReservationID models.ReservationID `json:"reservationId"`
}

// RemoteStop stops a running session.
func (p *Proxy) RemoteStop(ctx context.Context, req RemoteStopRequest) session.RemoteStopResult {
	if req.SessionID.IsEmpty() {
		return session.StopFailed(session.StopInvalidSessionID, req.SessionID, "session id is required", 0)
	}
	if req.EVSEID.IsEmpty() {
		return session.StopFailed(session.StopUnknownEVSE, req.SessionID, "EVSE id is required", 0)
	}

	body := remoteStopBody{
		SessionID:           req.SessionID,
		ReservationHandling: req.ReservationHandling,
		ProviderID:          req.ProviderID,
	}
	if !req.Authentication.IsEmpty() {
		auth := req.Authentication
		body.Authentication = &auth
	}

	ex := p.do(ctx, call{
		op:      "RemoteStop",
		id:      string(req.SessionID),
		method:  http.MethodPost,
		path:    "/EVSEs/" + escape(string(req.EVSEID)) + "/RemoteStop",
		body:    body,
		timeout: timeoutOr(req.Timeout, p.cfg.RemoteStopTimeout),
	})
	if ex.err != nil {
		if ex.failure == failureTimeout {
			return session.StopFailed(session.StopTimeout, req.SessionID, "", ex.runtime)
		}
		return session.StopFailed(session.StopCommunicationError, req.SessionID, ex.transportMessage(), ex.runtime)
	}

	var code session.StopCode
	switch classify(ex.status, ex.description) {
	case outcomeSuccess:
		var resp remoteStopResponse
		if len(ex.body) > 0 {
			_ = decodeJSON(ex.body, &resp)
		}
		return session.Stopped(req.SessionID, resp.ReservationID, req.ReservationHandling, ex.runtime)
	case outcomeInvalidCredentials:
		code = session.StopInvalidCredentials
	case outcomeUnauthorized:
		return session.StopFailed(session.StopCommunicationError, req.SessionID, ex.description, ex.runtime).WithAdditionalInfo(ex.info())
	case outcomeUnknownEVSE:
		code = session.StopUnknownEVSE
	case outcomeUnknownSession:
		code = session.StopInvalidSessionID
	case outcomeOutOfService:
		code = session.StopOutOfService
	case outcomeOffline:
		code = session.StopOffline
	default:
		return session.StopFailed(session.StopError, req.SessionID, errorMessage(ex.status, ex.description), ex.runtime).WithAdditionalInfo(ex.info())
	}
	return session.StopFailed(code, req.SessionID, ex.description, ex.runtime)
}
