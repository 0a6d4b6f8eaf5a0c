package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/cdr"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
	"evroaming/backend/services/sessions-service/internal/session"
	"evroaming/backend/services/sessions-service/internal/stationproxy"
	"evroaming/backend/services/sessions-service/internal/store"
)

var (
	now          = func() time.Time { return time.Now().UTC() }
	newSessionID = func() models.SessionID { return models.SessionID(uuid.NewString()) }
)

// ErrCDRSessionMismatch is returned when a record names another session.
var ErrCDRSessionMismatch = errors.New("service: charge detail record belongs to another session")

// Proxy executes commands at the remote charge point backend.
type Proxy interface {
	Reserve(ctx context.Context, req stationproxy.ReserveRequest) reservation.Result
	CancelReservation(ctx context.Context, id models.ReservationID, reason reservation.CancelReason, timeout time.Duration) reservation.CancelResult
	RemoteStart(ctx context.Context, req stationproxy.RemoteStartRequest) session.RemoteStartResult
	RemoteStop(ctx context.Context, req stationproxy.RemoteStopRequest) session.RemoteStopResult
	ReplaceWhitelist(ctx context.Context, target []string) stationproxy.WhitelistResult
}

// Forwarder delivers charge detail records upstream.
type Forwarder interface {
	Forward(ctx context.Context, record *cdr.ChargeDetailRecord) cdr.SendResult
}

// Deps holds the collaborators of SessionsService. Forwarder and Signer are optional.
type Deps struct {
	Proxy     Proxy
	Directory session.Directory
	Sessions  *store.SessionsStore
	CDRs      *store.CDRStore
	Forwarder Forwarder
	Signer    *cdr.Signer
	SystemID  models.SystemID
	Logger    *zap.Logger
}

// SessionsService drives reservations and sessions through their lifecycle
// and keeps the stores in step with the remote backend.
type SessionsService struct {
	proxy     Proxy
	dir       session.Directory
	sessions  *store.SessionsStore
	cdrs      *store.CDRStore
	forwarder Forwarder
	signer    *cdr.Signer
	systemID  models.SystemID
	logger    *zap.Logger

	mu           sync.Mutex
	reservations map[models.ReservationID]*reservation.ChargingReservation
}

// NewSessionsService builds service.
func NewSessionsService(d Deps) *SessionsService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionsService{
		proxy:        d.Proxy,
		dir:          d.Directory,
		sessions:     d.Sessions,
		cdrs:         d.CDRs,
		forwarder:    d.Forwarder,
		signer:       d.Signer,
		systemID:     d.SystemID,
		logger:       logger,
		reservations: make(map[models.ReservationID]*reservation.ChargingReservation),
	}
}

// Reserve asks the backend for a reservation and remembers successful ones.
func (s *SessionsService) Reserve(ctx context.Context, req stationproxy.ReserveRequest) reservation.Result {
	result := s.proxy.Reserve(ctx, req)
	if !result.IsSuccess() {
		s.logger.Info("reservation rejected",
			zap.String("evse", string(req.EVSEID)), zap.String("station", string(req.ChargingStationID)),
			zap.String("result", string(result.Code)), zap.String("message", result.Message))
		return result
	}
	if result.Reservation != nil {
		s.mu.Lock()
		s.reservations[result.Reservation.ID] = result.Reservation
		s.mu.Unlock()
		s.logger.Info("reservation created",
			zap.String("reservation", string(result.Reservation.ID)), zap.Time("end", result.Reservation.EndTime()))
	}
	return result
}

// CancelReservation cancels at the backend and forgets the reservation on success.
func (s *SessionsService) CancelReservation(ctx context.Context, id models.ReservationID, reason reservation.CancelReason) reservation.CancelResult {
	result := s.proxy.CancelReservation(ctx, id, reason, 0)
	if result.IsSuccess() {
		s.mu.Lock()
		delete(s.reservations, id)
		s.mu.Unlock()
	}
	s.logger.Info("reservation cancel",
		zap.String("reservation", string(id)), zap.String("reason", string(reason)), zap.String("result", string(result.Code)))
	return result
}

// Reservation returns a copy of a pending reservation.
func (s *SessionsService) Reservation(id models.ReservationID) (reservation.ChargingReservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok {
		return reservation.ChargingReservation{}, false
	}
	return *res, true
}

// Reservations returns copies of all pending reservations ordered by id.
func (s *SessionsService) Reservations() []reservation.ChargingReservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reservation.ChargingReservation, 0, len(s.reservations))
	for _, res := range s.reservations {
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ExpireReservations cancels every pending reservation whose end time has
// passed. Expired cancellations need no backend round trip.
func (s *SessionsService) ExpireReservations(ctx context.Context) int {
	at := now()
	s.mu.Lock()
	var expired []models.ReservationID
	for id, res := range s.reservations {
		if res.IsExpired(at) {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.CancelReservation(ctx, id, reservation.CancelReasonExpired)
	}
	return len(expired)
}

// StartInput describes a remote start request.
type StartInput struct {
	EVSEID               models.EVSEID
	SessionID            models.SessionID
	ReservationID        models.ReservationID
	ProviderID           models.ProviderID
	CSORoamingProviderID models.RoamingProviderID
	EMPRoamingProviderID models.RoamingProviderID
	Authentication       models.AuthIdentification
	ChargingProduct      models.ChargingProductID
}

// RemoteStart starts a session, redeeming a pending reservation when one is named.
func (s *SessionsService) RemoteStart(ctx context.Context, in StartInput) session.RemoteStartResult {
	if in.SessionID.IsEmpty() {
		in.SessionID = newSessionID()
	}

	var res *reservation.ChargingReservation
	if !in.ReservationID.IsEmpty() {
		s.mu.Lock()
		res = s.reservations[in.ReservationID]
		s.mu.Unlock()
		if res != nil && !res.Authorizes(in.Authentication) && res.ProviderID != in.ProviderID {
			return session.StartFailed(session.StartReserved, "reservation belongs to another party", 0)
		}
	}

	result := s.proxy.RemoteStart(ctx, stationproxy.RemoteStartRequest{
		EVSEID:               in.EVSEID,
		SessionID:            in.SessionID,
		ReservationID:        in.ReservationID,
		ProviderID:           in.ProviderID,
		CSORoamingProviderID: in.CSORoamingProviderID,
		EMPRoamingProviderID: in.EMPRoamingProviderID,
		Authentication:       in.Authentication,
		ChargingProduct:      in.ChargingProduct,
	})
	if !result.IsSuccess() || result.Session == nil {
		s.logger.Info("remote start rejected",
			zap.String("evse", string(in.EVSEID)), zap.String("result", string(result.Code)), zap.String("message", result.Message))
		return result
	}

	var linked *reservation.ChargingReservation
	if res != nil {
		s.mu.Lock()
		if pending, ok := s.reservations[res.ID]; ok {
			pending.Consume(now().Sub(pending.StartTime))
			cp := *pending
			linked = &cp
			delete(s.reservations, res.ID)
		}
		s.mu.Unlock()
	}

	stored := s.sessions.NewOrUpdate(ctx, result.Session, func(cs *session.ChargingSession) {
		if linked != nil {
			cs.SetReservation(linked)
		}
	})
	result.Session = stored
	s.logger.Info("session started",
		zap.String("session", string(stored.ID())), zap.String("evse", string(stored.EVSEID())),
		zap.String("reservation", string(stored.ReservationID())))
	return result
}

// StopInput describes a remote stop request.
type StopInput struct {
	SessionID           models.SessionID
	EVSEID              models.EVSEID
	ReservationHandling *reservation.Handling
	ProviderID          models.ProviderID
	Authentication      models.AuthIdentification
}

// RemoteStop stops a live session. Every attempt is recorded on the session.
func (s *SessionsService) RemoteStop(ctx context.Context, in StopInput) session.RemoteStopResult {
	live, ok := s.sessions.Get(in.SessionID)
	if !ok {
		return session.StopFailed(session.StopInvalidSessionID, in.SessionID, "unknown session", 0)
	}
	evse := in.EVSEID
	if evse.IsEmpty() {
		evse = live.EVSEID()
	}

	result := s.proxy.RemoteStop(ctx, stationproxy.RemoteStopRequest{
		EVSEID:              evse,
		SessionID:           in.SessionID,
		ReservationHandling: in.ReservationHandling,
		ProviderID:          in.ProviderID,
		Authentication:      in.Authentication,
	})

	attempt := session.StopRequest{
		Timestamp:           now(),
		SystemID:            s.systemID,
		ProviderID:          in.ProviderID,
		ReservationHandling: in.ReservationHandling,
		Result:              string(result.Code),
	}
	if !in.Authentication.IsEmpty() {
		auth := in.Authentication
		attempt.Authentication = &auth
	}

	err := s.sessions.Update(ctx, in.SessionID, func(cs *session.ChargingSession) {
		cs.AddStopRequest(attempt)
		if result.IsSuccess() {
			cs.Stop(attempt.Timestamp, session.Party{
				SystemID:       s.systemID,
				ProviderID:     in.ProviderID,
				Authentication: in.Authentication,
			})
		}
	})
	if err != nil {
		// Removed concurrently, e.g. by an arriving CDR.
		s.logger.Warn("stop attempt not recorded", zap.String("session", string(in.SessionID)), zap.Error(err))
	}

	if result.IsSuccess() {
		s.applyHandling(live, in.ReservationHandling)
	}
	s.logger.Info("remote stop",
		zap.String("session", string(in.SessionID)), zap.String("result", string(result.Code)))
	return result
}

// applyHandling keeps a redeemed reservation alive until the handling's end
// time, or lets it go.
func (s *SessionsService) applyHandling(cs *session.ChargingSession, h *reservation.Handling) {
	linked := cs.Reservation()
	if linked == nil || h == nil || !h.IsKeepAlive() {
		return
	}
	kept := *linked
	kept.SetEndTime(h.EndTime)
	s.mu.Lock()
	s.reservations[kept.ID] = &kept
	s.mu.Unlock()
	s.logger.Info("reservation kept alive", zap.String("reservation", string(kept.ID)), zap.Time("end", h.EndTime))
}

// AddMeterValues appends readings to a live session.
func (s *SessionsService) AddMeterValues(ctx context.Context, id models.SessionID, values []models.EnergyMeterValue) error {
	return s.sessions.Update(ctx, id, func(cs *session.ChargingSession) {
		for _, v := range values {
			cs.AddEnergyMeterValue(v)
		}
	})
}

// Session returns a live session.
func (s *SessionsService) Session(id models.SessionID) (*session.ChargingSession, bool) {
	return s.sessions.Get(id)
}

// Sessions returns all live sessions.
func (s *SessionsService) Sessions() []*session.ChargingSession {
	return s.sessions.All()
}

// BuildCDR derives a charge detail record from a live session.
func (s *SessionsService) BuildCDR(id models.SessionID) (*cdr.ChargeDetailRecord, error) {
	cs, ok := s.sessions.Get(id)
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	end, stopped := cs.EndTime()
	if !stopped {
		end = now()
	}
	start, stop := cs.StartParty(), cs.StopParty()
	p := cdr.Params{
		SessionID:           cs.ID(),
		SessionStart:        cs.StartTime(),
		SessionEnd:          end,
		EVSEID:              cs.EVSEID(),
		ChargingStationID:   cs.ChargingStationID(),
		ChargingPoolID:      cs.ChargingPoolID(),
		OperatorID:          cs.OperatorID(),
		ChargingProduct:     cs.ChargingProduct(),
		AuthenticationStart: start.Authentication,
		AuthenticationStop:  stop.Authentication,
		ProviderIDStart:     start.ProviderID,
		ProviderIDStop:      stop.ProviderID,
		ReservationID:       cs.ReservationID(),
		EnergyMeterID:       cs.EnergyMeterID(),
		EnergyMeterValues:   cs.EnergyMeterValues(),
	}
	if res := cs.Reservation(); res != nil {
		p.ReservationTime = res.ConsumedReservationTime
	}
	if values := p.EnergyMeterValues; len(values) > 1 {
		kwh := cs.ConsumedEnergy()
		p.ConsumedEnergy = &kwh
	}
	return cdr.New(p)
}

// CDRAccepted is what happened to an incoming charge detail record.
type CDRAccepted struct {
	Record       *cdr.ChargeDetailRecord `json:"cdr"`
	SendResult   cdr.SendResult          `json:"sendResult"`
	SessionKnown bool                    `json:"sessionKnown"`
}

// AcceptCDR stores, signs and forwards a record, attaches it to its session
// and retires the session from the live store.
func (s *SessionsService) AcceptCDR(ctx context.Context, record *cdr.ChargeDetailRecord) (CDRAccepted, error) {
	if record == nil {
		return CDRAccepted{}, fmt.Errorf("service: %w", cdr.ErrSessionIDRequired)
	}
	if s.signer != nil {
		if _, err := s.signer.Sign(record); err != nil {
			s.logger.Warn("cdr signing failed", zap.String("session", string(record.SessionID)), zap.Error(err))
		}
	}
	s.cdrs.New(ctx, record)

	sent := cdr.SendResult{SessionID: record.SessionID, Code: cdr.SendNotForwarded, Timestamp: now()}
	if s.forwarder != nil {
		sent = s.forwarder.Forward(ctx, record)
	}
	s.cdrs.Sent(ctx, sent)

	received := now()
	end := record.SessionEnd
	if end.IsZero() {
		end = received
	}
	err := s.sessions.Update(ctx, record.SessionID, func(cs *session.ChargingSession) {
		if _, stopped := cs.EndTime(); !stopped {
			cs.Stop(end, session.Party{
				SystemID:       s.systemID,
				ProviderID:     record.ProviderIDStop,
				Authentication: record.AuthenticationStop,
			})
		}
		result := sent
		cs.SetCDR(record, &result, s.systemID, received)
	})
	known := err == nil
	if known {
		s.sessions.Remove(ctx, record.SessionID, record.AuthenticationStop)
	}

	s.logger.Info("cdr accepted",
		zap.String("session", string(record.SessionID)), zap.String("send", string(sent.Code)), zap.Bool("sessionKnown", known))
	return CDRAccepted{Record: record, SendResult: sent, SessionKnown: known}, nil
}

// CloseSession accepts the record sent for session id. A nil record is
// built from the live session.
func (s *SessionsService) CloseSession(ctx context.Context, id models.SessionID, record *cdr.ChargeDetailRecord) (CDRAccepted, error) {
	if record == nil {
		built, err := s.BuildCDR(id)
		if err != nil {
			return CDRAccepted{}, err
		}
		record = built
	} else if record.SessionID != id {
		return CDRAccepted{}, ErrCDRSessionMismatch
	}
	return s.AcceptCDR(ctx, record)
}

// CDRs returns the collection of records for a session.
func (s *SessionsService) CDRs(id models.SessionID) (*cdr.Collection, bool) {
	return s.cdrs.Get(id)
}

// ReplaceWhitelist reconciles the backend whitelist with target.
func (s *SessionsService) ReplaceWhitelist(ctx context.Context, target []string) stationproxy.WhitelistResult {
	result := s.proxy.ReplaceWhitelist(ctx, target)
	s.logger.Info("whitelist replaced",
		zap.Int("removed", len(result.Removed)), zap.Int("inserted", len(result.Inserted)), zap.Int("failed", len(result.Failed)))
	return result
}
