package session

import (
	"errors"
	"sync"
	"time"

	"evroaming/backend/services/sessions-service/internal/cdr"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
)

// ErrSessionIDRequired is returned by New when the id is empty.
var ErrSessionIDRequired = errors.New("session: id is required")

var now = func() time.Time { return time.Now().UTC() }

// Directory resolves infrastructure ids. Implementations must be fast and
// free of side effects; they are called while the session lock is held.
type Directory interface {
	RoamingNetwork(id models.RoamingNetworkID) (models.RoamingNetwork, bool)
	Operator(id models.OperatorID) (models.Operator, bool)
	ChargingPool(id models.ChargingPoolID) (models.ChargingPool, bool)
	ChargingStation(id models.ChargingStationID) (models.ChargingStation, bool)
	EVSE(id models.EVSEID) (models.EVSE, bool)
}

// Party describes who acted on one side of a session.
type Party struct {
	SystemID             models.SystemID           `json:"systemId,omitempty"`
	CSORoamingProviderID models.RoamingProviderID  `json:"CSORoamingProviderId,omitempty"`
	EMPRoamingProviderID models.RoamingProviderID  `json:"EMPRoamingProviderId,omitempty"`
	ProviderID           models.ProviderID         `json:"providerId,omitempty"`
	Authentication       models.AuthIdentification `json:"-"`
}

// IsEmpty reports whether no field is set.
func (p Party) IsEmpty() bool {
	return p.SystemID == "" && p.CSORoamingProviderID == "" && p.EMPRoamingProviderID == "" &&
		p.ProviderID == "" && p.Authentication.IsEmpty()
}

// StopRequest records one attempt to stop the session, successful or not.
type StopRequest struct {
	Timestamp           time.Time                  `json:"timestamp"`
	SystemID            models.SystemID            `json:"systemId,omitempty"`
	ProviderID          models.ProviderID          `json:"providerId,omitempty"`
	Authentication      *models.AuthIdentification `json:"authentication,omitempty"`
	ReservationHandling *reservation.Handling      `json:"reservationHandling,omitempty"`
	Result              string                     `json:"result,omitempty"`
}

// CDRReceived is the terminal state of a session.
type CDRReceived struct {
	Timestamp time.Time
	SystemID  models.SystemID
	CDR       *cdr.ChargeDetailRecord
	Result    *cdr.SendResult
}

// ChargingSession is one charge event from start to stop. Location
// references are stored as ids and resolved through the Directory on demand.
// All methods are safe for concurrent use.
type ChargingSession struct {
	mu  sync.RWMutex
	dir Directory

	id          models.SessionID
	jsonContext string
	start       time.Time
	end         *time.Time

	networkID  models.RoamingNetworkID
	operatorID models.OperatorID
	poolID     models.ChargingPoolID
	stationID  models.ChargingStationID
	evseID     models.EVSEID

	reservationID models.ReservationID
	reservation   *reservation.ChargingReservation

	startParty Party
	stopParty  Party

	chargingProduct models.ChargingProductID
	energyMeterID   models.EnergyMeterID
	meterValues     []models.EnergyMeterValue
	stopRequests    []StopRequest
	cdrReceived     *CDRReceived
}

// Option customises a new session.
type Option func(*ChargingSession)

// WithStartTime overrides the default start time of now.
func WithStartTime(t time.Time) Option {
	return func(s *ChargingSession) { s.start = t.UTC() }
}

// WithStartParty sets the start side.
func WithStartParty(p Party) Option {
	return func(s *ChargingSession) { s.startParty = p }
}

// WithContext sets the JSON-LD @context emitted on serialisation.
func WithContext(ctx string) Option {
	return func(s *ChargingSession) { s.jsonContext = ctx }
}

// New returns a session with the given id. dir may be nil, in which case no
// reference can be resolved.
func New(id models.SessionID, dir Directory, opts ...Option) (*ChargingSession, error) {
	if id.IsEmpty() {
		return nil, ErrSessionIDRequired
	}
	s := &ChargingSession{id: id, dir: dir, start: now()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ChargingSession) ID() models.SessionID { return s.id }

func (s *ChargingSession) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.start
}

// EndTime returns the end of the session if it was stopped.
func (s *ChargingSession) EndTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.end == nil {
		return time.Time{}, false
	}
	return *s.end, true
}

// Duration is (end or now) minus start.
func (s *ChargingSession) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durationLocked()
}

func (s *ChargingSession) durationLocked() time.Duration {
	if s.end != nil {
		return s.end.Sub(s.start)
	}
	return now().Sub(s.start)
}

// StartParty returns the party that started the session.
func (s *ChargingSession) StartParty() Party {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startParty
}

func (s *ChargingSession) SetStartParty(p Party) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startParty = p
}

// StopParty returns the party that stopped the session.
func (s *ChargingSession) StopParty() Party {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopParty
}

// Stop marks the session as ended at the given time by p.
func (s *ChargingSession) Stop(at time.Time, p Party) {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := at.UTC()
	s.end = &end
	s.stopParty = p
}

// SetStopAuthentication records who removed the session without ending it.
func (s *ChargingSession) SetStopAuthentication(auth models.AuthIdentification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopParty.Authentication = auth
}

func (s *ChargingSession) ChargingProduct() models.ChargingProductID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chargingProduct
}

func (s *ChargingSession) SetChargingProduct(id models.ChargingProductID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chargingProduct = id
}

func (s *ChargingSession) EnergyMeterID() models.EnergyMeterID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.energyMeterID
}

func (s *ChargingSession) SetEnergyMeterID(id models.EnergyMeterID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.energyMeterID = id
}

// AddEnergyMeterValue appends a reading. Readings are kept in the order they
// arrive; callers deliver them with non-decreasing timestamps.
func (s *ChargingSession) AddEnergyMeterValue(v models.EnergyMeterValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.Timestamp = v.Timestamp.UTC()
	s.meterValues = append(s.meterValues, v)
}

// EnergyMeterValues returns a copy of the readings.
func (s *ChargingSession) EnergyMeterValues() []models.EnergyMeterValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.EnergyMeterValue(nil), s.meterValues...)
}

// ConsumedEnergy is the sum of deltas between consecutive readings in kWh.
func (s *ChargingSession) ConsumedEnergy() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var wh float64
	for i := 1; i < len(s.meterValues); i++ {
		wh += s.meterValues[i].Value - s.meterValues[i-1].Value
	}
	return wh / 1000
}

// AddStopRequest appends a stop attempt to the audit trail.
func (s *ChargingSession) AddStopRequest(r StopRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Timestamp = r.Timestamp.UTC()
	s.stopRequests = append(s.stopRequests, r)
}

func (s *ChargingSession) StopRequests() []StopRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StopRequest(nil), s.stopRequests...)
}

// Reservation returns the linked reservation object, if known.
func (s *ChargingSession) Reservation() *reservation.ChargingReservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservation
}

func (s *ChargingSession) ReservationID() models.ReservationID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationID
}

// SetReservation links a reservation and adopts its id. nil clears both.
func (s *ChargingSession) SetReservation(r *reservation.ChargingReservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservation = r
	if r == nil {
		s.reservationID = ""
		return
	}
	s.reservationID = r.ID
}

// SetReservationID sets the id and drops a reservation object that disagrees.
func (s *ChargingSession) SetReservationID(id models.ReservationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservationID = id
	if s.reservation != nil && s.reservation.ID != id {
		s.reservation = nil
	}
}

// SetCDR records the terminal charge detail record.
func (s *ChargingSession) SetCDR(record *cdr.ChargeDetailRecord, result *cdr.SendResult, systemID models.SystemID, receivedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cdrReceived = &CDRReceived{
		Timestamp: receivedAt.UTC(),
		SystemID:  systemID,
		CDR:       record,
		Result:    result,
	}
}

// CDR returns the terminal record if one arrived.
func (s *ChargingSession) CDR() (CDRReceived, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cdrReceived == nil {
		return CDRReceived{}, false
	}
	return *s.cdrReceived, true
}

// HasEnded reports whether a CDR has been received.
func (s *ChargingSession) HasEnded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cdrReceived != nil
}
