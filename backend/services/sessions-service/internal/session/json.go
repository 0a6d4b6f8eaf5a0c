package session

import (
	"encoding/json"
	"fmt"
	"time"

	"evroaming/backend/services/sessions-service/internal/cdr"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
)

type wireSide struct {
	Timestamp            *time.Time                 `json:"timestamp,omitempty"`
	SystemID             models.SystemID            `json:"systemId,omitempty"`
	CSORoamingProviderID models.RoamingProviderID   `json:"CSORoamingProviderId,omitempty"`
	EMPRoamingProviderID models.RoamingProviderID   `json:"EMPRoamingProviderId,omitempty"`
	ProviderID           models.ProviderID          `json:"providerId,omitempty"`
	Authentication       *models.AuthIdentification `json:"authentication,omitempty"`
}

func sideOf(at *time.Time, p Party) *wireSide {
	w := &wireSide{
		Timestamp:            at,
		SystemID:             p.SystemID,
		CSORoamingProviderID: p.CSORoamingProviderID,
		EMPRoamingProviderID: p.EMPRoamingProviderID,
		ProviderID:           p.ProviderID,
	}
	if !p.Authentication.IsEmpty() {
		auth := p.Authentication
		w.Authentication = &auth
	}
	return w
}

func (w *wireSide) party() Party {
	p := Party{
		SystemID:             w.SystemID,
		CSORoamingProviderID: w.CSORoamingProviderID,
		EMPRoamingProviderID: w.EMPRoamingProviderID,
		ProviderID:           w.ProviderID,
	}
	if w.Authentication != nil {
		p.Authentication = *w.Authentication
	}
	return p
}

type wireReservation struct {
	ReservationID models.ReservationID `json:"reservationId"`
	Start         time.Time            `json:"start"`
	Duration      float64              `json:"duration"`
}

type wireCDRReceived struct {
	Timestamp time.Time       `json:"timestamp"`
	SystemID  models.SystemID `json:"systemId,omitempty"`
	CDR       json.RawMessage `json:"cdr,omitempty"`
	Result    *cdr.SendResult `json:"result,omitempty"`
}

type wireSession struct {
	ID            models.SessionID     `json:"@id"`
	Context       string               `json:"@context,omitempty"`
	Reservation   *wireReservation     `json:"reservation,omitempty"`
	ReservationID models.ReservationID `json:"reservationId,omitempty"`
	Start         *wireSide            `json:"start"`
	Duration      *float64             `json:"duration,omitempty"`
	Stop          *wireSide            `json:"stop,omitempty"`
	CDRReceived   *wireCDRReceived     `json:"CDRReceived,omitempty"`
	StopRequests  []StopRequest        `json:"stopRequests,omitempty"`

	RoamingNetworkID  models.RoamingNetworkID  `json:"roamingNetworkId,omitempty"`
	OperatorID        models.OperatorID        `json:"chargingStationOperatorId,omitempty"`
	ChargingPoolID    models.ChargingPoolID    `json:"chargingPoolId,omitempty"`
	ChargingStationID models.ChargingStationID `json:"chargingStationId,omitempty"`
	EVSEID            models.EVSEID            `json:"EVSEId,omitempty"`

	ChargingProduct   models.ChargingProductID  `json:"chargingProduct,omitempty"`
	EnergyMeterID     models.EnergyMeterID      `json:"energyMeterId,omitempty"`
	EnergyMeterValues []models.EnergyMeterValue `json:"energyMeterValues,omitempty"`
}

// MarshalJSON encodes the session. Absent optional fields are omitted and
// duration is only written once the session has stopped.
func (s *ChargingSession) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := s.start
	w := wireSession{
		ID:                s.id,
		Context:           s.jsonContext,
		Start:             sideOf(&start, s.startParty),
		StopRequests:      s.stopRequests,
		RoamingNetworkID:  s.networkID,
		OperatorID:        s.operatorID,
		ChargingPoolID:    s.poolID,
		ChargingStationID: s.stationID,
		EVSEID:            s.evseID,
		ChargingProduct:   s.chargingProduct,
		EnergyMeterID:     s.energyMeterID,
		EnergyMeterValues: s.meterValues,
	}
	if s.reservation != nil {
		w.Reservation = &wireReservation{
			ReservationID: s.reservation.ID,
			Start:         s.reservation.StartTime.UTC(),
			Duration:      s.reservation.Duration.Seconds(),
		}
	} else {
		w.ReservationID = s.reservationID
	}
	if s.end != nil {
		end := *s.end
		secs := s.durationLocked().Seconds()
		w.Duration = &secs
		w.Stop = sideOf(&end, s.stopParty)
	} else if !s.stopParty.IsEmpty() {
		w.Stop = sideOf(nil, s.stopParty)
	}
	if s.cdrReceived != nil {
		received := &wireCDRReceived{
			Timestamp: s.cdrReceived.Timestamp,
			SystemID:  s.cdrReceived.SystemID,
			Result:    s.cdrReceived.Result,
		}
		if s.cdrReceived.CDR != nil {
			data, err := json.Marshal(s.cdrReceived.CDR)
			if err != nil {
				return nil, fmt.Errorf("session: encode cdr: %w", err)
			}
			received.CDR = data
		}
		w.CDRReceived = received
	}
	return json.Marshal(w)
}

// ToJSON is json.Marshal(s).
func (s *ChargingSession) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// Parse decodes a session written by MarshalJSON. Location ids are restored
// as written; entities are resolved lazily against dir.
func Parse(data []byte, dir Directory) (*ChargingSession, error) {
	var w wireSession
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	if w.Start == nil || w.Start.Timestamp == nil {
		return nil, fmt.Errorf("session: %s has no start timestamp", w.ID)
	}

	s, err := New(w.ID, dir, WithStartTime(*w.Start.Timestamp), WithStartParty(w.Start.party()), WithContext(w.Context))
	if err != nil {
		return nil, err
	}

	s.networkID = w.RoamingNetworkID
	s.operatorID = w.OperatorID
	s.poolID = w.ChargingPoolID
	s.stationID = w.ChargingStationID
	s.evseID = w.EVSEID
	s.chargingProduct = w.ChargingProduct
	s.energyMeterID = w.EnergyMeterID
	s.meterValues = w.EnergyMeterValues
	s.stopRequests = w.StopRequests

	if w.Reservation != nil {
		s.reservation = &reservation.ChargingReservation{
			ID:        w.Reservation.ReservationID,
			StartTime: w.Reservation.Start.UTC(),
			Duration:  time.Duration(w.Reservation.Duration * float64(time.Second)),
		}
		s.reservationID = w.Reservation.ReservationID
	} else {
		s.reservationID = w.ReservationID
	}

	if w.Stop != nil {
		s.stopParty = w.Stop.party()
		if w.Stop.Timestamp != nil {
			end := w.Stop.Timestamp.UTC()
			s.end = &end
		}
	}

	if w.CDRReceived != nil {
		received := &CDRReceived{
			Timestamp: w.CDRReceived.Timestamp.UTC(),
			SystemID:  w.CDRReceived.SystemID,
			Result:    w.CDRReceived.Result,
		}
		if len(w.CDRReceived.CDR) > 0 {
			record, err := cdr.Parse(w.CDRReceived.CDR)
			if err != nil {
				return nil, fmt.Errorf("session: %s: %w", w.ID, err)
			}
			received.CDR = record
		}
		s.cdrReceived = received
	}
	return s, nil
}
