package cdr

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"evroaming/backend/services/sessions-service/internal/models"
)

// ErrSessionIDRequired is returned by New when no session id is given.
var ErrSessionIDRequired = errors.New("cdr: session id is required")

// Price is an amount in a currency.
type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Signature is a detached signature over a record.
type Signature struct {
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"keyId,omitempty"`
	Value     string `json:"value"`
}

// Params holds everything needed to build a record. Location objects are
// optional; ids left empty are taken from them.
type Params struct {
	SessionID    models.SessionID
	SessionStart time.Time
	SessionEnd   time.Time
	Duration     time.Duration

	EVSEID            models.EVSEID
	ChargingStationID models.ChargingStationID
	ChargingPoolID    models.ChargingPoolID
	OperatorID        models.OperatorID
	EVSE              *models.EVSE
	ChargingStation   *models.ChargingStation
	ChargingPool      *models.ChargingPool
	Operator          *models.Operator

	ChargingProduct models.ChargingProductID
	Price           *Price

	AuthenticationStart models.AuthIdentification
	AuthenticationStop  models.AuthIdentification
	ProviderIDStart     models.ProviderID
	ProviderIDStop      models.ProviderID

	ReservationID   models.ReservationID
	ReservationTime time.Duration

	ParkingStart *time.Time
	ParkingEnd   *time.Time
	ParkingFee   *Price

	EnergyMeterID     models.EnergyMeterID
	EnergyMeterValues []models.EnergyMeterValue
	SignedMeterValues []models.SignedMeterValue
	// ConsumedEnergy in kWh. Derived from the meter series when nil.
	ConsumedEnergy *float64
}

// ChargeDetailRecord is the settlement record of a finished session. It is
// identified by its session id. Fields must not be changed after New; only
// the signature set grows.
type ChargeDetailRecord struct {
	SessionID    models.SessionID
	SessionStart time.Time
	SessionEnd   time.Time
	Duration     time.Duration

	EVSEID            models.EVSEID
	ChargingStationID models.ChargingStationID
	ChargingPoolID    models.ChargingPoolID
	OperatorID        models.OperatorID

	ChargingProduct models.ChargingProductID
	Price           *Price

	AuthenticationStart models.AuthIdentification
	AuthenticationStop  models.AuthIdentification
	ProviderIDStart     models.ProviderID
	ProviderIDStop      models.ProviderID

	ReservationID   models.ReservationID
	ReservationTime time.Duration

	ParkingStart *time.Time
	ParkingEnd   *time.Time
	ParkingFee   *Price

	EnergyMeterID     models.EnergyMeterID
	EnergyMeterValues []models.EnergyMeterValue
	SignedMeterValues []models.SignedMeterValue
	ConsumedEnergy    float64

	mu         sync.RWMutex
	signatures []Signature
}

// New validates p and builds a record.
func New(p Params) (*ChargeDetailRecord, error) {
	if p.SessionID.IsEmpty() {
		return nil, ErrSessionIDRequired
	}
	if !p.SessionEnd.IsZero() && p.SessionEnd.Before(p.SessionStart) {
		return nil, fmt.Errorf("cdr: session %s ends before it starts", p.SessionID)
	}
	syncLocation(&p)

	values := append([]models.EnergyMeterValue(nil), p.EnergyMeterValues...)
	models.SortMeterValues(values)
	signed := append([]models.SignedMeterValue(nil), p.SignedMeterValues...)
	models.SortSignedMeterValues(signed)

	c := &ChargeDetailRecord{
		SessionID:           p.SessionID,
		SessionStart:        p.SessionStart.UTC(),
		SessionEnd:          p.SessionEnd.UTC(),
		Duration:            p.Duration,
		EVSEID:              p.EVSEID,
		ChargingStationID:   p.ChargingStationID,
		ChargingPoolID:      p.ChargingPoolID,
		OperatorID:          p.OperatorID,
		ChargingProduct:     p.ChargingProduct,
		Price:               p.Price,
		AuthenticationStart: p.AuthenticationStart,
		AuthenticationStop:  p.AuthenticationStop,
		ProviderIDStart:     p.ProviderIDStart,
		ProviderIDStop:      p.ProviderIDStop,
		ReservationID:       p.ReservationID,
		ReservationTime:     p.ReservationTime,
		ParkingStart:        p.ParkingStart,
		ParkingEnd:          p.ParkingEnd,
		ParkingFee:          p.ParkingFee,
		EnergyMeterID:       p.EnergyMeterID,
		EnergyMeterValues:   values,
		SignedMeterValues:   signed,
	}
	if p.ConsumedEnergy != nil {
		c.ConsumedEnergy = *p.ConsumedEnergy
	} else {
		c.ConsumedEnergy = deriveConsumedEnergy(values, signed)
	}
	return c, nil
}

func syncLocation(p *Params) {
	if p.EVSE != nil {
		if p.EVSEID.IsEmpty() {
			p.EVSEID = p.EVSE.ID
		}
		if p.ChargingStationID.IsEmpty() {
			p.ChargingStationID = p.EVSE.StationID
		}
	}
	if p.ChargingStation != nil {
		if p.ChargingStationID.IsEmpty() {
			p.ChargingStationID = p.ChargingStation.ID
		}
		if p.ChargingPoolID.IsEmpty() {
			p.ChargingPoolID = p.ChargingStation.PoolID
		}
	}
	if p.ChargingPool != nil {
		if p.ChargingPoolID.IsEmpty() {
			p.ChargingPoolID = p.ChargingPool.ID
		}
		if p.OperatorID.IsEmpty() {
			p.OperatorID = p.ChargingPool.OperatorID
		}
	}
	if p.Operator != nil && p.OperatorID.IsEmpty() {
		p.OperatorID = p.Operator.ID
	}
}

func deriveConsumedEnergy(values []models.EnergyMeterValue, signed []models.SignedMeterValue) float64 {
	switch {
	case len(values) >= 2:
		return (values[len(values)-1].Value - values[0].Value) / 1000
	case len(signed) >= 2:
		return (signed[len(signed)-1].Value - signed[0].Value) / 1000
	default:
		return 0
	}
}

// AddSignature appends a signature. Duplicates are ignored.
func (c *ChargeDetailRecord) AddSignature(sig Signature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.signatures {
		if existing == sig {
			return
		}
	}
	c.signatures = append(c.signatures, sig)
}

// Signatures returns a copy of the signature set.
func (c *ChargeDetailRecord) Signatures() []Signature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Signature(nil), c.signatures...)
}

type wireCDR struct {
	SessionID         models.SessionID         `json:"sessionId"`
	SessionStart      time.Time                `json:"sessionStart"`
	SessionEnd        *time.Time               `json:"sessionEnd,omitempty"`
	Duration          *float64                 `json:"duration,omitempty"`
	EVSEID            models.EVSEID            `json:"EVSEId,omitempty"`
	ChargingStationID models.ChargingStationID `json:"chargingStationId,omitempty"`
	ChargingPoolID    models.ChargingPoolID    `json:"chargingPoolId,omitempty"`
	OperatorID        models.OperatorID        `json:"chargingStationOperatorId,omitempty"`
	ChargingProduct   models.ChargingProductID `json:"chargingProduct,omitempty"`
	Price             *Price                   `json:"price,omitempty"`

	AuthenticationStart *models.AuthIdentification `json:"authenticationStart,omitempty"`
	AuthenticationStop  *models.AuthIdentification `json:"authenticationStop,omitempty"`
	ProviderIDStart     models.ProviderID          `json:"providerIdStart,omitempty"`
	ProviderIDStop      models.ProviderID          `json:"providerIdStop,omitempty"`

	ReservationID   models.ReservationID `json:"reservationId,omitempty"`
	ReservationTime *float64             `json:"reservationTime,omitempty"`

	ParkingStart *time.Time `json:"parkingStart,omitempty"`
	ParkingEnd   *time.Time `json:"parkingEnd,omitempty"`
	ParkingFee   *Price     `json:"parkingFee,omitempty"`

	EnergyMeterID     models.EnergyMeterID      `json:"energyMeterId,omitempty"`
	EnergyMeterValues []models.EnergyMeterValue `json:"energyMeterValues,omitempty"`
	SignedMeterValues []models.SignedMeterValue `json:"signedMeterValues,omitempty"`
	ConsumedEnergy    float64                   `json:"consumedEnergy"`

	Signatures []Signature `json:"signatures,omitempty"`
}

func (c *ChargeDetailRecord) wire(withSignatures bool) wireCDR {
	w := wireCDR{
		SessionID:         c.SessionID,
		SessionStart:      c.SessionStart,
		EVSEID:            c.EVSEID,
		ChargingStationID: c.ChargingStationID,
		ChargingPoolID:    c.ChargingPoolID,
		OperatorID:        c.OperatorID,
		ChargingProduct:   c.ChargingProduct,
		Price:             c.Price,
		ProviderIDStart:   c.ProviderIDStart,
		ProviderIDStop:    c.ProviderIDStop,
		ReservationID:     c.ReservationID,
		ParkingStart:      c.ParkingStart,
		ParkingEnd:        c.ParkingEnd,
		ParkingFee:        c.ParkingFee,
		EnergyMeterID:     c.EnergyMeterID,
		EnergyMeterValues: c.EnergyMeterValues,
		SignedMeterValues: c.SignedMeterValues,
		ConsumedEnergy:    c.ConsumedEnergy,
	}
	if !c.SessionEnd.IsZero() {
		end := c.SessionEnd
		w.SessionEnd = &end
	}
	if c.Duration > 0 {
		secs := c.Duration.Seconds()
		w.Duration = &secs
	}
	if c.ReservationTime > 0 {
		secs := c.ReservationTime.Seconds()
		w.ReservationTime = &secs
	}
	if !c.AuthenticationStart.IsEmpty() {
		auth := c.AuthenticationStart
		w.AuthenticationStart = &auth
	}
	if !c.AuthenticationStop.IsEmpty() {
		auth := c.AuthenticationStop
		w.AuthenticationStop = &auth
	}
	if withSignatures {
		w.Signatures = c.Signatures()
	}
	return w
}

func (c *ChargeDetailRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.wire(true))
}

// Parse decodes a record produced by MarshalJSON.
func Parse(data []byte) (*ChargeDetailRecord, error) {
	var w wireCDR
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("cdr: decode: %w", err)
	}
	energy := w.ConsumedEnergy
	p := Params{
		SessionID:         w.SessionID,
		SessionStart:      w.SessionStart,
		EVSEID:            w.EVSEID,
		ChargingStationID: w.ChargingStationID,
		ChargingPoolID:    w.ChargingPoolID,
		OperatorID:        w.OperatorID,
		ChargingProduct:   w.ChargingProduct,
		Price:             w.Price,
		ProviderIDStart:   w.ProviderIDStart,
		ProviderIDStop:    w.ProviderIDStop,
		ReservationID:     w.ReservationID,
		ParkingStart:      w.ParkingStart,
		ParkingEnd:        w.ParkingEnd,
		ParkingFee:        w.ParkingFee,
		EnergyMeterID:     w.EnergyMeterID,
		EnergyMeterValues: w.EnergyMeterValues,
		SignedMeterValues: w.SignedMeterValues,
		ConsumedEnergy:    &energy,
	}
	if w.SessionEnd != nil {
		p.SessionEnd = *w.SessionEnd
	}
	if w.Duration != nil {
		p.Duration = time.Duration(*w.Duration * float64(time.Second))
	}
	if w.ReservationTime != nil {
		p.ReservationTime = time.Duration(*w.ReservationTime * float64(time.Second))
	}
	if w.AuthenticationStart != nil {
		p.AuthenticationStart = *w.AuthenticationStart
	}
	if w.AuthenticationStop != nil {
		p.AuthenticationStop = *w.AuthenticationStop
	}

	c, err := New(p)
	if err != nil {
		return nil, err
	}
	for _, sig := range w.Signatures {
		c.AddSignature(sig)
	}
	return c, nil
}
