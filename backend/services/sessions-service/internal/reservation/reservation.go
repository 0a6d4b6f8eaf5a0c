package reservation

import (
	"encoding/json"
	"time"

	"evroaming/backend/services/sessions-service/internal/models"
)

// Level is the granularity a reservation was made at.
type Level string

const (
	LevelEVSE            Level = "EVSE"
	LevelChargingStation Level = "ChargingStation"
	LevelChargingPool    Level = "ChargingPool"
)

// CancelReason explains why a reservation is cancelled.
type CancelReason string

const (
	CancelReasonDeleted CancelReason = "Deleted"
	CancelReasonExpired CancelReason = "Expired"
)

// ChargingReservation is a time-boxed claim on charging capacity.
type ChargingReservation struct {
	ID                      models.ReservationID `json:"reservationId"`
	StartTime               time.Time            `json:"start"`
	Duration                time.Duration        `json:"-"`
	ConsumedReservationTime time.Duration        `json:"-"`
	Level                   Level                `json:"level,omitempty"`

	EVSEID            models.EVSEID            `json:"EVSEId,omitempty"`
	ChargingStationID models.ChargingStationID `json:"chargingStationId,omitempty"`
	ChargingPoolID    models.ChargingPoolID    `json:"chargingPoolId,omitempty"`
	OperatorID        models.OperatorID        `json:"chargingStationOperatorId,omitempty"`

	ProviderID     models.ProviderID         `json:"providerId,omitempty"`
	Authentication models.AuthIdentification `json:"authentication,omitempty"`
	AuthTokens     []string                  `json:"authTokens,omitempty"`
	EMAIDs         []string                  `json:"eMAIds,omitempty"`
	PINs           []uint32                  `json:"PINs,omitempty"`

	endTime *time.Time
}

// EndTime is StartTime+Duration unless overridden with SetEndTime.
func (r *ChargingReservation) EndTime() time.Time {
	if r.endTime != nil {
		return *r.endTime
	}
	return r.StartTime.Add(r.Duration)
}

// SetEndTime overrides the computed end time.
func (r *ChargingReservation) SetEndTime(t time.Time) {
	t = t.UTC()
	r.endTime = &t
}

// Remaining returns the time left at the given instant, never negative.
func (r *ChargingReservation) Remaining(at time.Time) time.Duration {
	left := r.EndTime().Sub(at)
	if left < 0 {
		return 0
	}
	return left
}

// IsExpired reports whether the reservation ended before at.
func (r *ChargingReservation) IsExpired(at time.Time) bool {
	return !r.EndTime().After(at)
}

// Consume adds used reservation time, e.g. when a session redeems it.
func (r *ChargingReservation) Consume(d time.Duration) {
	if d > 0 {
		r.ConsumedReservationTime += d
	}
}

// Authorizes reports whether a token or eMAId may redeem the reservation.
// A reservation without any listed credential is open to its provider only.
func (r *ChargingReservation) Authorizes(auth models.AuthIdentification) bool {
	if auth.IsEmpty() {
		return false
	}
	for _, token := range r.AuthTokens {
		if token != "" && token == auth.AuthToken {
			return true
		}
	}
	for _, id := range r.EMAIDs {
		if id != "" && id == auth.EMAID {
			return true
		}
	}
	return r.Authentication == auth
}

// MarshalJSON adds the derived end time and encodes durations in seconds.
func (r *ChargingReservation) MarshalJSON() ([]byte, error) {
	type alias ChargingReservation
	return json.Marshal(struct {
		*alias
		Duration float64   `json:"duration"`
		Consumed float64   `json:"consumedReservationTime,omitempty"`
		EndTime  time.Time `json:"end"`
	}{
		alias:    (*alias)(r),
		Duration: r.Duration.Seconds(),
		Consumed: r.ConsumedReservationTime.Seconds(),
		EndTime:  r.EndTime(),
	})
}
