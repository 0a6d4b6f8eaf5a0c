package models

import "time"

// EVSEStatus is the last known operational state of an EVSE.
type EVSEStatus string

const (
	EVSEStatusAvailable    EVSEStatus = "Available"
	EVSEStatusReserved     EVSEStatus = "Reserved"
	EVSEStatusCharging     EVSEStatus = "Charging"
	EVSEStatusOutOfService EVSEStatus = "OutOfService"
	EVSEStatusOffline      EVSEStatus = "Offline"
	EVSEStatusUnknown      EVSEStatus = "Unknown"
)

// ParseEVSEStatus maps remote status strings onto known values.
func ParseEVSEStatus(s string) EVSEStatus {
	switch EVSEStatus(s) {
	case EVSEStatusAvailable, EVSEStatusReserved, EVSEStatusCharging,
		EVSEStatusOutOfService, EVSEStatusOffline:
		return EVSEStatus(s)
	default:
		return EVSEStatusUnknown
	}
}

// RoamingNetwork is the top-level namespace.
type RoamingNetwork struct {
	ID   RoamingNetworkID `json:"id"`
	Name string           `json:"name,omitempty"`
}

// Operator is a charging station operator inside a roaming network.
type Operator struct {
	ID        OperatorID       `json:"id"`
	NetworkID RoamingNetworkID `json:"roamingNetworkId"`
	Name      string           `json:"name,omitempty"`
}

// ChargingPool groups stations at one site.
type ChargingPool struct {
	ID         ChargingPoolID `json:"id"`
	OperatorID OperatorID     `json:"chargingStationOperatorId"`
	Name       string         `json:"name,omitempty"`
}

// ChargingStation is a single physical station.
type ChargingStation struct {
	ID     ChargingStationID `json:"id"`
	PoolID ChargingPoolID    `json:"chargingPoolId"`
}

// EVSE is one charge point. Relations are ids only; resolve through a directory.
type EVSE struct {
	ID              EVSEID            `json:"id"`
	StationID       ChargingStationID `json:"chargingStationId"`
	Status          EVSEStatus        `json:"status"`
	StatusChangedAt time.Time         `json:"statusChangedAt"`
}
