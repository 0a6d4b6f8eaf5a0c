package models

import "strings"

// Identifier types. Each is an opaque string assigned by the owning party;
// the empty value means "not set".
type (
	RoamingNetworkID  string
	OperatorID        string
	ChargingPoolID    string
	ChargingStationID string
	EVSEID            string
	SessionID         string
	ReservationID     string
	ProviderID        string
	RoamingProviderID string
	SystemID          string
	EnergyMeterID     string
	ChargingProductID string
)

func (id RoamingNetworkID) IsEmpty() bool  { return strings.TrimSpace(string(id)) == "" }
func (id OperatorID) IsEmpty() bool        { return strings.TrimSpace(string(id)) == "" }
func (id ChargingPoolID) IsEmpty() bool    { return strings.TrimSpace(string(id)) == "" }
func (id ChargingStationID) IsEmpty() bool { return strings.TrimSpace(string(id)) == "" }
func (id EVSEID) IsEmpty() bool            { return strings.TrimSpace(string(id)) == "" }
func (id SessionID) IsEmpty() bool         { return strings.TrimSpace(string(id)) == "" }
func (id ReservationID) IsEmpty() bool     { return strings.TrimSpace(string(id)) == "" }

// AuthIdentification identifies who started or stopped something.
type AuthIdentification struct {
	AuthToken string `json:"authToken,omitempty"`
	EMAID     string `json:"eMAId,omitempty"`
	RemoteID  string `json:"remoteId,omitempty"`
}

// IsEmpty reports whether no identification is present.
func (a AuthIdentification) IsEmpty() bool {
	return a.AuthToken == "" && a.EMAID == "" && a.RemoteID == ""
}

// String returns the first populated identifier.
func (a AuthIdentification) String() string {
	switch {
	case a.AuthToken != "":
		return a.AuthToken
	case a.EMAID != "":
		return a.EMAID
	default:
		return a.RemoteID
	}
}
