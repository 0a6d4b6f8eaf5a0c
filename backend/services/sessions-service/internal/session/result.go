package session

import (
	"time"

	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
)

// StartCode tags the outcome of a remote start.
type StartCode string

const (
	StartSuccess                StartCode = "Success"
	StartUnknownOperator        StartCode = "UnknownOperator"
	StartUnknownChargingStation StartCode = "UnknownChargingStation"
	StartUnknownEVSE            StartCode = "UnknownEVSE"
	StartInvalidCredentials     StartCode = "InvalidCredentials"
	StartAlreadyInUse           StartCode = "AlreadyInUse"
	StartReserved               StartCode = "Reserved"
	StartOutOfService           StartCode = "OutOfService"
	StartOffline                StartCode = "Offline"
	StartNoEVSEsAvailable       StartCode = "NoEVSEsAvailable"
	StartTimeout                StartCode = "Timeout"
	StartCommunicationError     StartCode = "CommunicationError"
	StartError                  StartCode = "Error"
)

// RemoteStartResult is the outcome of a remote start. Only a successful
// result carries the session.
type RemoteStartResult struct {
	Code           StartCode        `json:"result"`
	Session        *ChargingSession `json:"session,omitempty"`
	Message        string           `json:"message,omitempty"`
	AdditionalInfo any              `json:"additionalInfo,omitempty"`
	Runtime        time.Duration    `json:"-"`
}

func (r RemoteStartResult) IsSuccess() bool { return r.Code == StartSuccess }

// Started returns a successful remote start result.
func Started(s *ChargingSession, runtime time.Duration) RemoteStartResult {
	return RemoteStartResult{Code: StartSuccess, Session: s, Runtime: runtime}
}

// StartFailed returns a failed remote start result. A success code is
// downgraded to StartError since a success must carry a session.
func StartFailed(code StartCode, message string, runtime time.Duration) RemoteStartResult {
	if code == StartSuccess {
		code = StartError
	}
	return RemoteStartResult{Code: code, Message: message, Runtime: runtime}
}

func (r RemoteStartResult) WithAdditionalInfo(info any) RemoteStartResult {
	r.AdditionalInfo = info
	return r
}

// StopCode tags the outcome of a remote stop.
type StopCode string

const (
	StopSuccess            StopCode = "Success"
	StopUnknownEVSE        StopCode = "UnknownEVSE"
	StopInvalidSessionID   StopCode = "InvalidSessionId"
	StopInvalidCredentials StopCode = "InvalidCredentials"
	StopOutOfService       StopCode = "OutOfService"
	StopOffline            StopCode = "Offline"
	StopTimeout            StopCode = "Timeout"
	StopCommunicationError StopCode = "CommunicationError"
	StopError              StopCode = "Error"
)

// RemoteStopResult is the outcome of a remote stop.
type RemoteStopResult struct {
	Code                StopCode              `json:"result"`
	SessionID           models.SessionID      `json:"sessionId"`
	ReservationID       models.ReservationID  `json:"reservationId,omitempty"`
	ReservationHandling *reservation.Handling `json:"reservationHandling,omitempty"`
	Message             string                `json:"message,omitempty"`
	AdditionalInfo      any                   `json:"additionalInfo,omitempty"`
	Runtime             time.Duration         `json:"-"`
}

func (r RemoteStopResult) IsSuccess() bool { return r.Code == StopSuccess }

// Stopped returns a successful remote stop result.
func Stopped(id models.SessionID, reservationID models.ReservationID, handling *reservation.Handling, runtime time.Duration) RemoteStopResult {
	return RemoteStopResult{
		Code:                StopSuccess,
		SessionID:           id,
		ReservationID:       reservationID,
		ReservationHandling: handling,
		Runtime:             runtime,
	}
}

// StopFailed returns a failed remote stop result.
func StopFailed(code StopCode, id models.SessionID, message string, runtime time.Duration) RemoteStopResult {
	if code == StopSuccess {
		code = StopError
	}
	return RemoteStopResult{Code: code, SessionID: id, Message: message, Runtime: runtime}
}

func (r RemoteStopResult) WithAdditionalInfo(info any) RemoteStopResult {
	r.AdditionalInfo = info
	return r
}
