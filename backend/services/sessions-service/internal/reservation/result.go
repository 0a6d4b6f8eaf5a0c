package reservation

import (
	"time"

	"evroaming/backend/services/sessions-service/internal/models"
)

// Code tags the outcome of a reserve or cancel request.
type Code string

const (
	CodeSuccess                      Code = "Success"
	CodeUnknownOperator              Code = "UnknownOperator"
	CodeUnknownChargingPool          Code = "UnknownChargingPool"
	CodeUnknownChargingStation       Code = "UnknownChargingStation"
	CodeUnknownEVSE                  Code = "UnknownEVSE"
	CodeUnknownChargingReservationID Code = "UnknownChargingReservationId"
	CodeAlreadyInUse                 Code = "AlreadyInUse"
	CodeAlreadyReserved              Code = "AlreadyReserved"
	CodeInvalidCredentials           Code = "InvalidCredentials"
	CodeInternalUse                  Code = "InternalUse"
	CodeOutOfService                 Code = "OutOfService"
	CodeOffline                      Code = "Offline"
	CodeNoEVSEsAvailable             Code = "NoEVSEsAvailable"
	CodeTimeout                      Code = "Timeout"
	CodeCommunicationError           Code = "CommunicationError"
	CodeError                        Code = "Error"
)

// Result is the outcome of a reservation request. Only a successful result
// carries a reservation. Message and AdditionalInfo are informational.
type Result struct {
	Code           Code                 `json:"result"`
	Reservation    *ChargingReservation `json:"reservation,omitempty"`
	ReservationID  models.ReservationID `json:"reservationId,omitempty"`
	Message        string               `json:"message,omitempty"`
	AdditionalInfo any                  `json:"additionalInfo,omitempty"`
	Runtime        time.Duration        `json:"-"`
}

// IsSuccess reports whether the request succeeded.
func (r Result) IsSuccess() bool { return r.Code == CodeSuccess }

// WithAdditionalInfo returns a copy of r carrying info, such as a raw response body.
func (r Result) WithAdditionalInfo(info any) Result {
	r.AdditionalInfo = info
	return r
}

func failed(code Code, message string, runtime time.Duration) Result {
	return Result{Code: code, Message: message, Runtime: runtime}
}

// Success returns a successful result. res may be nil when the remote side
// confirmed the request without returning reservation details.
func Success(res *ChargingReservation, runtime time.Duration) Result {
	r := Result{Code: CodeSuccess, Reservation: res, Runtime: runtime}
	if res != nil {
		r.ReservationID = res.ID
	}
	return r
}

func UnknownOperator(runtime time.Duration) Result {
	return failed(CodeUnknownOperator, "", runtime)
}

func UnknownChargingPool(runtime time.Duration) Result {
	return failed(CodeUnknownChargingPool, "", runtime)
}

func UnknownChargingStation(runtime time.Duration) Result {
	return failed(CodeUnknownChargingStation, "", runtime)
}

func UnknownEVSE(runtime time.Duration) Result {
	return failed(CodeUnknownEVSE, "", runtime)
}

func UnknownChargingReservationID(id models.ReservationID, runtime time.Duration) Result {
	r := failed(CodeUnknownChargingReservationID, "", runtime)
	r.ReservationID = id
	return r
}

func AlreadyInUse(runtime time.Duration) Result {
	return failed(CodeAlreadyInUse, "", runtime)
}

func AlreadyReserved(runtime time.Duration) Result {
	return failed(CodeAlreadyReserved, "", runtime)
}

func InvalidCredentials(runtime time.Duration) Result {
	return failed(CodeInvalidCredentials, "", runtime)
}

func InternalUse(runtime time.Duration) Result {
	return failed(CodeInternalUse, "", runtime)
}

func OutOfService(runtime time.Duration) Result {
	return failed(CodeOutOfService, "", runtime)
}

func Offline(runtime time.Duration) Result {
	return failed(CodeOffline, "", runtime)
}

func NoEVSEsAvailable(runtime time.Duration) Result {
	return failed(CodeNoEVSEsAvailable, "", runtime)
}

func Timeout(runtime time.Duration) Result {
	return failed(CodeTimeout, "", runtime)
}

func CommunicationError(message string, runtime time.Duration) Result {
	return failed(CodeCommunicationError, message, runtime)
}

// Failed is the catch-all Error result.
func Failed(message string, runtime time.Duration) Result {
	return failed(CodeError, message, runtime)
}

// CancelResult is the outcome of cancelling a reservation.
type CancelResult struct {
	Code           Code                 `json:"result"`
	ReservationID  models.ReservationID `json:"reservationId"`
	Reason         CancelReason         `json:"reason,omitempty"`
	Message        string               `json:"message,omitempty"`
	AdditionalInfo any                  `json:"additionalInfo,omitempty"`
	Runtime        time.Duration        `json:"-"`
}

func (r CancelResult) IsSuccess() bool { return r.Code == CodeSuccess }

func (r CancelResult) WithAdditionalInfo(info any) CancelResult {
	r.AdditionalInfo = info
	return r
}

func cancelled(code Code, id models.ReservationID, reason CancelReason, message string, runtime time.Duration) CancelResult {
	return CancelResult{Code: code, ReservationID: id, Reason: reason, Message: message, Runtime: runtime}
}

func CancelSuccess(id models.ReservationID, reason CancelReason, runtime time.Duration) CancelResult {
	return cancelled(CodeSuccess, id, reason, "", runtime)
}

func CancelUnknownReservation(id models.ReservationID, reason CancelReason, runtime time.Duration) CancelResult {
	return cancelled(CodeUnknownChargingReservationID, id, reason, "", runtime)
}

func CancelUnknownEVSE(id models.ReservationID, reason CancelReason, runtime time.Duration) CancelResult {
	return cancelled(CodeUnknownEVSE, id, reason, "", runtime)
}

func CancelInvalidCredentials(id models.ReservationID, reason CancelReason, runtime time.Duration) CancelResult {
	return cancelled(CodeInvalidCredentials, id, reason, "", runtime)
}

func CancelOffline(id models.ReservationID, reason CancelReason, runtime time.Duration) CancelResult {
	return cancelled(CodeOffline, id, reason, "", runtime)
}

func CancelTimeout(id models.ReservationID, reason CancelReason, runtime time.Duration) CancelResult {
	return cancelled(CodeTimeout, id, reason, "", runtime)
}

func CancelCommunicationError(id models.ReservationID, reason CancelReason, message string, runtime time.Duration) CancelResult {
	return cancelled(CodeCommunicationError, id, reason, message, runtime)
}

func CancelFailed(id models.ReservationID, reason CancelReason, message string, runtime time.Duration) CancelResult {
	return cancelled(CodeError, id, reason, message, runtime)
}
