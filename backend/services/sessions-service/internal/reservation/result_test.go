package reservation

import (
	"testing"
	"time"
)

func TestSuccessCarriesReservation(t *testing.T) {
	res := &ChargingReservation{ID: "R1"}
	r := Success(res, time.Second)
	if r.Code != CodeSuccess || r.Reservation != res || r.ReservationID != "R1" {
		t.Fatalf("unexpected result %+v", r)
	}
	if !r.IsSuccess() {
		t.Fatalf("expected success")
	}
}

func TestFailuresNeverCarryReservation(t *testing.T) {
	results := map[Code]Result{
		CodeUnknownOperator:              UnknownOperator(0),
		CodeUnknownChargingPool:          UnknownChargingPool(0),
		CodeUnknownChargingStation:       UnknownChargingStation(0),
		CodeUnknownEVSE:                  UnknownEVSE(0),
		CodeUnknownChargingReservationID: UnknownChargingReservationID("R1", 0),
		CodeAlreadyInUse:                 AlreadyInUse(0),
		CodeAlreadyReserved:              AlreadyReserved(0),
		CodeInvalidCredentials:           InvalidCredentials(0),
		CodeInternalUse:                  InternalUse(0),
		CodeOutOfService:                 OutOfService(0),
		CodeOffline:                      Offline(0),
		CodeNoEVSEsAvailable:             NoEVSEsAvailable(0),
		CodeTimeout:                      Timeout(0),
		CodeCommunicationError:           CommunicationError("boom", 0),
		CodeError:                        Failed("boom", 0),
	}
	for code, r := range results {
		if r.Code != code {
			t.Fatalf("constructor for %s produced %s", code, r.Code)
		}
		if r.Reservation != nil || r.IsSuccess() {
			t.Fatalf("%s must not carry a reservation", code)
		}
	}
}

func TestCancelResults(t *testing.T) {
	r := CancelSuccess("R1", CancelReasonExpired, 0)
	if !r.IsSuccess() || r.ReservationID != "R1" || r.Reason != CancelReasonExpired {
		t.Fatalf("unexpected cancel result %+v", r)
	}
	failed := CancelFailed("R1", CancelReasonDeleted, "nope", 0).WithAdditionalInfo("body")
	if failed.IsSuccess() || failed.Message != "nope" || failed.AdditionalInfo != "body" {
		t.Fatalf("unexpected cancel failure %+v", failed)
	}
}
