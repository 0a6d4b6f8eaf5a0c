package session

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"evroaming/backend/services/sessions-service/internal/directory"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func fixClock(t *testing.T, at time.Time) {
	t.Helper()
	original := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = original })
}

func testDirectory(t *testing.T) *directory.Registry {
	t.Helper()
	r := directory.NewRegistry()
	steps := []error{
		r.AddRoamingNetwork(models.RoamingNetwork{ID: "NET"}),
		r.AddOperator(models.Operator{ID: "DE*GEF", NetworkID: "NET"}),
		r.AddChargingPool(models.ChargingPool{ID: "DE*GEF*P1", OperatorID: "DE*GEF"}),
		r.AddChargingPool(models.ChargingPool{ID: "DE*GEF*P2", OperatorID: "DE*GEF"}),
		r.AddChargingStation(models.ChargingStation{ID: "DE*GEF*S1", PoolID: "DE*GEF*P1"}),
		r.AddChargingStation(models.ChargingStation{ID: "DE*GEF*S2", PoolID: "DE*GEF*P2"}),
		r.AddEVSE(models.EVSE{ID: "DE*GEF*E1", StationID: "DE*GEF*S1"}),
		r.AddEVSE(models.EVSE{ID: "DE*GEF*E2", StationID: "DE*GEF*S2"}),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("directory: %v", err)
		}
	}
	return r
}

func newSession(t *testing.T, dir Directory) *ChargingSession {
	t.Helper()
	s, err := New("S1", dir, WithStartTime(t0))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestNewRequiresID(t *testing.T) {
	if _, err := New("", nil); !errors.Is(err, ErrSessionIDRequired) {
		t.Fatalf("expected ErrSessionIDRequired, got %v", err)
	}
	fixClock(t, t0)
	s, _ := New("S1", nil)
	if !s.StartTime().Equal(t0) {
		t.Fatalf("start should default to now, got %s", s.StartTime())
	}
}

func TestSetEVSEIDCascades(t *testing.T) {
	s := newSession(t, testDirectory(t))

	if !s.SetEVSEID("DE*GEF*E1") {
		t.Fatalf("set evse refused")
	}
	if s.ChargingStationID() != "DE*GEF*S1" || s.ChargingPoolID() != "DE*GEF*P1" ||
		s.OperatorID() != "DE*GEF" || s.RoamingNetworkID() != "NET" {
		t.Fatalf("chain not resolved: %s %s %s %s", s.ChargingStationID(), s.ChargingPoolID(), s.OperatorID(), s.RoamingNetworkID())
	}
	if evse, ok := s.EVSE(); !ok || evse.ID != "DE*GEF*E1" {
		t.Fatalf("evse not resolvable")
	}

	s.SetEVSEID("DE*GEF*E2")
	if s.ChargingStationID() != "DE*GEF*S2" || s.ChargingPoolID() != "DE*GEF*P2" {
		t.Fatalf("lower level must overwrite parents")
	}
}

func TestUnknownEVSEClearsParents(t *testing.T) {
	s := newSession(t, testDirectory(t))
	s.SetEVSEID("DE*GEF*E1")
	s.SetEVSEID("unknown")

	if s.EVSEID() != "unknown" {
		t.Fatalf("evse id should be kept")
	}
	if s.ChargingStationID() != "" || s.ChargingPoolID() != "" || s.OperatorID() != "" || s.RoamingNetworkID() != "" {
		t.Fatalf("parents should be cleared")
	}
	if _, ok := s.ChargingStation(); ok {
		t.Fatalf("nothing to resolve")
	}
}

func TestHigherLevelCannotContradictLowerLevel(t *testing.T) {
	s := newSession(t, testDirectory(t))
	s.SetEVSEID("DE*GEF*E1")

	if s.SetChargingStationID("DE*GEF*S2") {
		t.Fatalf("contradicting station accepted")
	}
	if s.SetChargingPool(models.ChargingPool{ID: "DE*GEF*P2", OperatorID: "DE*GEF"}) {
		t.Fatalf("contradicting pool accepted")
	}
	if !s.SetChargingStationID("DE*GEF*S1") {
		t.Fatalf("consistent station refused")
	}
	if s.ChargingStationID() != "DE*GEF*S1" || s.ChargingPoolID() != "DE*GEF*P1" {
		t.Fatalf("chain changed after refused update")
	}
}

func TestHigherLevelOnEmptySession(t *testing.T) {
	s := newSession(t, testDirectory(t))
	if !s.SetChargingPoolID("DE*GEF*P2") {
		t.Fatalf("pool refused")
	}
	if s.OperatorID() != "DE*GEF" || s.RoamingNetworkID() != "NET" || s.EVSEID() != "" {
		t.Fatalf("unexpected chain after pool set")
	}
	if !s.SetOperator(models.Operator{ID: "DE*GEF", NetworkID: "NET"}) {
		t.Fatalf("same operator refused")
	}
}

func TestNilDirectoryLeavesParentsEmpty(t *testing.T) {
	s := newSession(t, nil)
	s.SetEVSE(models.EVSE{ID: "E1", StationID: "S1"})
	if s.EVSEID() != "E1" || s.ChargingStationID() != "S1" || s.ChargingPoolID() != "" {
		t.Fatalf("unexpected chain %s %s %s", s.EVSEID(), s.ChargingStationID(), s.ChargingPoolID())
	}
}

func TestConsumedEnergyAndDuration(t *testing.T) {
	fixClock(t, t0.Add(30*time.Minute))
	s := newSession(t, nil)

	values := []float64{1000, 1500, 4000, 7250}
	for i, v := range values {
		s.AddEnergyMeterValue(models.EnergyMeterValue{Timestamp: t0.Add(time.Duration(i) * time.Minute), Value: v})
	}
	if got := s.ConsumedEnergy(); math.Abs(got-6.25) > 1e-9 {
		t.Fatalf("unexpected consumed energy %v", got)
	}
	if s.Duration() != 30*time.Minute {
		t.Fatalf("running duration should use now, got %s", s.Duration())
	}

	s.Stop(t0.Add(10*time.Minute), Party{ProviderID: "DE-GDF"})
	if s.Duration() != 10*time.Minute {
		t.Fatalf("stopped duration should use end, got %s", s.Duration())
	}
}

func TestReservationSync(t *testing.T) {
	s := newSession(t, nil)
	res := &reservation.ChargingReservation{ID: "R1"}

	s.SetReservation(res)
	if s.ReservationID() != "R1" || s.Reservation() != res {
		t.Fatalf("reservation not linked")
	}
	s.SetReservationID("R1")
	if s.Reservation() != res {
		t.Fatalf("matching id must keep the object")
	}
	s.SetReservationID("R2")
	if s.Reservation() != nil || s.ReservationID() != "R2" {
		t.Fatalf("mismatching id must drop the object")
	}
	s.SetReservation(nil)
	if s.ReservationID() != "" {
		t.Fatalf("nil reservation clears the id")
	}
}

func TestStopRequestsAppendOnly(t *testing.T) {
	s := newSession(t, nil)
	s.AddStopRequest(StopRequest{Timestamp: t0, Result: "Timeout"})
	s.AddStopRequest(StopRequest{Timestamp: t0.Add(time.Minute), Result: "Success"})

	requests := s.StopRequests()
	if len(requests) != 2 || requests[0].Result != "Timeout" || requests[1].Result != "Success" {
		t.Fatalf("unexpected stop requests %+v", requests)
	}
}

func TestConcurrentMutation(t *testing.T) {
	s := newSession(t, testDirectory(t))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			s.AddEnergyMeterValue(models.EnergyMeterValue{Timestamp: t0, Value: float64(i)})
		}(i)
		go func() {
			defer wg.Done()
			s.AddStopRequest(StopRequest{Timestamp: t0})
		}()
		go func() {
			defer wg.Done()
			s.SetEVSEID("DE*GEF*E1")
			_, _ = s.ToJSON()
		}()
	}
	wg.Wait()

	if len(s.EnergyMeterValues()) != 50 || len(s.StopRequests()) != 50 {
		t.Fatalf("lost concurrent appends")
	}
}
