package session

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"evroaming/backend/services/sessions-service/internal/cdr"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
)

func populatedSession(t *testing.T) *ChargingSession {
	t.Helper()
	dir := testDirectory(t)
	s, err := New("S1", dir,
		WithStartTime(t0),
		WithContext("https://open.charging.cloud/contexts/SessionJSON"),
		WithStartParty(Party{
			SystemID:             "sessions-1",
			CSORoamingProviderID: "Hubject",
			ProviderID:           "DE-GDF",
			Authentication:       models.AuthIdentification{AuthToken: "TOKEN1"},
		}),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.SetEVSEID("DE*GEF*E1")
	s.SetChargingProduct("AC1")
	s.SetEnergyMeterID("METER1")
	s.SetReservation(&reservation.ChargingReservation{ID: "R1", StartTime: t0.Add(-time.Minute), Duration: 15 * time.Minute})
	s.AddEnergyMeterValue(models.EnergyMeterValue{Timestamp: t0, Value: 100})
	s.AddEnergyMeterValue(models.EnergyMeterValue{Timestamp: t0.Add(time.Minute), Value: 900})

	handling := reservation.KeepAliveUntil(t0.Add(time.Hour))
	s.AddStopRequest(StopRequest{
		Timestamp:           t0.Add(20 * time.Minute),
		ProviderID:          "DE-GDF",
		Authentication:      &models.AuthIdentification{AuthToken: "TOKEN1"},
		ReservationHandling: &handling,
		Result:              "Timeout",
	})
	s.Stop(t0.Add(25*time.Minute), Party{SystemID: "sessions-1", ProviderID: "DE-GDF"})

	record, err := cdr.New(cdr.Params{
		SessionID:    "S1",
		SessionStart: t0,
		SessionEnd:   t0.Add(25 * time.Minute),
		EVSEID:       "DE*GEF*E1",
		Price:        &cdr.Price{Amount: decimal.RequireFromString("4.20"), Currency: "EUR"},
		EnergyMeterValues: []models.EnergyMeterValue{
			{Timestamp: t0, Value: 100},
			{Timestamp: t0.Add(time.Minute), Value: 900},
		},
	})
	if err != nil {
		t.Fatalf("cdr: %v", err)
	}
	result := cdr.SendResult{SessionID: "S1", Code: cdr.SendEnqueued, Timestamp: t0.Add(30 * time.Minute)}
	s.SetCDR(record, &result, "sessions-1", t0.Add(26*time.Minute))
	return s
}

func TestJSONRoundTrip(t *testing.T) {
	s := populatedSession(t)
	first, err := s.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := Parse(first, testDirectory(t))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	second, err := parsed.ToJSON()
	if err != nil {
		t.Fatalf("marshal parsed: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("round trip mismatch\n%s\n%s", first, second)
	}
	if parsed.Reservation() == nil || parsed.Reservation().ID != "R1" {
		t.Fatalf("reservation lost")
	}
	if op, ok := parsed.Operator(); !ok || op.ID != "DE*GEF" {
		t.Fatalf("operator should re-resolve against the directory")
	}
	if received, ok := parsed.CDR(); !ok || received.CDR.SessionID != "S1" || received.Result.Code != cdr.SendEnqueued {
		t.Fatalf("cdr lost: %+v", received)
	}
}

func TestJSONShape(t *testing.T) {
	s := populatedSession(t)
	data, _ := s.ToJSON()
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"@id", "@context", "reservation", "start", "stop", "duration", "CDRReceived", "stopRequests", "EVSEId", "energyMeterValues"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing %s in %s", key, data)
		}
	}
	if _, ok := decoded["reservationId"]; ok {
		t.Fatalf("reservationId must not be written next to reservation")
	}
	if decoded["duration"] != float64(1500) {
		t.Fatalf("unexpected duration %v", decoded["duration"])
	}
}

func TestJSONOmitsAbsentFields(t *testing.T) {
	s := newSession(t, nil)
	s.SetReservationID("R9")
	data, _ := s.ToJSON()
	text := string(data)
	for _, key := range []string{"duration", "stop", "CDRReceived", "null", "reservation\""} {
		if strings.Contains(text, key) {
			t.Fatalf("unexpected %s in %s", key, text)
		}
	}
	if !strings.Contains(text, `"reservationId":"R9"`) {
		t.Fatalf("reservation id missing: %s", text)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	if _, err := Parse([]byte(`{"@id":"S1"}`), nil); err == nil {
		t.Fatalf("expected error without start")
	}
	if _, err := Parse([]byte(`{"@id":"","start":{"timestamp":"2024-01-01T10:00:00Z"}}`), nil); err == nil {
		t.Fatalf("expected error without id")
	}
	if _, err := Parse([]byte(`[`), nil); err == nil {
		t.Fatalf("expected decode error")
	}
}
