package cdr

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"evroaming/backend/services/sessions-service/internal/models"
)

var start = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func sampleParams() Params {
	return Params{
		SessionID:    "S1",
		SessionStart: start,
		SessionEnd:   start.Add(time.Hour),
		EVSE:         &models.EVSE{ID: "DE*GEF*E1", StationID: "DE*GEF*S1"},
		ChargingPool: &models.ChargingPool{ID: "DE*GEF*P1", OperatorID: "DE*GEF"},
		ChargingStation: &models.ChargingStation{
			ID:     "DE*GEF*S1",
			PoolID: "DE*GEF*P1",
		},
		Price:               &Price{Amount: decimal.RequireFromString("12.35"), Currency: "EUR"},
		AuthenticationStart: models.AuthIdentification{AuthToken: "TOKEN1"},
		ProviderIDStart:     "DE-GDF",
		EnergyMeterValues: []models.EnergyMeterValue{
			{Timestamp: start.Add(30 * time.Minute), Value: 6000},
			{Timestamp: start, Value: 1000},
			{Timestamp: start.Add(time.Hour), Value: 12500},
		},
	}
}

func TestNewRequiresSessionID(t *testing.T) {
	_, err := New(Params{})
	if !errors.Is(err, ErrSessionIDRequired) {
		t.Fatalf("expected ErrSessionIDRequired, got %v", err)
	}
	_, err = New(Params{SessionID: "S1", SessionStart: start, SessionEnd: start.Add(-time.Minute)})
	if err == nil {
		t.Fatalf("expected error for end before start")
	}
}

func TestNewSyncsLocationFromObjects(t *testing.T) {
	c, err := New(sampleParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.EVSEID != "DE*GEF*E1" || c.ChargingStationID != "DE*GEF*S1" ||
		c.ChargingPoolID != "DE*GEF*P1" || c.OperatorID != "DE*GEF" {
		t.Fatalf("location not synced: %+v", c)
	}

	p := sampleParams()
	p.EVSEID = "explicit"
	c, _ = New(p)
	if c.EVSEID != "explicit" {
		t.Fatalf("explicit id must win, got %s", c.EVSEID)
	}
}

func TestNewSortsMeterValuesAndDerivesEnergy(t *testing.T) {
	c, err := New(sampleParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 1; i < len(c.EnergyMeterValues); i++ {
		if c.EnergyMeterValues[i].Timestamp.Before(c.EnergyMeterValues[i-1].Timestamp) {
			t.Fatalf("meter values not sorted: %+v", c.EnergyMeterValues)
		}
	}
	if math.Abs(c.ConsumedEnergy-11.5) > 1e-9 {
		t.Fatalf("unexpected consumed energy %v", c.ConsumedEnergy)
	}

	p := sampleParams()
	explicit := 3.0
	p.ConsumedEnergy = &explicit
	c, _ = New(p)
	if c.ConsumedEnergy != 3 {
		t.Fatalf("explicit energy ignored: %v", c.ConsumedEnergy)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c, err := New(sampleParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.AddSignature(Signature{Algorithm: "HS256", Value: "abc"})
	c.AddSignature(Signature{Algorithm: "HS256", Value: "abc"})

	first, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := Parse(first)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	second, err := json.Marshal(parsed)
	if err != nil {
		t.Fatalf("marshal parsed: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("round trip mismatch\n%s\n%s", first, second)
	}
	if len(parsed.Signatures()) != 1 {
		t.Fatalf("duplicate signature kept: %+v", parsed.Signatures())
	}
	if !parsed.Price.Amount.Equal(decimal.RequireFromString("12.35")) {
		t.Fatalf("price lost: %+v", parsed.Price)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte(`{"sessionId":`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := Parse([]byte(`{}`)); !errors.Is(err, ErrSessionIDRequired) {
		t.Fatalf("expected ErrSessionIDRequired, got %v", err)
	}
}
