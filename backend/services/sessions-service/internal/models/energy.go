package models

import (
	"sort"
	"time"
)

// EnergyMeterValue is a cumulative meter reading in Wh.
type EnergyMeterValue struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SignedMeterValue is a meter reading carrying the meter's own signature.
type SignedMeterValue struct {
	Timestamp time.Time     `json:"timestamp"`
	Value     float64       `json:"value"`
	MeterID   EnergyMeterID `json:"meterId,omitempty"`
	Signature string        `json:"signature,omitempty"`
}

// SortMeterValues orders readings by timestamp, keeping equal timestamps stable.
func SortMeterValues(values []EnergyMeterValue) {
	sort.SliceStable(values, func(i, j int) bool { return values[i].Timestamp.Before(values[j].Timestamp) })
}

// SortSignedMeterValues orders signed readings by timestamp.
func SortSignedMeterValues(values []SignedMeterValue) {
	sort.SliceStable(values, func(i, j int) bool { return values[i].Timestamp.Before(values[j].Timestamp) })
}
