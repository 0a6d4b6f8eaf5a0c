package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Store names used in records.
const (
	StoreSessions     = "sessions"
	StoreCDRs         = "cdrs"
	StoreStationProxy = "stationproxy"
)

// Record is one append-only audit entry.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Store     string          `json:"store"`
	Verb      string          `json:"verb"`
	ID        string          `json:"id"`
	Tag       string          `json:"tag,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Sink persists audit records. Writes are best effort.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Write(ctx context.Context, rec Record) error { return f(ctx, rec) }

type multi struct {
	sinks []Sink
}

// Multi writes every record to all sinks and joins their errors.
func Multi(sinks ...Sink) Sink {
	var flat []Sink
	for _, s := range sinks {
		if s != nil {
			flat = append(flat, s)
		}
	}
	return &multi{sinks: flat}
}

func (m *multi) Write(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards records.
var Nop Sink = SinkFunc(func(context.Context, Record) error { return nil })

// Memory keeps records in memory.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Write(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything written so far.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Filter returns records of one store.
func (m *Memory) Filter(store string) []Record {
	var out []Record
	for _, rec := range m.Records() {
		if rec.Store == store {
			out = append(out, rec)
		}
	}
	return out
}
