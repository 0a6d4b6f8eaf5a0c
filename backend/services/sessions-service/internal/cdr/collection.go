package cdr

import (
	"sync"
	"time"

	"evroaming/backend/services/sessions-service/internal/models"
)

// SendCode tags the outcome of forwarding a record upstream.
type SendCode string

const (
	SendSuccess            SendCode = "Success"
	SendEnqueued           SendCode = "Enqueued"
	SendNotForwarded       SendCode = "NotForwarded"
	SendTimeout            SendCode = "Timeout"
	SendCommunicationError SendCode = "CommunicationError"
	SendError              SendCode = "Error"
)

// SendResult records one forwarding attempt.
type SendResult struct {
	SessionID models.SessionID `json:"sessionId"`
	Code      SendCode         `json:"result"`
	Target    string           `json:"target,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Runtime   time.Duration    `json:"-"`
}

func (r SendResult) IsSuccess() bool {
	return r.Code == SendSuccess || r.Code == SendEnqueued
}

// Collection is the append-only set of records and send attempts for one session.
type Collection struct {
	SessionID models.SessionID

	mu      sync.RWMutex
	records []*ChargeDetailRecord
	results []SendResult
}

// NewCollection returns an empty collection for the session.
func NewCollection(id models.SessionID) *Collection {
	return &Collection{SessionID: id}
}

func (c *Collection) Add(record *ChargeDetailRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
}

func (c *Collection) AddSendResult(result SendResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Records returns the records in submission order.
func (c *Collection) Records() []*ChargeDetailRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*ChargeDetailRecord(nil), c.records...)
}

func (c *Collection) SendResults() []SendResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]SendResult(nil), c.results...)
}

// Latest returns the most recently added record, if any.
func (c *Collection) Latest() (*ChargeDetailRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.records) == 0 {
		return nil, false
	}
	return c.records[len(c.records)-1], true
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
