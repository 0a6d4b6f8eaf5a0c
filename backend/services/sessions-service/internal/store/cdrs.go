package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/auditlog"
	"evroaming/backend/services/sessions-service/internal/cdr"
	"evroaming/backend/services/sessions-service/internal/models"
)

// CDRStore keeps every charge detail record and forwarding attempt per session.
// Records are never removed.
type CDRStore struct {
	mu          sync.Mutex
	collections map[models.SessionID]*cdr.Collection
	journal     journal
}

func NewCDRStore(sink auditlog.Sink, logger *zap.Logger) *CDRStore {
	return &CDRStore{
		collections: make(map[models.SessionID]*cdr.Collection),
		journal:     newJournal(auditlog.StoreCDRs, sink, logger),
	}
}

func (st *CDRStore) collection(id models.SessionID) *cdr.Collection {
	col, ok := st.collections[id]
	if !ok {
		col = cdr.NewCollection(id)
		st.collections[id] = col
	}
	return col
}

// New appends record to its session's collection.
func (st *CDRStore) New(ctx context.Context, record *cdr.ChargeDetailRecord) *cdr.Collection {
	st.mu.Lock()
	defer st.mu.Unlock()

	col := st.collection(record.SessionID)
	col.Add(record)
	st.journal.write(ctx, VerbNew, string(record.SessionID), "", record)
	return col
}

// Sent records a forwarding attempt. The collection is created when the
// record was never stored locally.
func (st *CDRStore) Sent(ctx context.Context, result cdr.SendResult) *cdr.Collection {
	st.mu.Lock()
	defer st.mu.Unlock()

	col := st.collection(result.SessionID)
	col.AddSendResult(result)
	st.journal.write(ctx, VerbSent, string(result.SessionID), string(result.Code), result)
	return col
}

func (st *CDRStore) Get(id models.SessionID) (*cdr.Collection, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	col, ok := st.collections[id]
	return col, ok
}

func (st *CDRStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.collections)
}
