package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/auditlog"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/session"
)

// ErrSessionNotFound is returned by Update for unknown ids.
var ErrSessionNotFound = errors.New("store: session not found")

// Audit verbs.
const (
	VerbNew    = "new"
	VerbUpdate = "update"
	VerbRemove = "remove"
	VerbSent   = "sent"
)

// SessionsStore holds live sessions. A single lock serialises every mutation
// together with its audit record, so the audit trail is in mutation order.
// Contention grows with traffic across all sessions.
type SessionsStore struct {
	mu       sync.Mutex
	sessions map[models.SessionID]*session.ChargingSession
	journal  journal
}

// NewSessionsStore returns an empty store writing to sink.
func NewSessionsStore(sink auditlog.Sink, logger *zap.Logger) *SessionsStore {
	return &SessionsStore{
		sessions: make(map[models.SessionID]*session.ChargingSession),
		journal:  newJournal(auditlog.StoreSessions, sink, logger),
	}
}

// NewOrUpdate inserts s if its id is unknown, then applies update to the
// stored session. It returns the stored session.
func (st *SessionsStore) NewOrUpdate(ctx context.Context, s *session.ChargingSession, update func(*session.ChargingSession)) *session.ChargingSession {
	st.mu.Lock()
	defer st.mu.Unlock()

	verb := VerbUpdate
	stored, ok := st.sessions[s.ID()]
	if !ok {
		stored = s
		st.sessions[s.ID()] = s
		verb = VerbNew
	}
	if update != nil {
		update(stored)
	}
	st.journal.write(ctx, verb, string(stored.ID()), "", stored)
	return stored
}

// Update applies update to an existing session. Unknown ids return
// ErrSessionNotFound and write nothing.
func (st *SessionsStore) Update(ctx context.Context, id models.SessionID, update func(*session.ChargingSession)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	stored, ok := st.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if update != nil {
		update(stored)
	}
	st.journal.write(ctx, VerbUpdate, string(id), "", stored)
	return nil
}

// Remove records the stop authentication and drops the session from the
// live set. Unknown ids are a no-op reporting false.
func (st *SessionsStore) Remove(ctx context.Context, id models.SessionID, stopAuth models.AuthIdentification) (*session.ChargingSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	stored, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	if !stopAuth.IsEmpty() {
		stored.SetStopAuthentication(stopAuth)
	}
	delete(st.sessions, id)
	st.journal.write(ctx, VerbRemove, string(id), "", stored)
	return stored, true
}

func (st *SessionsStore) Get(id models.SessionID) (*session.ChargingSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *SessionsStore) Contains(id models.SessionID) bool {
	_, ok := st.Get(id)
	return ok
}

// All returns live sessions ordered by id.
func (st *SessionsStore) All() []*session.ChargingSession {
	st.mu.Lock()
	out := make([]*session.ChargingSession, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (st *SessionsStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
