package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"evroaming/backend/services/sessions-service/internal/cdr"
	"evroaming/backend/services/sessions-service/internal/http/handlers"
	"evroaming/backend/services/sessions-service/internal/http/middleware"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/reservation"
	"evroaming/backend/services/sessions-service/internal/service"
	"evroaming/backend/services/sessions-service/internal/session"
	"evroaming/backend/services/sessions-service/internal/stationproxy"
	"evroaming/backend/services/sessions-service/internal/store"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fakeLifecycle struct {
	reserveReq  stationproxy.ReserveRequest
	reserveCode reservation.Code
	cancelled   []reservation.CancelReason
	startIn     service.StartInput
	stopIn      service.StopInput
	meterValues []models.EnergyMeterValue
	closed      *cdr.ChargeDetailRecord
	whitelist   []string
	sessions    map[models.SessionID]*session.ChargingSession
}

func newFakeLifecycle(t *testing.T) *fakeLifecycle {
	t.Helper()
	s, err := session.New("S1", nil, session.WithStartTime(t0))
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	s.SetEVSEID("DE*GEF*E1")
	return &fakeLifecycle{sessions: map[models.SessionID]*session.ChargingSession{"S1": s}}
}

func (f *fakeLifecycle) Reserve(_ context.Context, req stationproxy.ReserveRequest) reservation.Result {
	f.reserveReq = req
	if f.reserveCode != "" {
		return reservation.AlreadyReserved(0)
	}
	return reservation.Success(&reservation.ChargingReservation{ID: "R1", StartTime: t0, Duration: req.Duration}, 0)
}

func (f *fakeLifecycle) CancelReservation(_ context.Context, id models.ReservationID, reason reservation.CancelReason) reservation.CancelResult {
	f.cancelled = append(f.cancelled, reason)
	if id != "R1" {
		return reservation.CancelUnknownReservation(id, reason, 0)
	}
	return reservation.CancelSuccess(id, reason, 0)
}

func (f *fakeLifecycle) Reservations() []reservation.ChargingReservation {
	return []reservation.ChargingReservation{{ID: "R1", StartTime: t0, Duration: time.Hour}}
}

func (f *fakeLifecycle) RemoteStart(_ context.Context, in service.StartInput) session.RemoteStartResult {
	f.startIn = in
	if in.EVSEID == "busy" {
		return session.StartFailed(session.StartAlreadyInUse, "", 0)
	}
	return session.Started(f.sessions["S1"], 0)
}

func (f *fakeLifecycle) RemoteStop(_ context.Context, in service.StopInput) session.RemoteStopResult {
	f.stopIn = in
	if _, ok := f.sessions[in.SessionID]; !ok {
		return session.StopFailed(session.StopInvalidSessionID, in.SessionID, "", 0)
	}
	return session.Stopped(in.SessionID, "", in.ReservationHandling, 0)
}

func (f *fakeLifecycle) AddMeterValues(_ context.Context, id models.SessionID, values []models.EnergyMeterValue) error {
	if _, ok := f.sessions[id]; !ok {
		return store.ErrSessionNotFound
	}
	f.meterValues = append(f.meterValues, values...)
	return nil
}

func (f *fakeLifecycle) Session(id models.SessionID) (*session.ChargingSession, bool) {
	s, ok := f.sessions[id]
	return s, ok
}

func (f *fakeLifecycle) Sessions() []*session.ChargingSession {
	return []*session.ChargingSession{f.sessions["S1"]}
}

func (f *fakeLifecycle) CloseSession(_ context.Context, id models.SessionID, record *cdr.ChargeDetailRecord) (service.CDRAccepted, error) {
	if _, ok := f.sessions[id]; !ok {
		return service.CDRAccepted{}, store.ErrSessionNotFound
	}
	if record != nil && record.SessionID != id {
		return service.CDRAccepted{}, service.ErrCDRSessionMismatch
	}
	if record == nil {
		record, _ = cdr.New(cdr.Params{SessionID: id, SessionStart: t0})
	}
	f.closed = record
	return service.CDRAccepted{Record: record, SendResult: cdr.SendResult{SessionID: id, Code: cdr.SendEnqueued}, SessionKnown: true}, nil
}

func (f *fakeLifecycle) ReplaceWhitelist(_ context.Context, target []string) stationproxy.WhitelistResult {
	f.whitelist = target
	res := stationproxy.WhitelistResult{Inserted: target}
	if len(target) > 2 {
		res.Failed = []stationproxy.WhitelistFailure{{ID: target[2], Operation: stationproxy.OpInsert, Status: stationproxy.EntryError}}
	}
	return res
}

const jwtSecret = "router-secret"

func newTestRouter(t *testing.T) (http.Handler, *fakeLifecycle, string) {
	t.Helper()
	fake := newFakeLifecycle(t)
	router := NewRouter(Routes{
		Reservations: handlers.NewReservationsHandler(fake, nil),
		Sessions:     handlers.NewSessionsHandler(fake, nil),
		Whitelist:    handlers.NewWhitelistHandler(fake),
		Health:       handlers.NewHealthHandler(),
		Auth:         middleware.Auth(middleware.AuthConfig{Secret: jwtSecret}),
	})
	token, err := middleware.IssueToken(jwtSecret, "tester", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return router, fake, token
}

func do(t *testing.T, h http.Handler, token, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var decoded map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestHealthIsOpenAndRoutesAreGuarded(t *testing.T) {
	router, _, _ := newTestRouter(t)
	if rec, _ := do(t, router, "", http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if rec, _ := do(t, router, "", http.MethodGet, "/sessions", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestReservationRoutes(t *testing.T) {
	router, fake, token := newTestRouter(t)

	rec, body := do(t, router, token, http.MethodPost, "/reservations", `{"EVSEId":"DE*GEF*E1","duration":900,"PINs":[1234]}`)
	if rec.Code != http.StatusCreated || body["result"] != "Success" || body["reservationId"] != "R1" {
		t.Fatalf("reserve: %d %v", rec.Code, body)
	}
	if fake.reserveReq.Duration != 15*time.Minute || fake.reserveReq.PINs[0] != 1234 {
		t.Fatalf("request not mapped: %+v", fake.reserveReq)
	}

	fake.reserveCode = reservation.CodeAlreadyReserved
	if rec, body := do(t, router, token, http.MethodPost, "/reservations", `{"EVSEId":"DE*GEF*E1"}`); rec.Code != http.StatusConflict || body["result"] != "AlreadyReserved" {
		t.Fatalf("conflict: %d %v", rec.Code, body)
	}
	if rec, _ := do(t, router, token, http.MethodPost, "/reservations", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing target: %d", rec.Code)
	}

	if rec, _ := do(t, router, token, http.MethodDelete, "/reservations/R1?reason=Expired", ""); rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d", rec.Code)
	}
	if rec, body := do(t, router, token, http.MethodDelete, "/reservations/R9", ""); rec.Code != http.StatusNotFound || body["result"] != "UnknownChargingReservationId" {
		t.Fatalf("unknown cancel: %d %v", rec.Code, body)
	}
	if rec, _ := do(t, router, token, http.MethodDelete, "/reservations/R1?reason=Whatever", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad reason: %d", rec.Code)
	}
	if len(fake.cancelled) != 2 || fake.cancelled[0] != reservation.CancelReasonExpired || fake.cancelled[1] != reservation.CancelReasonDeleted {
		t.Fatalf("unexpected reasons %v", fake.cancelled)
	}

	if rec, body := do(t, router, token, http.MethodGet, "/reservations", ""); rec.Code != http.StatusOK || len(body["reservations"].([]any)) != 1 {
		t.Fatalf("list: %d %v", rec.Code, body)
	}
}

func TestSessionRoutes(t *testing.T) {
	router, fake, token := newTestRouter(t)

	rec, body := do(t, router, token, http.MethodPost, "/sessions", `{"EVSEId":"DE*GEF*E1","authentication":{"authToken":"T1"}}`)
	if rec.Code != http.StatusCreated || body["result"] != "Success" {
		t.Fatalf("start: %d %v", rec.Code, body)
	}
	if fake.startIn.Authentication.AuthToken != "T1" {
		t.Fatalf("authentication not mapped: %+v", fake.startIn)
	}
	if rec, _ := do(t, router, token, http.MethodPost, "/sessions", `{"EVSEId":"busy"}`); rec.Code != http.StatusConflict {
		t.Fatalf("busy: %d", rec.Code)
	}

	if rec, body := do(t, router, token, http.MethodGet, "/sessions/S1", ""); rec.Code != http.StatusOK || body["@id"] != "S1" || body["EVSEId"] != "DE*GEF*E1" {
		t.Fatalf("get: %d %v", rec.Code, body)
	}
	if rec, _ := do(t, router, token, http.MethodGet, "/sessions/S9", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: %d", rec.Code)
	}

	rec, body = do(t, router, token, http.MethodPost, "/sessions/S1/stop", `{"reservationHandling":{"keepAliveTime":600}}`)
	if rec.Code != http.StatusOK || body["result"] != "Success" {
		t.Fatalf("stop: %d %v", rec.Code, body)
	}
	if fake.stopIn.ReservationHandling == nil || fake.stopIn.ReservationHandling.KeepAliveTime != 10*time.Minute {
		t.Fatalf("handling not mapped: %+v", fake.stopIn)
	}
	if rec, body := do(t, router, token, http.MethodPost, "/sessions/S9/stop", ""); rec.Code != http.StatusNotFound || body["result"] != "InvalidSessionId" {
		t.Fatalf("stop unknown: %d %v", rec.Code, body)
	}

	rec, _ = do(t, router, token, http.MethodPost, "/sessions/S1/meter-values", `{"energyMeterValues":[{"timestamp":"2024-01-01T10:05:00Z","value":1200}]}`)
	if rec.Code != http.StatusAccepted || len(fake.meterValues) != 1 || fake.meterValues[0].Value != 1200 {
		t.Fatalf("meter values: %d %+v", rec.Code, fake.meterValues)
	}
	if rec, _ := do(t, router, token, http.MethodPost, "/sessions/S9/meter-values", `{"energyMeterValues":[]}`); rec.Code != http.StatusNotFound {
		t.Fatalf("meter values unknown: %d", rec.Code)
	}
}

func TestCDRRoute(t *testing.T) {
	router, fake, token := newTestRouter(t)

	rec, body := do(t, router, token, http.MethodPost, "/sessions/S1/cdr", "")
	if rec.Code != http.StatusAccepted || fake.closed == nil {
		t.Fatalf("cdr from session: %d %v", rec.Code, body)
	}
	if body["sendResult"].(map[string]any)["result"] != "Enqueued" {
		t.Fatalf("unexpected body %v", body)
	}

	if rec, _ := do(t, router, token, http.MethodPost, "/sessions/S1/cdr", `{"sessionId":"S2","sessionStart":"2024-01-01T10:00:00Z"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatch: %d", rec.Code)
	}
	if rec, _ := do(t, router, token, http.MethodPost, "/sessions/S1/cdr", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("garbage: %d", rec.Code)
	}
	if rec, _ := do(t, router, token, http.MethodPost, "/sessions/S9/cdr", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown: %d", rec.Code)
	}
}

func TestWhitelistRoute(t *testing.T) {
	router, fake, token := newTestRouter(t)
	if rec, _ := do(t, router, token, http.MethodPut, "/whitelist", `{"ids":["A","B"]}`); rec.Code != http.StatusOK || len(fake.whitelist) != 2 {
		t.Fatalf("whitelist: %d", rec.Code)
	}
	if rec, body := do(t, router, token, http.MethodPut, "/whitelist", `{"ids":["A","B","C"]}`); rec.Code != http.StatusMultiStatus || len(body["failed"].([]any)) != 1 {
		t.Fatalf("partial whitelist: %d %v", rec.Code, body)
	}
}
