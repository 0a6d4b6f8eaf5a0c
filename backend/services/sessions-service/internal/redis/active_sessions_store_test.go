package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"evroaming/backend/services/sessions-service/internal/auditlog"
	"evroaming/backend/services/sessions-service/internal/store"
)

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestStoreMirrorsSessions(t *testing.T) {
	fake := newFakeRedis()
	s := newStore(fake, time.Hour)
	ctx := context.Background()

	rec := auditlog.Record{Store: auditlog.StoreSessions, Verb: store.VerbNew, ID: "S1", Payload: []byte(`{"@id":"S1"}`)}
	if err := s.Write(ctx, rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	if fake.ttls["sessions:active:S1"] != time.Hour {
		t.Fatalf("ttl not applied")
	}

	rec.Verb = store.VerbUpdate
	rec.Payload = []byte(`{"@id":"S1","EVSEId":"E1"}`)
	if err := s.Write(ctx, rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.cached(ctx, "S1")
	if err != nil || string(got) != `{"@id":"S1","EVSEId":"E1"}` {
		t.Fatalf("unexpected cache %s %v", got, err)
	}

	rec.Verb = store.VerbRemove
	if err := s.Write(ctx, rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.cached(ctx, "S1"); !errors.Is(err, errNotCached) {
		t.Fatalf("expected errNotCached, got %v", err)
	}
}

func TestStoreIgnoresOtherStores(t *testing.T) {
	fake := newFakeRedis()
	s := newStore(fake, time.Hour)
	if err := s.Write(context.Background(), auditlog.Record{Store: auditlog.StoreCDRs, Verb: "new", ID: "S1", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(fake.values) != 0 {
		t.Fatalf("cdr records must not be cached")
	}
}

func TestStoreWrapsErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	s := newStore(fake, time.Hour)
	err := s.Write(context.Background(), auditlog.Record{Store: auditlog.StoreSessions, Verb: store.VerbNew, ID: "S1", Payload: []byte(`{}`)})
	if !errors.Is(err, fake.err) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
