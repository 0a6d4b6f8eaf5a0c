package reservation

import (
	"encoding/json"
	"testing"
	"time"
)

func fixClock(t *testing.T, at time.Time) {
	t.Helper()
	original := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = original })
}

func TestKeepAliveEndsAfterDuration(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fixClock(t, at)

	h := KeepAlive(5 * time.Minute)
	if !h.IsKeepAlive() {
		t.Fatalf("expected keep alive")
	}
	if !h.EndTime.Equal(at.Add(5 * time.Minute)) {
		t.Fatalf("unexpected end time %s", h.EndTime)
	}
}

func TestCloseAndNonPositiveKeepAlive(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fixClock(t, at)

	for name, h := range map[string]Handling{
		"close":    Close(),
		"zero":     KeepAlive(0),
		"negative": KeepAlive(-time.Second),
		"past":     KeepAliveUntil(at.Add(-time.Minute)),
	} {
		if h.IsKeepAlive() {
			t.Fatalf("%s: expected closed handling", name)
		}
		if h.EndTime.After(at) {
			t.Fatalf("%s: end time %s after now", name, h.EndTime)
		}
		if h.KeepAliveTime != 0 {
			t.Fatalf("%s: keep alive time %s", name, h.KeepAliveTime)
		}
	}
}

func TestKeepAliveUntil(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fixClock(t, at)

	h := KeepAliveUntil(at.Add(90 * time.Second))
	if !h.IsKeepAlive() || h.KeepAliveTime != 90*time.Second {
		t.Fatalf("unexpected handling %+v", h)
	}
}

func TestHandlingJSON(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fixClock(t, at)

	data, err := json.Marshal(KeepAlive(2 * time.Minute))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"keepAliveTime":120,"endTime":"2024-01-01T10:02:00Z"}` {
		t.Fatalf("unexpected json %s", data)
	}

	var decoded Handling
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.KeepAliveTime != 2*time.Minute || !decoded.EndTime.Equal(at.Add(2*time.Minute)) {
		t.Fatalf("unexpected decoded handling %+v", decoded)
	}
}

func TestParseHandlingWithoutEndTime(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fixClock(t, at)

	h, err := ParseHandling([]byte(`{"keepAliveTime":30}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !h.EndTime.Equal(at.Add(30 * time.Second)) {
		t.Fatalf("end time not recomputed: %s", h.EndTime)
	}
}

func TestParseHandlingRejectsMalformedInput(t *testing.T) {
	cases := []string{`{"keepAliveTime":-1}`, `{"keepAliveTime":"x"}`, `not json`, `{"endTime":"yesterday"}`}
	for _, c := range cases {
		if _, err := ParseHandling([]byte(c)); err == nil {
			t.Fatalf("expected error for %s", c)
		}
	}
}
