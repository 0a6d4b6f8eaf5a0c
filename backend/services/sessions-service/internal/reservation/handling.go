package reservation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var now = func() time.Time { return time.Now().UTC() }

// Handling describes what happens to a reservation after a stop request.
type Handling struct {
	KeepAliveTime time.Duration
	EndTime       time.Time
}

// Close expires the reservation immediately.
func Close() Handling {
	return Handling{EndTime: now()}
}

// KeepAlive keeps the reservation alive for d after now. d <= 0 is Close.
func KeepAlive(d time.Duration) Handling {
	if d <= 0 {
		return Close()
	}
	return Handling{KeepAliveTime: d, EndTime: now().Add(d)}
}

// KeepAliveUntil keeps the reservation alive until an absolute end time.
func KeepAliveUntil(end time.Time) Handling {
	remaining := end.Sub(now())
	if remaining <= 0 {
		return Handling{EndTime: end.UTC()}
	}
	return Handling{KeepAliveTime: remaining, EndTime: end.UTC()}
}

// IsKeepAlive reports whether the reservation is still alive.
func (h Handling) IsKeepAlive() bool {
	return h.EndTime.After(now())
}

func (h Handling) String() string {
	if h.IsKeepAlive() {
		return fmt.Sprintf("KeepAlive until %s", h.EndTime.Format(time.RFC3339))
	}
	return "Close"
}

type handlingJSON struct {
	KeepAliveTime *float64   `json:"keepAliveTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
}

func (h Handling) MarshalJSON() ([]byte, error) {
	secs := h.KeepAliveTime.Seconds()
	end := h.EndTime.UTC()
	return json.Marshal(handlingJSON{KeepAliveTime: &secs, EndTime: &end})
}

func (h *Handling) UnmarshalJSON(data []byte) error {
	parsed, err := ParseHandling(data)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandling decodes {keepAliveTime, endTime}. A missing endTime is
// recomputed relative to now from keepAliveTime.
func ParseHandling(data []byte) (Handling, error) {
	var raw handlingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Handling{}, fmt.Errorf("reservation: decode handling: %w", err)
	}

	var keepAlive time.Duration
	if raw.KeepAliveTime != nil {
		secs := *raw.KeepAliveTime
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return Handling{}, errors.New("reservation: keepAliveTime must be a non-negative number of seconds")
		}
		keepAlive = time.Duration(secs * float64(time.Second))
	}

	if raw.EndTime == nil {
		return KeepAlive(keepAlive), nil
	}
	return Handling{KeepAliveTime: keepAlive, EndTime: raw.EndTime.UTC()}, nil
}
