package store

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/auditlog"
)

var now = func() time.Time { return time.Now().UTC() }

// journal writes audit records for one store. Callers hold the store lock.
type journal struct {
	store  string
	sink   auditlog.Sink
	logger *zap.Logger
}

func newJournal(store string, sink auditlog.Sink, logger *zap.Logger) journal {
	if sink == nil {
		sink = auditlog.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return journal{store: store, sink: sink, logger: logger}
}

// write records one mutation. The mutation has already happened, so the
// record is written even when the caller's context is cancelled.
func (j journal) write(ctx context.Context, verb, id, tag string, payload any) {
	rec := auditlog.Record{Timestamp: now(), Store: j.store, Verb: verb, ID: id, Tag: tag}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			j.logger.Warn("audit payload encoding failed",
				zap.String("store", j.store), zap.String("verb", verb), zap.String("id", id), zap.Error(err))
		} else {
			rec.Payload = data
		}
	}
	if err := j.sink.Write(context.WithoutCancel(ctx), rec); err != nil {
		j.logger.Warn("audit write failed",
			zap.String("store", j.store), zap.String("verb", verb), zap.String("id", id), zap.Error(err))
	}
}
