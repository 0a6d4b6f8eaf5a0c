package auditlog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"evroaming/backend/libs/logging"
)

// FileSink appends records as JSON lines.
type FileSink struct {
	logger *zap.Logger
}

// NewFileSink opens path for appending.
func NewFileSink(path string) (*FileSink, error) {
	logger, err := logging.NewFileLogger(path)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	return &FileSink{logger: logger}, nil
}

func (s *FileSink) Write(_ context.Context, rec Record) error {
	fields := []zap.Field{
		zap.Time("recordedAt", rec.Timestamp),
		zap.String("store", rec.Store),
		zap.String("id", rec.ID),
	}
	if rec.Tag != "" {
		fields = append(fields, zap.String("tag", rec.Tag))
	}
	if len(rec.Payload) > 0 {
		fields = append(fields, zap.Reflect("payload", rec.Payload))
	}
	s.logger.Info(rec.Verb, fields...)
	return nil
}

// Close flushes buffered lines.
func (s *FileSink) Close() error {
	return s.logger.Sync()
}
