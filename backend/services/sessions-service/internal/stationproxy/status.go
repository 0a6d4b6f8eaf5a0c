package stationproxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/models"
)

// ErrImportInProgress is returned when a status import is already running.
var ErrImportInProgress = errors.New("stationproxy: status import in progress")

// ImportReport counts what one status import did.
type ImportReport struct {
	Received int
	Applied  int
	Unknown  int
}

type evseStatusEntry struct {
	EVSEID    models.EVSEID `json:"EVSEId"`
	Status    string        `json:"status"`
	Timestamp *time.Time    `json:"timestamp"`
}

type evseStatusResponse struct {
	EVSEStatus []evseStatusEntry `json:"EVSEStatus"`
}

// ImportEVSEStatus fetches remote EVSE statuses and applies them to known
// EVSEs. Only one import runs at a time; overlapping calls return
// ErrImportInProgress immediately.
func (p *Proxy) ImportEVSEStatus(ctx context.Context) (ImportReport, error) {
	if !p.importing.CompareAndSwap(false, true) {
		return ImportReport{}, ErrImportInProgress
	}
	defer p.importing.Store(false)

	ex := p.do(ctx, call{
		op:      "ImportEVSEStatus",
		id:      p.cfg.BaseURL,
		method:  http.MethodGet,
		path:    "/EVSEStatus",
		timeout: p.cfg.StatusTimeout,
	})
	if ex.err != nil {
		return ImportReport{}, fmt.Errorf("stationproxy: import status: %w", ex.err)
	}
	if !ex.ok() {
		return ImportReport{}, fmt.Errorf("stationproxy: import status: status %d %s", ex.status, ex.description)
	}

	var resp evseStatusResponse
	if err := decodeJSON(ex.body, &resp); err != nil {
		return ImportReport{}, fmt.Errorf("stationproxy: decode status: %w", err)
	}

	report := ImportReport{Received: len(resp.EVSEStatus)}
	for _, entry := range resp.EVSEStatus {
		ts := now()
		if entry.Timestamp != nil {
			ts = entry.Timestamp.UTC()
		}
		status := models.ParseEVSEStatus(entry.Status)
		if p.statuses == nil || !p.statuses.SetEVSEStatus(entry.EVSEID, status, ts) {
			report.Unknown++
			continue
		}
		report.Applied++
		if p.publisher != nil {
			if err := p.publisher.PublishEVSEStatus(ctx, entry.EVSEID, status, ts); err != nil {
				p.logger.Warn("evse status publish failed", zap.String("evse", string(entry.EVSEID)), zap.Error(err))
			}
		}
	}
	return report, nil
}

// RunStatusImporter imports statuses every StatusInterval until ctx is done.
// A tick that arrives while an import is still running is skipped.
func (p *Proxy) RunStatusImporter(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.StatusInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.importOnce(ctx)
			}()
		}
	}
}

func (p *Proxy) importOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("status import panicked", zap.Any("panic", r))
		}
	}()

	report, err := p.ImportEVSEStatus(ctx)
	switch {
	case errors.Is(err, ErrImportInProgress):
		p.logger.Debug("status import skipped, previous import still running")
	case err != nil:
		p.logger.Warn("status import failed", zap.Error(err))
	default:
		p.logger.Debug("status import finished",
			zap.Int("received", report.Received), zap.Int("applied", report.Applied), zap.Int("unknown", report.Unknown))
	}
}
