package stationproxy

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Per-entry statuses reported by the backend for whitelist batches.
const (
	EntryCreated           = "CREATED"
	EntryExistedUpdated    = "EXISTED_UPDATED"
	EntryExistedNotUpdated = "EXISTED_NOT_UPDATED"
	EntryNotFound          = "NOT_FOUND"
	EntryError             = "ERROR"
)

// Whitelist operations.
const (
	OpInsert = "insert"
	OpRemove = "remove"
)

// WhitelistFailure is an entry the backend did not accept.
type WhitelistFailure struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
}

// WhitelistResult summarises a reconciliation.
type WhitelistResult struct {
	Removed  []string           `json:"removed,omitempty"`
	Inserted []string           `json:"inserted,omitempty"`
	Failed   []WhitelistFailure `json:"failed,omitempty"`
	Runtime  time.Duration      `json:"-"`
}

// OK reports whether every scheduled change was accepted.
func (r WhitelistResult) OK() bool { return len(r.Failed) == 0 }

type whitelistEntry struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

type whitelistBatch struct {
	Entries []whitelistEntry `json:"entries"`
}

// Whitelist returns the locally known whitelist in sorted order.
func (p *Proxy) Whitelist() []string {
	p.whitelistMu.Lock()
	defer p.whitelistMu.Unlock()
	return p.sortedWhitelistLocked()
}

// SetWhitelist replaces the local whitelist without contacting the backend.
func (p *Proxy) SetWhitelist(ids []string) {
	p.whitelistMu.Lock()
	defer p.whitelistMu.Unlock()
	p.whitelist = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			p.whitelist[id] = struct{}{}
		}
	}
}

func (p *Proxy) sortedWhitelistLocked() []string {
	out := make([]string, 0, len(p.whitelist))
	for id := range p.whitelist {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LoadWhitelist replaces the local whitelist with the backend's list.
func (p *Proxy) LoadWhitelist(ctx context.Context) error {
	p.whitelistMu.Lock()
	defer p.whitelistMu.Unlock()

	ex := p.do(ctx, call{
		op:      "LoadWhitelist",
		id:      p.cfg.AuthListID,
		method:  http.MethodGet,
		path:    "/AuthLists/" + escape(p.cfg.AuthListID),
		timeout: p.cfg.WhitelistTimeout,
	})
	if ex.err != nil {
		return fmt.Errorf("stationproxy: load whitelist: %w", ex.err)
	}
	if !ex.ok() {
		return fmt.Errorf("stationproxy: load whitelist: status %d %s", ex.status, ex.description)
	}
	var batch whitelistBatch
	if err := decodeJSON(ex.body, &batch); err != nil {
		return fmt.Errorf("stationproxy: decode whitelist: %w", err)
	}
	p.whitelist = make(map[string]struct{}, len(batch.Entries))
	for _, e := range batch.Entries {
		if e.ID != "" {
			p.whitelist[e.ID] = struct{}{}
		}
	}
	return nil
}

// ReplaceWhitelist makes the backend whitelist equal target. Entries only
// known locally are removed in one batch, then entries only in target are
// inserted in a second batch. The local list follows the backend's per-entry
// answers; failed entries are returned ordered by id.
//
// The list lock is held for the whole replacement, across both backend
// calls, so concurrent whitelist reads and updates wait for it to finish.
// Each call is bounded by Config.WhitelistTimeout.
func (p *Proxy) ReplaceWhitelist(ctx context.Context, target []string) WhitelistResult {
	p.whitelistMu.Lock()
	defer p.whitelistMu.Unlock()

	started := time.Now()
	wanted := make(map[string]struct{}, len(target))
	for _, id := range target {
		if id != "" {
			wanted[id] = struct{}{}
		}
	}

	var toRemove, toInsert []string
	for id := range p.whitelist {
		if _, ok := wanted[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	for id := range wanted {
		if _, ok := p.whitelist[id]; !ok {
			toInsert = append(toInsert, id)
		}
	}
	sort.Strings(toRemove)
	sort.Strings(toInsert)

	var result WhitelistResult
	if len(toRemove) > 0 {
		statuses := p.whitelistBatch(ctx, OpRemove, http.MethodDelete, toRemove)
		for _, id := range toRemove {
			switch status := statuses[id]; status {
			case EntryExistedUpdated, EntryExistedNotUpdated:
				delete(p.whitelist, id)
				result.Removed = append(result.Removed, id)
			case EntryNotFound:
				// Gone remotely, so it must not stay locally either.
				delete(p.whitelist, id)
				result.Failed = append(result.Failed, WhitelistFailure{ID: id, Operation: OpRemove, Status: status})
			default:
				result.Failed = append(result.Failed, WhitelistFailure{ID: id, Operation: OpRemove, Status: EntryError})
			}
		}
	}
	if len(toInsert) > 0 {
		statuses := p.whitelistBatch(ctx, OpInsert, http.MethodPost, toInsert)
		for _, id := range toInsert {
			switch status := statuses[id]; status {
			case EntryCreated, EntryExistedUpdated, EntryExistedNotUpdated:
				p.whitelist[id] = struct{}{}
				result.Inserted = append(result.Inserted, id)
			default:
				if status == "" {
					status = EntryError
				}
				result.Failed = append(result.Failed, WhitelistFailure{ID: id, Operation: OpInsert, Status: status})
			}
		}
	}

	sort.SliceStable(result.Failed, func(i, j int) bool { return result.Failed[i].ID < result.Failed[j].ID })
	result.Runtime = time.Since(started)
	if len(result.Failed) > 0 {
		p.logger.Warn("whitelist entries rejected", zap.Int("failed", len(result.Failed)), zap.String("authList", p.cfg.AuthListID))
	}
	return result
}

// whitelistBatch sends one batch and returns per-entry statuses. A failed
// call yields no statuses, so every entry counts as an error.
func (p *Proxy) whitelistBatch(ctx context.Context, op, method string, ids []string) map[string]string {
	c := call{
		op:      "Whitelist." + op,
		id:      p.cfg.AuthListID,
		method:  method,
		path:    "/AuthLists/" + escape(p.cfg.AuthListID),
		timeout: p.cfg.WhitelistTimeout,
	}
	if method == http.MethodDelete {
		c.query = map[string][]string{"id": ids}
	} else {
		entries := make([]whitelistEntry, 0, len(ids))
		for _, id := range ids {
			entries = append(entries, whitelistEntry{ID: id})
		}
		c.body = whitelistBatch{Entries: entries}
	}

	ex := p.do(ctx, c)
	statuses := make(map[string]string, len(ids))
	if ex.err != nil || !ex.ok() {
		return statuses
	}
	var batch whitelistBatch
	if err := decodeJSON(ex.body, &batch); err != nil {
		p.logger.Warn("whitelist response not understood", zap.String("op", op), zap.Error(err))
		return statuses
	}
	for _, e := range batch.Entries {
		statuses[e.ID] = e.Status
	}
	return statuses
}
