// Package alerts owns the in-memory alert list: candidate
// de-duplication, list bounding, resolution and acknowledgement,
// statistics, trend bucketing and JSON interchange.
package alerts

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"
	internalerrors "github.com/chainpulse/chainpulse/internal/errors"
	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxAlerts bounds the alert list; the oldest entries are
	// evicted beyond the cap, resolved or not.
	DefaultMaxAlerts = 1000
	// DefaultDuplicateWindow suppresses repeat candidates of the same
	// (endpoint, type) while an unresolved alert is this recent.
	DefaultDuplicateWindow = 5 * time.Minute

	// AutoResolver is the ResolvedBy attribution for automatic
	// resolution when an endpoint recovers.
	AutoResolver = "auto-resolver"
)

// Candidate is a potential alert produced by threshold evaluation. The
// engine decides whether it becomes a stored alert.
type Candidate struct {
	EndpointID string
	Type       models.AlertType
	Severity   models.AlertSeverity
	Message    string
	Details    map[string]interface{}
}

// AlertCallback is invoked after a candidate is accepted as a new alert.
type AlertCallback func(alert models.Alert)

// ResolvedCallback is invoked after an alert transitions to resolved.
type ResolvedCallback func(alert models.Alert)

// Engine is the sole owner of the alert list. Alerts are kept
// newest-first and referenced by ID; endpoints never own alerts, which
// keeps retention and bounding policy independent of endpoint lifecycle.
type Engine struct {
	mu              sync.RWMutex
	alerts          []*models.Alert // newest first
	byID            map[string]*models.Alert
	activeByKey     map[string]*models.Alert // unresolved alert per (endpoint,type)
	maxAlerts       int
	duplicateWindow time.Duration

	onAlert    AlertCallback
	onResolved ResolvedCallback

	now func() time.Time
}

// NewEngine creates an alert engine with the default bounds.
func NewEngine() *Engine {
	return &Engine{
		byID:            make(map[string]*models.Alert),
		activeByKey:     make(map[string]*models.Alert),
		maxAlerts:       DefaultMaxAlerts,
		duplicateWindow: DefaultDuplicateWindow,
		now:             time.Now,
	}
}

// SetAlertCallback registers the new-alert observer.
func (e *Engine) SetAlertCallback(cb AlertCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAlert = cb
}

// SetResolvedCallback registers the resolution observer.
func (e *Engine) SetResolvedCallback(cb ResolvedCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onResolved = cb
}

func dedupKey(endpointID string, alertType models.AlertType) string {
	return endpointID + "|" + string(alertType)
}

// AddCandidate applies the dedup window and, if the candidate survives,
// stores it as a new alert at the head of the list. It returns the
// stored alert, or nil when the candidate was suppressed or invalid.
func (e *Engine) AddCandidate(candidate Candidate) *models.Alert {
	if candidate.EndpointID == "" || !models.ValidAlertType(candidate.Type) {
		log.Warn().
			Str("endpoint", candidate.EndpointID).
			Str("type", string(candidate.Type)).
			Msg("Dropping malformed alert candidate")
		return nil
	}
	if !models.ValidSeverity(candidate.Severity) {
		candidate.Severity = models.SeverityLow
	}

	e.mu.Lock()

	now := e.now()
	key := dedupKey(candidate.EndpointID, candidate.Type)
	if existing, ok := e.activeByKey[key]; ok {
		if now.Sub(existing.Timestamp) < e.duplicateWindow {
			e.mu.Unlock()
			return nil
		}
	}

	alert := &models.Alert{
		ID:         ulid.Make().String(),
		EndpointID: candidate.EndpointID,
		Type:       candidate.Type,
		Severity:   candidate.Severity,
		Message:    candidate.Message,
		Details:    candidate.Details,
		Timestamp:  now,
	}

	e.alerts = append([]*models.Alert{alert}, e.alerts...)
	e.byID[alert.ID] = alert
	e.activeByKey[key] = alert
	e.truncateLocked()

	cb := e.onAlert
	stored := alert.Clone()
	e.mu.Unlock()

	log.Info().
		Str("alertId", stored.ID).
		Str("endpoint", stored.EndpointID).
		Str("type", string(stored.Type)).
		Str("severity", string(stored.Severity)).
		Msg("Alert raised")

	if cb != nil {
		cb(stored)
	}
	return &stored
}

// truncateLocked enforces the list cap, dropping the oldest entries.
func (e *Engine) truncateLocked() {
	if len(e.alerts) <= e.maxAlerts {
		return
	}
	evicted := e.alerts[e.maxAlerts:]
	e.alerts = e.alerts[:e.maxAlerts]
	for _, alert := range evicted {
		e.removeIndexesLocked(alert)
	}
	log.Debug().Int("evicted", len(evicted)).Msg("Alert list truncated to cap")
}

func (e *Engine) removeIndexesLocked(alert *models.Alert) {
	delete(e.byID, alert.ID)
	key := dedupKey(alert.EndpointID, alert.Type)
	if current, ok := e.activeByKey[key]; ok && current == alert {
		delete(e.activeByKey, key)
	}
}

// Resolve marks the alert resolved. It returns false when the alert is
// unknown or already resolved; resolving twice is a harmless no-op.
func (e *Engine) Resolve(id, resolvedBy string) bool {
	e.mu.Lock()

	alert, ok := e.byID[id]
	if !ok || alert.Resolved {
		e.mu.Unlock()
		return false
	}

	now := e.now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.ResolvedBy = resolvedBy

	key := dedupKey(alert.EndpointID, alert.Type)
	if current, ok := e.activeByKey[key]; ok && current == alert {
		delete(e.activeByKey, key)
	}

	cb := e.onResolved
	resolved := alert.Clone()
	e.mu.Unlock()

	log.Info().
		Str("alertId", resolved.ID).
		Str("endpoint", resolved.EndpointID).
		Str("resolvedBy", resolvedBy).
		Msg("Alert resolved")

	if cb != nil {
		cb(resolved)
	}
	return true
}

// AutoResolve bulk-resolves the endpoint's unresolved alerts of the
// given types, attributed to the auto-resolver. Used when an endpoint
// comes back online or finishes syncing.
func (e *Engine) AutoResolve(endpointID string, types ...models.AlertType) int {
	wanted := make(map[models.AlertType]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}

	e.mu.RLock()
	var ids []string
	for _, alert := range e.alerts {
		if alert.Resolved || alert.EndpointID != endpointID {
			continue
		}
		if _, ok := wanted[alert.Type]; ok {
			ids = append(ids, alert.ID)
		}
	}
	e.mu.RUnlock()

	count := 0
	for _, id := range ids {
		if e.Resolve(id, AutoResolver) {
			count++
		}
	}
	return count
}

// BulkResolve resolves each listed alert and returns how many actually
// transitioned.
func (e *Engine) BulkResolve(ids []string, resolvedBy string) int {
	count := 0
	for _, id := range ids {
		if e.Resolve(id, resolvedBy) {
			count++
		}
	}
	return count
}

// Acknowledge marks an alert acknowledged with user attribution.
func (e *Engine) Acknowledge(id, user string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("alert %s: %w", id, internalerrors.ErrNotFound)
	}
	if alert.Acknowledged {
		return nil
	}
	now := e.now()
	alert.Acknowledged = true
	alert.AckTime = &now
	alert.AckUser = user
	return nil
}

// Unacknowledge clears an alert's acknowledgement.
func (e *Engine) Unacknowledge(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("alert %s: %w", id, internalerrors.ErrNotFound)
	}
	alert.Acknowledged = false
	alert.AckTime = nil
	alert.AckUser = ""
	return nil
}

// ListOptions filters the alert query surface. EndpointID may contain
// wildcards (e.g. "eth-*").
type ListOptions struct {
	IncludeResolved bool
	EndpointID      string
	Type            models.AlertType
	Severity        models.AlertSeverity
	Limit           int
	Offset          int
}

// List returns matching alerts, newest first.
func (e *Engine) List(opts ListOptions) []models.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	matched := make([]models.Alert, 0, len(e.alerts))
	for _, alert := range e.alerts {
		if !opts.IncludeResolved && alert.Resolved {
			continue
		}
		if opts.EndpointID != "" && !matchEndpoint(opts.EndpointID, alert.EndpointID) {
			continue
		}
		if opts.Type != "" && alert.Type != opts.Type {
			continue
		}
		if opts.Severity != "" && alert.Severity != opts.Severity {
			continue
		}
		matched = append(matched, alert.Clone())
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched
}

// Active returns unresolved alerts, optionally filtered by endpoint
// pattern.
func (e *Engine) Active(endpointID string) []models.Alert {
	return e.List(ListOptions{EndpointID: endpointID})
}

// BySeverity returns alerts of one severity.
func (e *Engine) BySeverity(severity models.AlertSeverity, includeResolved bool) []models.Alert {
	return e.List(ListOptions{IncludeResolved: includeResolved, Severity: severity})
}

// MostRecent returns the endpoint's most recently created alert.
func (e *Engine) MostRecent(endpointID string) (models.Alert, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, alert := range e.alerts {
		if alert.EndpointID == endpointID {
			return alert.Clone(), true
		}
	}
	return models.Alert{}, false
}

// ActiveCount returns the number of unresolved alerts.
func (e *Engine) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	count := 0
	for _, alert := range e.alerts {
		if !alert.Resolved {
			count++
		}
	}
	return count
}

// ClearOlderThan removes alerts that are both resolved and older than
// maxAge. Unresolved alerts are never removed here regardless of age.
func (e *Engine) ClearOlderThan(maxAge time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-maxAge)
	kept := e.alerts[:0]
	removed := 0
	for _, alert := range e.alerts {
		if alert.Resolved && alert.Timestamp.Before(cutoff) {
			e.removeIndexesLocked(alert)
			removed++
			continue
		}
		kept = append(kept, alert)
	}
	e.alerts = kept

	if removed > 0 {
		log.Info().Int("removed", removed).Dur("maxAge", maxAge).Msg("Cleared old resolved alerts")
	}
	return removed
}

func matchEndpoint(pattern, endpointID string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return pattern == endpointID
	}
	return wildcard.Match(pattern, endpointID)
}

// sortNewestFirst orders alerts by creation time descending, ID as the
// tie-breaker so ordering is deterministic.
func sortNewestFirst(alerts []*models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Timestamp.Equal(alerts[j].Timestamp) {
			return alerts[i].ID > alerts[j].ID
		}
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
}
