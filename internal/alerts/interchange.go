package alerts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/rs/zerolog/log"
)

// ImportResult reports the outcome of an ImportJSON call.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ExportJSON serializes the alert list (newest first) as the
// interchange format: a JSON array of alert records with RFC3339
// timestamps.
func (e *Engine) ExportJSON(includeResolved bool) ([]byte, error) {
	exported := e.List(ListOptions{IncludeResolved: includeResolved})
	if exported == nil {
		exported = []models.Alert{}
	}
	return json.MarshalIndent(exported, "", "  ")
}

// alertRecord is the strict interchange schema. Pointer fields catch
// missing keys that a plain struct would silently zero.
type alertRecord struct {
	ID           string                 `json:"id"`
	EndpointID   string                 `json:"endpointId"`
	Type         string                 `json:"type"`
	Message      string                 `json:"message"`
	Severity     string                 `json:"severity"`
	Timestamp    string                 `json:"timestamp"`
	Resolved     *bool                  `json:"resolved"`
	ResolvedAt   string                 `json:"resolvedAt,omitempty"`
	ResolvedBy   string                 `json:"resolvedBy,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Acknowledged bool                   `json:"acknowledged,omitempty"`
	AckTime      string                 `json:"ackTime,omitempty"`
	AckUser      string                 `json:"ackUser,omitempty"`
}

// validate checks every required field and converts the record. It
// rejects on the first missing or invalid field rather than coercing.
func (r alertRecord) validate() (models.Alert, error) {
	if r.ID == "" {
		return models.Alert{}, fmt.Errorf("missing id")
	}
	if r.EndpointID == "" {
		return models.Alert{}, fmt.Errorf("missing endpointId")
	}
	if r.Type == "" {
		return models.Alert{}, fmt.Errorf("missing type")
	}
	if r.Message == "" {
		return models.Alert{}, fmt.Errorf("missing message")
	}
	severity := models.AlertSeverity(r.Severity)
	if !models.ValidSeverity(severity) {
		return models.Alert{}, fmt.Errorf("invalid severity %q", r.Severity)
	}
	if r.Resolved == nil {
		return models.Alert{}, fmt.Errorf("missing resolved flag")
	}
	timestamp, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return models.Alert{}, fmt.Errorf("invalid timestamp %q", r.Timestamp)
	}

	alert := models.Alert{
		ID:           r.ID,
		EndpointID:   r.EndpointID,
		Type:         models.AlertType(r.Type),
		Severity:     severity,
		Message:      r.Message,
		Details:      r.Details,
		Timestamp:    timestamp,
		Resolved:     *r.Resolved,
		ResolvedBy:   r.ResolvedBy,
		Acknowledged: r.Acknowledged,
		AckUser:      r.AckUser,
	}
	if r.ResolvedAt != "" {
		resolvedAt, err := time.Parse(time.RFC3339, r.ResolvedAt)
		if err != nil {
			return models.Alert{}, fmt.Errorf("invalid resolvedAt %q", r.ResolvedAt)
		}
		alert.ResolvedAt = &resolvedAt
	}
	if r.AckTime != "" {
		ackTime, err := time.Parse(time.RFC3339, r.AckTime)
		if err != nil {
			return models.Alert{}, fmt.Errorf("invalid ackTime %q", r.AckTime)
		}
		alert.AckTime = &ackTime
	}
	return alert, nil
}

// ImportJSON loads alerts from the interchange format. Records failing
// validation are skipped and counted, never partially applied. With
// merge=true existing IDs win and the combined list is reordered
// newest-first; with merge=false the imported set replaces the list.
func (e *Engine) ImportJSON(data []byte, merge bool) (ImportResult, error) {
	var records []alertRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return ImportResult{}, fmt.Errorf("parse alert import: %w", err)
	}

	var result ImportResult
	imported := make([]*models.Alert, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, record := range records {
		alert, err := record.validate()
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Skipping invalid alert record")
			result.Skipped++
			continue
		}
		if _, dup := seen[alert.ID]; dup {
			result.Skipped++
			continue
		}
		seen[alert.ID] = struct{}{}
		imported = append(imported, &alert)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var combined []*models.Alert
	if merge {
		combined = make([]*models.Alert, 0, len(e.alerts)+len(imported))
		combined = append(combined, e.alerts...)
		for _, alert := range imported {
			if _, exists := e.byID[alert.ID]; exists {
				result.Skipped++
				continue
			}
			combined = append(combined, alert)
			result.Imported++
		}
	} else {
		combined = imported
		result.Imported = len(imported)
	}

	sortNewestFirst(combined)

	e.alerts = combined
	e.byID = make(map[string]*models.Alert, len(combined))
	e.activeByKey = make(map[string]*models.Alert, len(combined))
	for i := len(combined) - 1; i >= 0; i-- {
		alert := combined[i]
		e.byID[alert.ID] = alert
		if !alert.Resolved {
			e.activeByKey[dedupKey(alert.EndpointID, alert.Type)] = alert
		}
	}
	e.truncateLocked()

	log.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Bool("merge", merge).
		Msg("Alert import completed")
	return result, nil
}
