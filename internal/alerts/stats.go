package alerts

import (
	"time"

	"github.com/chainpulse/chainpulse/internal/models"
)

// Stats summarizes alerts created within a time window.
type Stats struct {
	Total      int                          `json:"total"`
	Active     int                          `json:"active"`
	Resolved   int                          `json:"resolved"`
	BySeverity map[models.AlertSeverity]int `json:"bySeverity"`
	ByType     map[models.AlertType]int     `json:"byType"`
	ByEndpoint map[string]int               `json:"byEndpoint"`
}

// Stats computes counters over alerts created within the last
// windowHours hours.
func (e *Engine) Stats(windowHours int) Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cutoff := e.now().Add(-time.Duration(windowHours) * time.Hour)
	stats := Stats{
		BySeverity: make(map[models.AlertSeverity]int),
		ByType:     make(map[models.AlertType]int),
		ByEndpoint: make(map[string]int),
	}

	for _, alert := range e.alerts {
		if alert.Timestamp.Before(cutoff) {
			continue
		}
		stats.Total++
		if alert.Resolved {
			stats.Resolved++
		} else {
			stats.Active++
		}
		stats.BySeverity[alert.Severity]++
		stats.ByType[alert.Type]++
		stats.ByEndpoint[alert.EndpointID]++
	}
	return stats
}

// TrendBucket is one fixed-width interval of alert activity.
type TrendBucket struct {
	BucketStart time.Time                    `json:"bucketStart"`
	Count       int                          `json:"count"`
	BySeverity  map[models.AlertSeverity]int `json:"bySeverity"`
}

// Trends buckets alert creation times into intervalHours-wide buckets
// covering [now-hours, now). Each alert falls into exactly one bucket.
func (e *Engine) Trends(hours, intervalHours int) []TrendBucket {
	if hours <= 0 || intervalHours <= 0 {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	windowStart := now.Add(-time.Duration(hours) * time.Hour)
	interval := time.Duration(intervalHours) * time.Hour
	bucketCount := hours / intervalHours
	if hours%intervalHours != 0 {
		bucketCount++
	}

	buckets := make([]TrendBucket, bucketCount)
	for i := range buckets {
		buckets[i] = TrendBucket{
			BucketStart: windowStart.Add(time.Duration(i) * interval),
			BySeverity:  make(map[models.AlertSeverity]int),
		}
	}

	for _, alert := range e.alerts {
		if alert.Timestamp.Before(windowStart) || !alert.Timestamp.Before(now) {
			continue
		}
		idx := int(alert.Timestamp.Sub(windowStart) / interval)
		if idx < 0 || idx >= len(buckets) {
			continue
		}
		buckets[idx].Count++
		buckets[idx].BySeverity[alert.Severity]++
	}
	return buckets
}
