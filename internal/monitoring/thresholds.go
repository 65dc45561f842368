package monitoring

import (
	"fmt"

	"github.com/chainpulse/chainpulse/internal/alerts"
	"github.com/chainpulse/chainpulse/internal/models"
)

const (
	// syncLagFloor is the progress percent below which a syncing node
	// is considered lagging when the endpoint sets no explicit floor.
	syncLagFloor = 95

	// syncGapReference scales the severity of a sync lag: a gap of 5
	// points or less stays low, 10+ points is critical.
	syncGapReference = 5

	// errorRateMinSamples is the minimum history length before the
	// error-rate check has enough signal to fire.
	errorRateMinSamples = 5
)

// ratioSeverity tiers an excess ratio (value over threshold, both
// positive): the further past the threshold, the worse.
func ratioSeverity(r float64) models.AlertSeverity {
	switch {
	case r >= 2:
		return models.SeverityCritical
	case r >= 1.5:
		return models.SeverityHigh
	case r >= 1.2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// shortfallSeverity tiers a deficit ratio (value under threshold):
// the further below, the worse.
func shortfallSeverity(r float64) models.AlertSeverity {
	switch {
	case r <= 0.5:
		return models.SeverityCritical
	case r <= 0.7:
		return models.SeverityHigh
	case r <= 0.9:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// evaluateThresholds runs every independent check against one probe
// result and returns zero-or-one candidate per check. bestBlock is the
// highest block seen this tick across endpoints on the same chain;
// history is the endpoint's bounded sample window including this probe.
func evaluateThresholds(config models.EndpointConfig, result models.HealthCheckResult, history []models.HealthMetric, bestBlock uint64) []alerts.Candidate {
	if !result.IsOnline {
		message := "Endpoint is offline"
		if result.ErrorMessage != "" {
			message = fmt.Sprintf("Endpoint is offline: %s", result.ErrorMessage)
		}
		return []alerts.Candidate{{
			EndpointID: config.ID,
			Type:       models.AlertTypeOffline,
			Severity:   models.SeverityCritical,
			Message:    message,
			Details: map[string]interface{}{
				"error": result.ErrorMessage,
			},
		}}
	}

	var candidates []alerts.Candidate
	thresholds := config.Thresholds

	if t := thresholds.ResponseTimeMs; t > 0 {
		value := float64(result.ResponseTime.Milliseconds())
		if value > t {
			candidates = append(candidates, alerts.Candidate{
				EndpointID: config.ID,
				Type:       models.AlertTypeResponseTime,
				Severity:   ratioSeverity(value / t),
				Message:    fmt.Sprintf("Response time %.0fms exceeds threshold %.0fms", value, t),
				Details: map[string]interface{}{
					"value":     value,
					"threshold": t,
				},
			})
		}
	}

	if t := thresholds.PeerCount; t > 0 {
		value := float64(result.PeerCount)
		if value < t {
			candidates = append(candidates, alerts.Candidate{
				EndpointID: config.ID,
				Type:       models.AlertTypePeerCount,
				Severity:   shortfallSeverity(value / t),
				Message:    fmt.Sprintf("Peer count %d below threshold %.0f", result.PeerCount, t),
				Details: map[string]interface{}{
					"value":     value,
					"threshold": t,
				},
			})
		}
	}

	if floor := syncFloor(thresholds); result.IsSyncing && result.SyncProgress < floor {
		gap := 100 - result.SyncProgress
		candidates = append(candidates, alerts.Candidate{
			EndpointID: config.ID,
			Type:       models.AlertTypeSyncLag,
			Severity:   ratioSeverity(gap / syncGapReference),
			Message:    fmt.Sprintf("Node syncing at %.1f%%, %.1f points behind head", result.SyncProgress, gap),
			Details: map[string]interface{}{
				"progress":     result.SyncProgress,
				"currentBlock": result.CurrentBlock,
				"highestBlock": result.HighestBlock,
			},
		})
	}

	if t := thresholds.BlockLag; t > 0 && bestBlock > result.BlockNumber {
		lag := bestBlock - result.BlockNumber
		if lag > t {
			candidates = append(candidates, alerts.Candidate{
				EndpointID: config.ID,
				Type:       models.AlertTypeBlockLag,
				Severity:   ratioSeverity(float64(lag) / float64(t)),
				Message:    fmt.Sprintf("Endpoint is %d blocks behind the chain head (threshold %d)", lag, t),
				Details: map[string]interface{}{
					"lag":       lag,
					"threshold": t,
					"bestBlock": bestBlock,
				},
			})
		}
	}

	if t := thresholds.ErrorRatePct; t > 0 && len(history) >= errorRateMinSamples {
		rate := errorRate(history)
		if rate > t {
			candidates = append(candidates, alerts.Candidate{
				EndpointID: config.ID,
				Type:       models.AlertTypeErrorRate,
				Severity:   ratioSeverity(rate / t),
				Message:    fmt.Sprintf("Error rate %.1f%% over last %d checks exceeds threshold %.1f%%", rate, len(history), t),
				Details: map[string]interface{}{
					"value":     rate,
					"threshold": t,
					"samples":   len(history),
				},
			})
		}
	}

	return candidates
}

func syncFloor(thresholds models.AlertThresholds) float64 {
	if thresholds.SyncLagPct > 0 {
		return thresholds.SyncLagPct
	}
	return syncLagFloor
}

// errorRate is the percent of failed probes in the sample window.
func errorRate(history []models.HealthMetric) float64 {
	if len(history) == 0 {
		return 0
	}
	failed := 0
	for _, metric := range history {
		if !metric.IsOnline {
			failed++
		}
	}
	return float64(failed) / float64(len(history)) * 100
}
