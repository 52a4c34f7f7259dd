package ratelimit

import "time"

// ProviderHealth summarizes a provider's recent call outcomes for the
// health endpoint.
type ProviderHealth struct {
	SuccessRate         float64   `json:"success_rate"`
	TotalCalls          int       `json:"total_calls"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	IsHealthy           bool      `json:"is_healthy"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
}

// unhealthyAfter is the consecutive-failure count at which a provider
// stops being reported healthy.
const unhealthyAfter = 3

// HealthReport returns per-provider call statistics. Providers with no
// recorded calls are omitted.
func (l *Limiter) HealthReport() map[string]ProviderHealth {
	l.mu.Lock()
	defer l.mu.Unlock()

	report := map[string]ProviderHealth{}
	for provider, st := range l.stats {
		total := st.successCount + st.failureCount
		rate := 0.0
		if total > 0 {
			rate = float64(st.successCount) / float64(total)
		}
		report[provider] = ProviderHealth{
			SuccessRate:         rate,
			TotalCalls:          total,
			ConsecutiveFailures: st.consecutiveFailures,
			IsHealthy:           st.consecutiveFailures < unhealthyAfter,
			LastSuccess:         st.lastSuccess,
			LastFailure:         st.lastFailure,
		}
	}
	return report
}
