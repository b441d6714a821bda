package ports

import (
	"github.com/edgebot/edgebot/internal/domain"
)

// MetricsSink observes trades for offline classification. It never
// feeds back into trading decisions and must not block the caller.
type MetricsSink interface {
	// OnEntry is called once when an attempt fills.
	OnEntry(attempt domain.Attempt)

	// OnPrice is called with mid-price samples while a trade is open.
	OnPrice(attemptID string, price float64)

	// OnSettlement is called once when the outcome is realized.
	OnSettlement(settlement domain.Settlement)
}
