package ports

import (
	"context"

	"github.com/edgebot/edgebot/internal/domain"
)

// OrderVenue places, cancels, and monitors real orders on the CLOB.
type OrderVenue interface {
	// PlaceOrder signs and submits a limit order.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// GetOrder fetches current fill status for a venue order ID.
	GetOrder(ctx context.Context, venueOrderID string) (domain.VenueOrder, error)

	// CancelOrder cancels a specific order by its venue order ID.
	CancelOrder(ctx context.Context, venueOrderID string) error

	// CancelAll cancels all open orders for this wallet.
	CancelAll(ctx context.Context) error

	// GetBalance returns the available collateral balance on the venue.
	GetBalance(ctx context.Context) (float64, error)
}
