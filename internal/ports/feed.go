package ports

import (
	"context"

	"github.com/edgebot/edgebot/internal/domain"
)

// MarketFeed streams decoded book updates for the tokens of one session.
type MarketFeed interface {
	// Subscribe opens the stream for the given token IDs and delivers
	// updates on the returned channel until ctx is cancelled. The
	// channel is closed when the feed stops.
	Subscribe(ctx context.Context, tokenIDs []string) (<-chan domain.BookUpdate, error)
}
