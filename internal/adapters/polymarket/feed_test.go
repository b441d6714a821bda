package polymarket

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgebot/edgebot/internal/domain"
)

func newTestFeed() *Feed {
	return NewFeed("", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func drain(ch chan domain.BookUpdate) []domain.BookUpdate {
	var out []domain.BookUpdate
	for {
		select {
		case u := <-ch:
			out = append(out, u)
		default:
			return out
		}
	}
}

func TestFeedBookSnapshot(t *testing.T) {
	f := newTestFeed()
	out := make(chan domain.BookUpdate, 8)

	raw := []byte(`{
		"event_type": "book",
		"asset_id": "111",
		"bids": [{"price": "0.50", "size": "200"}, {"price": "0.63", "size": "120"}],
		"asks": [{"price": "0.70", "size": "300"}, {"price": "0.64", "size": "90"}]
	}`)
	f.dispatch(raw, out)

	updates := drain(out)
	require.Len(t, updates, 1)
	u := updates[0]
	assert.Equal(t, "111", u.TokenID)
	assert.InDelta(t, 0.63, u.Book.BestBid, 1e-9)
	assert.InDelta(t, 0.64, u.Book.BestAsk, 1e-9)
	assert.InDelta(t, 0.635, u.Book.Mid, 1e-9)
	assert.InDelta(t, 120, u.Book.DepthBid, 1e-9)
	assert.InDelta(t, 90, u.Book.DepthAsk, 1e-9)
	assert.True(t, u.Book.Valid())

	cached, ok := f.Book("111")
	require.True(t, ok)
	assert.InDelta(t, 0.64, cached.BestAsk, 1e-9)
}

func TestFeedPriceChangeUpdatesCachedBook(t *testing.T) {
	f := newTestFeed()
	out := make(chan domain.BookUpdate, 8)

	f.dispatch([]byte(`{
		"event_type": "book",
		"asset_id": "111",
		"bids": [{"price": "0.63", "size": "100"}],
		"asks": [{"price": "0.64", "size": "100"}]
	}`), out)
	drain(out)

	f.dispatch([]byte(`{
		"event_type": "price_change",
		"price_changes": [
			{"asset_id": "111", "best_bid": "0.64", "best_ask": "0.65"},
			{"asset_id": "222", "best_bid": "0.35", "best_ask": "0.36"}
		]
	}`), out)

	updates := drain(out)
	require.Len(t, updates, 2)
	assert.Equal(t, "111", updates[0].TokenID)
	assert.InDelta(t, 0.64, updates[0].Book.BestBid, 1e-9)
	assert.InDelta(t, 0.65, updates[0].Book.BestAsk, 1e-9)
	assert.Equal(t, "222", updates[1].TokenID)
	assert.InDelta(t, 0.355, updates[1].Book.Mid, 1e-9)
}

func TestFeedLastTradeKeepsBookSides(t *testing.T) {
	f := newTestFeed()
	out := make(chan domain.BookUpdate, 8)

	f.dispatch([]byte(`{
		"event_type": "book",
		"asset_id": "111",
		"bids": [{"price": "0.63", "size": "100"}],
		"asks": [{"price": "0.64", "size": "100"}]
	}`), out)
	drain(out)

	f.dispatch([]byte(`{"event_type": "last_trade_price", "asset_id": "111", "price": "0.638"}`), out)

	updates := drain(out)
	require.Len(t, updates, 1)
	assert.InDelta(t, 0.638, updates[0].Book.LastTrade, 1e-9)
	assert.InDelta(t, 0.63, updates[0].Book.BestBid, 1e-9)
	assert.InDelta(t, 0.64, updates[0].Book.BestAsk, 1e-9)
}

func TestFeedBatchedMessages(t *testing.T) {
	f := newTestFeed()
	out := make(chan domain.BookUpdate, 8)

	f.dispatch([]byte(`[
		{"event_type": "book", "asset_id": "111",
		 "bids": [{"price": "0.63", "size": "10"}], "asks": [{"price": "0.64", "size": "10"}]},
		{"event_type": "book", "asset_id": "222",
		 "bids": [{"price": "0.35", "size": "10"}], "asks": [{"price": "0.37", "size": "10"}]}
	]`), out)

	updates := drain(out)
	require.Len(t, updates, 2)
	assert.Equal(t, "111", updates[0].TokenID)
	assert.Equal(t, "222", updates[1].TokenID)
}

func TestFeedIgnoresNoise(t *testing.T) {
	f := newTestFeed()
	out := make(chan domain.BookUpdate, 8)

	f.dispatch([]byte("PONG"), out)
	f.dispatch([]byte("not json"), out)
	f.dispatch([]byte(`{"event_type": "tick_size_change", "asset_id": "111"}`), out)

	assert.Empty(t, drain(out))
}
