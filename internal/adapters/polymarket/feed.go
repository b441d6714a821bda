package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edgebot/edgebot/internal/domain"
)

const (
	feedHandshakeTimeout = 15 * time.Second
	feedReadDeadline     = 30 * time.Second
	feedPingInterval     = 10 * time.Second
	feedReconnectWait    = 2 * time.Second
	feedMaxReconnectWait = 30 * time.Second
	feedChannelBuffer    = 64
)

// Feed streams top-of-book updates from the CLOB market websocket.
// One Feed serves one subscription; a session rollover means a new
// Subscribe call with the new token IDs.
type Feed struct {
	wsURL string
	log   *slog.Logger

	mu    sync.Mutex
	books map[string]domain.BookTop
}

// NewFeed creates a market data feed. wsURL empty means the public
// CLOB websocket endpoint.
func NewFeed(wsURL string, log *slog.Logger) *Feed {
	if wsURL == "" {
		wsURL = defaultWSBase + "/market"
	}
	return &Feed{
		wsURL: wsURL,
		log:   log.With("component", "feed"),
		books: make(map[string]domain.BookTop),
	}
}

// Subscribe connects, subscribes to the market channel for tokenIDs
// and streams decoded book updates until ctx is cancelled. Reconnects
// with backoff on connection loss; the channel is closed only when ctx
// ends.
func (f *Feed) Subscribe(ctx context.Context, tokenIDs []string) (<-chan domain.BookUpdate, error) {
	if len(tokenIDs) == 0 {
		return nil, fmt.Errorf("feed.Subscribe: no token IDs")
	}

	out := make(chan domain.BookUpdate, feedChannelBuffer)

	go func() {
		defer close(out)
		wait := feedReconnectWait
		for {
			if err := f.run(ctx, tokenIDs, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				f.log.Warn("feed connection lost", "err", err, "retry_in", wait)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait *= 2
			if wait > feedMaxReconnectWait {
				wait = feedMaxReconnectWait
			}
		}
	}()

	return out, nil
}

// run owns a single websocket connection lifetime: dial, subscribe,
// read until error or cancellation.
func (f *Feed) run(ctx context.Context, tokenIDs []string, out chan<- domain.BookUpdate) error {
	dialer := websocket.Dialer{HandshakeTimeout: feedHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{
		"assets_ids": tokenIDs,
		"type":       "market",
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.log.Info("feed subscribed", "tokens", len(tokenIDs))

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go f.pingLoop(ctx, conn)

	for {
		conn.SetReadDeadline(time.Now().Add(feedReadDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		f.dispatch(raw, out)
	}
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				return
			}
		}
	}
}

// Wire message envelopes. The market channel sends book snapshots,
// incremental price changes and trade prints, all tagged by event_type.
type wsEnvelope struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
}

type wsBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wsBookMsg struct {
	AssetID string        `json:"asset_id"`
	Bids    []wsBookLevel `json:"bids"`
	Asks    []wsBookLevel `json:"asks"`
	Buys    []wsBookLevel `json:"buys"`
	Sells   []wsBookLevel `json:"sells"`
}

type wsPriceChangeMsg struct {
	Changes []struct {
		AssetID string `json:"asset_id"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
		Price   string `json:"price"`
		Side    string `json:"side"`
	} `json:"price_changes"`
}

type wsLastTradeMsg struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
}

// dispatch decodes one raw message and emits book updates for any
// token whose top of book changed. Messages may arrive as single
// objects or arrays of objects.
func (f *Feed) dispatch(raw []byte, out chan<- domain.BookUpdate) {
	s := string(raw)
	if s == "PONG" || s == "PING" {
		return
	}

	if len(raw) > 0 && raw[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			f.log.Debug("bad feed batch", "err", err)
			return
		}
		for _, item := range batch {
			f.dispatchOne(item, out)
		}
		return
	}
	f.dispatchOne(raw, out)
}

func (f *Feed) dispatchOne(raw []byte, out chan<- domain.BookUpdate) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		f.log.Debug("bad feed message", "err", err)
		return
	}

	switch env.EventType {
	case "book":
		var msg wsBookMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		f.applyBook(msg, out)
	case "price_change":
		var msg wsPriceChangeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		f.applyPriceChanges(msg, out)
	case "last_trade_price":
		var msg wsLastTradeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		f.applyLastTrade(msg, out)
	case "tick_size_change":
		// tick size handled at order build time
	}
}

// applyBook replaces the full top-of-book state for one token. The CLOB
// sends levels sorted away from the touch; the best level is last on
// the bid side and last on the ask side of the snapshot arrays.
func (f *Feed) applyBook(msg wsBookMsg, out chan<- domain.BookUpdate) {
	bids := msg.Bids
	if len(bids) == 0 {
		bids = msg.Buys
	}
	asks := msg.Asks
	if len(asks) == 0 {
		asks = msg.Sells
	}

	var top domain.BookTop
	if n := len(bids); n > 0 {
		top.BestBid = parseFloat(bids[n-1].Price)
		top.DepthBid = parseFloat(bids[n-1].Size)
	}
	if n := len(asks); n > 0 {
		top.BestAsk = parseFloat(asks[n-1].Price)
		top.DepthAsk = parseFloat(asks[n-1].Size)
	}
	f.commit(msg.AssetID, top, out)
}

func (f *Feed) applyPriceChanges(msg wsPriceChangeMsg, out chan<- domain.BookUpdate) {
	for _, ch := range msg.Changes {
		if ch.AssetID == "" {
			continue
		}
		f.mu.Lock()
		top := f.books[ch.AssetID]
		f.mu.Unlock()

		if p := parseFloat(ch.BestBid); p > 0 {
			top.BestBid = p
		}
		if p := parseFloat(ch.BestAsk); p > 0 {
			top.BestAsk = p
		}
		f.commit(ch.AssetID, top, out)
	}
}

func (f *Feed) applyLastTrade(msg wsLastTradeMsg, out chan<- domain.BookUpdate) {
	if msg.AssetID == "" {
		return
	}
	f.mu.Lock()
	top := f.books[msg.AssetID]
	f.mu.Unlock()
	top.LastTrade = parseFloat(msg.Price)
	f.commit(msg.AssetID, top, out)
}

// commit stores the new book state and emits it. Drops the update if
// the consumer is behind; the next tick supersedes it anyway.
func (f *Feed) commit(tokenID string, top domain.BookTop, out chan<- domain.BookUpdate) {
	top.LastUpdate = time.Now()
	if top.Valid() {
		top.Mid = (top.BestBid + top.BestAsk) / 2
	}

	f.mu.Lock()
	f.books[tokenID] = top
	f.mu.Unlock()

	select {
	case out <- domain.BookUpdate{TokenID: tokenID, Book: top}:
	default:
		f.log.Debug("feed consumer behind, dropping update", "token", tokenID)
	}
}

// Book returns the last known top of book for a token.
func (f *Feed) Book(tokenID string) (domain.BookTop, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	top, ok := f.books[tokenID]
	return top, ok
}
