package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SessionDuration is the length of one settlement window.
const SessionDuration = 900 * time.Second

// Direction is the side of a binary up/down market.
type Direction string

const (
	DirectionUp   Direction = "Up"
	DirectionDown Direction = "Down"
)

// Zone is a named phase of the settlement countdown. Timeouts and
// admission limits are configured per zone.
type Zone string

const (
	ZoneWaiting  Zone = "WAITING"
	ZoneEarly    Zone = "EARLY"
	ZoneCore     Zone = "CORE"
	ZoneDead     Zone = "DEAD"
	ZoneRecovery Zone = "RECOVERY"
	ZoneLate     Zone = "LATE"
)

// ZoneFor maps elapsed seconds since session start to a zone.
// CORE runs 2:30-3:45, RECOVERY 5:00-5:59.
func ZoneFor(elapsed float64) Zone {
	switch {
	case elapsed < 150:
		return ZoneEarly
	case elapsed <= 225:
		return ZoneCore
	case elapsed < 300:
		return ZoneDead
	case elapsed <= 359:
		return ZoneRecovery
	default:
		return ZoneLate
	}
}

// Tradeable reports whether orders may be admitted in this zone at all.
func (z Zone) Tradeable() bool {
	return z == ZoneCore || z == ZoneRecovery
}

// CurrentSlug derives the active session slug from the wall clock. The
// slug timestamp is the session START, aligned to the window boundary.
func CurrentSlug(prefix string, now time.Time) string {
	aligned := now.Unix() - now.Unix()%int64(SessionDuration.Seconds())
	return fmt.Sprintf("%s-%d", prefix, aligned)
}

// NextSlug derives the slug of the session after the active one.
func NextSlug(prefix string, now time.Time) string {
	aligned := now.Unix() - now.Unix()%int64(SessionDuration.Seconds())
	return fmt.Sprintf("%s-%d", prefix, aligned+int64(SessionDuration.Seconds()))
}

// SlugTimestamp extracts the session start from a slug like
// "btc-updown-15m-1766430000". Returns 0 if the slug has no timestamp.
func SlugTimestamp(slug string) int64 {
	parts := strings.Split(slug, "-")
	if len(parts) < 2 {
		return 0
	}
	ts, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// MarketEvent is the session market metadata fetched at rollover.
type MarketEvent struct {
	Slug        string
	ConditionID string
	TokenUp     string
	TokenDown   string
	EndDate     time.Time
	MinTickSize float64
	OrderMin    float64
	NegRisk     bool
}

// BookUpdate is one decoded feed message: the refreshed top-of-book
// state for a single token.
type BookUpdate struct {
	TokenID string
	Book    BookTop
}

// BookTop is the top-of-book state for one outcome token.
type BookTop struct {
	BestBid    float64
	BestAsk    float64
	Mid        float64
	DepthBid   float64
	DepthAsk   float64
	LastTrade  float64
	LastUpdate time.Time
}

// Valid reports whether both sides of the book are present.
func (b BookTop) Valid() bool {
	return b.BestBid > 0 && b.BestAsk > 0
}

// Spread returns ask minus bid.
func (b BookTop) Spread() float64 {
	return b.BestAsk - b.BestBid
}

// Snapshot is the per-tick session state delivered by the market feed.
// The core never parses wire formats; it consumes these decoded fields.
type Snapshot struct {
	Slug      string
	StartTS   int64
	EndTS     int64
	Tau       float64 // seconds until settlement
	Elapsed   float64 // seconds since session start
	Zone      Zone
	Up        BookTop
	Down      BookTop
	Edge      float64 // favored side's mid price
	Direction Direction
	TokenUp   string
	TokenDown string
	Connected bool
}

// UpdateTiming recomputes tau, elapsed and zone from the wall clock.
func (s *Snapshot) UpdateTiming(now time.Time) {
	s.Tau = float64(s.EndTS) - float64(now.Unix())
	if s.Tau < 0 {
		s.Tau = 0
	}
	s.Elapsed = SessionDuration.Seconds() - s.Tau
	s.Zone = ZoneFor(s.Elapsed)
}

// UpdateEdge recomputes mids and the edge. Edge is the higher of the two
// mid prices: the market's implied probability for the favored side.
func (s *Snapshot) UpdateEdge() {
	if s.Up.Valid() {
		s.Up.Mid = (s.Up.BestBid + s.Up.BestAsk) / 2
	}
	if s.Down.Valid() {
		s.Down.Mid = (s.Down.BestBid + s.Down.BestAsk) / 2
	}

	switch {
	case s.Up.Mid > 0 && s.Down.Mid > 0:
		if s.Up.Mid >= s.Down.Mid {
			s.Edge, s.Direction = s.Up.Mid, DirectionUp
		} else {
			s.Edge, s.Direction = s.Down.Mid, DirectionDown
		}
	case s.Up.Mid > 0:
		s.Edge, s.Direction = s.Up.Mid, DirectionUp
	case s.Down.Mid > 0:
		s.Edge, s.Direction = s.Down.Mid, DirectionDown
	}
}

// FavoredBook returns the book of the current favored direction.
func (s *Snapshot) FavoredBook() BookTop {
	if s.Direction == DirectionDown {
		return s.Down
	}
	return s.Up
}

// FavoredToken returns the token ID of the current favored direction.
func (s *Snapshot) FavoredToken() string {
	if s.Direction == DirectionDown {
		return s.TokenDown
	}
	return s.TokenUp
}

// Signal is a candidate entry that passed the engine's gate pipeline and
// is handed to admission control and execution.
type Signal struct {
	SessionID string
	Zone      Zone
	Direction Direction
	TokenID   string
	Edge      float64
	Bid       float64
	Ask       float64
	Spread    float64
}
