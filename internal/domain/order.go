package domain

import "time"

// OrderStatus represents the lifecycle of one order attempt.
// Pending and Submitted are transient; the rest are terminal.
// PartiallyFilled is transient: it resolves to Filled (remainder
// cancelled and the filled portion booked) or Cancelled (timeout).
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIAL"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusFailed          OrderStatus = "FAILED"
)

// transitions is the full transition table of the attempt state machine.
// Anything not listed here is an illegal transition.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:         {StatusSubmitted, StatusFailed},
	StatusSubmitted:       {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusFailed},
	StatusPartiallyFilled: {StatusFilled, StatusCancelled, StatusFailed},
}

// Terminal reports whether the status ends the attempt.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusFailed
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Attempt is one submission cycle for one signal. It is owned
// exclusively by the execution routine processing it and is discarded
// once its terminal status has been reported and journaled.
type Attempt struct {
	ID           string // local UUID
	VenueOrderID string
	SessionID    string
	Direction    Direction
	Zone         Zone
	AskPrice     float64 // requested price
	Size         float64 // requested shares (cash / price)
	FilledSize   float64
	FillPrice    float64
	SlippageBps  float64
	Status       OrderStatus
	Degraded     bool
	Retries      int
	SubmitAt     time.Time
	FillAt       *time.Time
	Latency      time.Duration
	Error        string
}

// Advance moves the attempt to the next status, enforcing the
// transition table. Illegal moves are ignored and reported false, so a
// terminal status can never be overwritten.
func (a *Attempt) Advance(to OrderStatus) bool {
	if !CanTransition(a.Status, to) {
		return false
	}
	a.Status = to
	return true
}

// Cost returns the cash spent on the fill.
func (a *Attempt) Cost() float64 {
	return a.FillPrice * a.FilledSize
}

// Settlement is the realized outcome of one attempt, produced at
// session rollover and fed to the outcome recorder.
type Settlement struct {
	AttemptID         string
	SessionID         string
	Direction         Direction
	Won               bool
	PnL               float64
	CumulativePnL     float64
	ConsecutiveLosses int
	Reason            string
}

// PlaceOrderRequest is sent to the order venue.
type PlaceOrderRequest struct {
	TokenID string
	Price   float64
	Size    float64 // shares
}

// PlacedOrder is the venue's acknowledgment of a submission.
type PlacedOrder struct {
	VenueOrderID string
	Status       string
}

// VenueOrder is the venue-side view of an order, returned by polling.
type VenueOrder struct {
	ID           string
	Status       string // venue status string, e.g. "LIVE", "MATCHED", "CANCELED"
	OriginalSize float64
	SizeMatched  float64
	Price        float64
}

// RiskSnapshot is the persistable view of the session risk state.
// The journal stores it after every mutation so a restart cannot
// silently clear a tripped kill switch.
type RiskSnapshot struct {
	Balance           float64
	CumulativePnL     float64
	ConsecutiveLosses int
	DegradedFills     int
	KillSwitch        bool
	KillReason        string
	TotalTrades       int
	TotalWins         int
	TotalLosses       int
	LastTradeAt       time.Time
	SessionID         string
	UpdatedAt         time.Time
}
