package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/edgebot/edgebot/internal/domain"
)

// Console implements ports.Notifier by printing to stdout.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

func (c *Console) NotifyStart(_ context.Context, sessionID string, balance float64) error {
	fmt.Fprintf(c.out, "[%s] session %s started | balance $%.2f\n",
		stamp(), sessionID, balance)
	return nil
}

func (c *Console) NotifyFill(_ context.Context, a domain.Attempt) error {
	tag := ""
	if a.Degraded {
		tag = " DEGRADED"
	}
	fmt.Fprintf(c.out, "[%s] FILLED%s %s %s @ %.4f x %.2f | slip %.1f bps | retries %d\n",
		stamp(), tag, a.Direction, a.Zone, a.FillPrice, a.FilledSize,
		a.SlippageBps, a.Retries)
	return nil
}

func (c *Console) NotifySettle(_ context.Context, s domain.Settlement, snap domain.RiskSnapshot) error {
	result := "LOSS"
	if s.Won {
		result = "WIN"
	}
	fmt.Fprintf(c.out, "[%s] SETTLED %s %+.2f | cum %+.2f | streak %d\n",
		stamp(), result, s.PnL, s.CumulativePnL, s.ConsecutiveLosses)

	table := tablewriter.NewWriter(c.out)
	table.Header("Trades", "W", "L", "Cum PnL", "Balance", "Degraded", "Kill")
	kill := "-"
	if snap.KillSwitch {
		kill = snap.KillReason
	}
	table.Append(
		fmt.Sprintf("%d", snap.TotalTrades),
		fmt.Sprintf("%d", snap.TotalWins),
		fmt.Sprintf("%d", snap.TotalLosses),
		fmt.Sprintf("$%+.2f", snap.CumulativePnL),
		fmt.Sprintf("$%.2f", snap.Balance),
		fmt.Sprintf("%d", snap.DegradedFills),
		kill,
	)
	table.Render()
	return nil
}

func (c *Console) NotifyKill(_ context.Context, reason string, snap domain.RiskSnapshot) error {
	fmt.Fprintf(c.out, "[%s] KILL-SWITCH: %s | cum %+.2f | no further trades until manual reset\n",
		stamp(), reason, snap.CumulativePnL)
	return nil
}

func (c *Console) NotifyStop(_ context.Context, snap domain.RiskSnapshot) error {
	fmt.Fprintf(c.out, "[%s] stopped | trades %d (%dW/%dL) | final pnl %+.2f | balance $%.2f\n",
		stamp(), snap.TotalTrades, snap.TotalWins, snap.TotalLosses,
		snap.CumulativePnL, snap.Balance)
	return nil
}

func stamp() string {
	return time.Now().Format("15:04:05")
}
