package polymarket

import (
	"context"
	"fmt"
	"time"

	"github.com/edgebot/edgebot/internal/domain"
)

const gammaEventPath = "/events/slug/"

// EventBySlug fetches the market metadata for one 15-minute event from
// the Gamma API and resolves its Up/Down token IDs.
func (c *Client) EventBySlug(ctx context.Context, slug string) (domain.MarketEvent, error) {
	url := c.gammaBase + gammaEventPath + slug

	var ev gammaEvent
	if err := c.get(ctx, c.gammaLimiter, url, &ev); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("gamma.EventBySlug: %w", err)
	}
	if len(ev.Markets) == 0 {
		return domain.MarketEvent{}, fmt.Errorf("gamma.EventBySlug: no markets for slug %s", slug)
	}

	m := ev.Markets[0]
	up, down, err := parseTokenPair(m.ClobTokenIDs, m.Outcomes)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("gamma.EventBySlug: %w", err)
	}

	endDate, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		// Fall back to the event-level end date
		endDate, err = time.Parse(time.RFC3339, ev.EndDate)
		if err != nil {
			return domain.MarketEvent{}, fmt.Errorf("gamma.EventBySlug: parse endDate: %w", err)
		}
	}

	return domain.MarketEvent{
		Slug:        slug,
		ConditionID: m.ConditionID,
		TokenUp:     up,
		TokenDown:   down,
		EndDate:     endDate,
		MinTickSize: anyToFloat(m.MinTickSize),
		OrderMin:    anyToFloat(m.OrderMinSize),
		NegRisk:     m.NegRisk,
	}, nil
}
