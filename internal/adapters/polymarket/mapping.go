package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/edgebot/edgebot/internal/domain"
)

// parseStringArray decodes a JSON array that gamma returns embedded in
// a string field, e.g. `"[\"123\", \"456\"]"`.
func parseStringArray(s string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseFloat parses a numeric string from the CLOB API, tolerating
// empty values.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseUSDC converts a micro-USDC integer string to dollars.
func parseUSDC(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty balance string")
	}
	micro, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", s, err)
	}
	return micro / 1e6, nil
}

// toVenueOrder maps a CLOB order record to the domain representation.
// Status strings are normalized to upper case; the CLOB uses LIVE,
// MATCHED, CANCELED and DELAYED.
func toVenueOrder(o clobOpenOrder) domain.VenueOrder {
	return domain.VenueOrder{
		ID:           o.ID,
		Status:       strings.ToUpper(o.Status),
		OriginalSize: parseFloat(o.OriginalSize),
		SizeMatched:  parseFloat(o.SizeMatched),
		Price:        parseFloat(o.Price),
	}
}

// parseTokenPair extracts the Up and Down token IDs from the gamma
// market blob. clobTokenIds and outcomes are JSON arrays encoded as
// strings; the pairing is positional.
func parseTokenPair(tokenIDsJSON, outcomesJSON string) (up, down string, err error) {
	tokens, err := parseStringArray(tokenIDsJSON)
	if err != nil {
		return "", "", fmt.Errorf("parse clobTokenIds: %w", err)
	}
	outcomes, err := parseStringArray(outcomesJSON)
	if err != nil {
		return "", "", fmt.Errorf("parse outcomes: %w", err)
	}
	if len(tokens) != 2 || len(outcomes) != 2 {
		return "", "", fmt.Errorf("expected 2 tokens/outcomes, got %d/%d", len(tokens), len(outcomes))
	}

	for i, outcome := range outcomes {
		switch strings.ToLower(strings.TrimSpace(outcome)) {
		case "up", "yes":
			up = tokens[i]
		case "down", "no":
			down = tokens[i]
		}
	}
	if up == "" || down == "" {
		return "", "", fmt.Errorf("unrecognized outcomes %v", outcomes)
	}
	return up, down, nil
}

// anyToFloat coerces gamma's loosely typed numeric fields (sometimes
// JSON numbers, sometimes strings) to float64.
func anyToFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		return parseFloat(t)
	case nil:
		return 0
	default:
		return 0
	}
}
