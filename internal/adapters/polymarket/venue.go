package polymarket

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/edgebot/edgebot/internal/domain"
)

// Venue implements order placement against the Polymarket CLOB.
// All orders are GTC BUYs; sells never happen, positions resolve at
// market settlement.
type Venue struct {
	auth    *AuthClient
	negRisk bool
	log     *slog.Logger
}

// NewVenue wraps an authenticated client as an order venue. negRisk
// selects the exchange contract the market trades on.
func NewVenue(auth *AuthClient, negRisk bool, log *slog.Logger) *Venue {
	return &Venue{
		auth:    auth,
		negRisk: negRisk,
		log:     log.With("component", "venue"),
	}
}

// SetNegRisk updates the exchange contract selection, needed when the
// tracked market rolls over.
func (v *Venue) SetNegRisk(negRisk bool) {
	v.negRisk = negRisk
}

func (v *Venue) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	signed, err := v.auth.buildSignedOrder(req.TokenID, req.Price, req.Size, v.negRisk)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceOrder: %w", err)
	}

	payload := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          "BUY",
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     v.auth.creds.APIKey,
		OrderType: "GTC",
	}

	var resp clobOrderResponse
	if err := v.auth.doL2(ctx, http.MethodPost, "/order", payload, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceOrder: submit: %w", err)
	}
	if !resp.Success || resp.OrderID == "" {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceOrder: rejected: %s", resp.ErrorMsg)
	}

	v.log.Debug("order placed", "order_id", resp.OrderID, "status", resp.Status,
		"price", req.Price, "size", req.Size)

	return domain.PlacedOrder{VenueOrderID: resp.OrderID, Status: resp.Status}, nil
}

func (v *Venue) GetOrder(ctx context.Context, venueOrderID string) (domain.VenueOrder, error) {
	var o clobOpenOrder
	path := "/data/order/" + venueOrderID
	if err := v.auth.doL2(ctx, http.MethodGet, path, nil, &o); err != nil {
		return domain.VenueOrder{}, fmt.Errorf("polymarket.GetOrder: %w", err)
	}
	return toVenueOrder(o), nil
}

func (v *Venue) CancelOrder(ctx context.Context, venueOrderID string) error {
	path := "/order/" + venueOrderID
	if err := v.auth.doL2(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("polymarket.CancelOrder: %w", err)
	}
	return nil
}

func (v *Venue) CancelAll(ctx context.Context) error {
	if err := v.auth.doL2(ctx, http.MethodDelete, "/orders", nil, nil); err != nil {
		return fmt.Errorf("polymarket.CancelAll: %w", err)
	}
	return nil
}

// GetBalance returns the available USDC collateral via the CLOB
// balance-allowance endpoint.
func (v *Venue) GetBalance(ctx context.Context) (float64, error) {
	var resp clobBalanceResponse
	path := "/balance-allowance?asset_type=COLLATERAL&signature_type=" + fmt.Sprint(int(v.auth.signatureType))
	if err := v.auth.doL2(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("polymarket.GetBalance: %w", err)
	}
	bal, err := parseUSDC(resp.Balance)
	if err != nil {
		return 0, fmt.Errorf("polymarket.GetBalance: %w", err)
	}
	return bal, nil
}
