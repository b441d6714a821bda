package main

import (
	"context"
	"errors"
	"time"

	"github.com/edgebot/edgebot/config"
	"github.com/edgebot/edgebot/internal/adapters/polymarket"
	"github.com/edgebot/edgebot/internal/domain"
	"github.com/edgebot/edgebot/internal/executor"
	"github.com/edgebot/edgebot/internal/regime"
	"github.com/edgebot/edgebot/internal/risk"
)

// monitorVenue backs the executor when execution is disabled. The
// engine never routes signals to the executor in that mode, so any call
// here indicates a wiring bug.
type monitorVenue struct{}

var errExecutionDisabled = errors.New("order execution is disabled")

func (monitorVenue) PlaceOrder(context.Context, domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	return domain.PlacedOrder{}, errExecutionDisabled
}

func (monitorVenue) GetOrder(context.Context, string) (domain.VenueOrder, error) {
	return domain.VenueOrder{}, errExecutionDisabled
}

func (monitorVenue) CancelOrder(context.Context, string) error { return errExecutionDisabled }
func (monitorVenue) CancelAll(context.Context) error           { return errExecutionDisabled }
func (monitorVenue) GetBalance(context.Context) (float64, error) {
	return 0, errExecutionDisabled
}

// negRiskSource forwards market lookups and keeps the venue's exchange
// contract selection in sync with the active market.
type negRiskSource struct {
	client *polymarket.Client
	venue  *polymarket.Venue
}

func (s negRiskSource) EventBySlug(ctx context.Context, slug string) (domain.MarketEvent, error) {
	ev, err := s.client.EventBySlug(ctx, slug)
	if err != nil {
		return domain.MarketEvent{}, err
	}
	s.venue.SetNegRisk(ev.NegRisk)
	return ev, nil
}

func gateConfig(cfg *config.Config) risk.Config {
	return risk.Config{
		CashPerTrade:         cfg.Executor.CashPerTrade,
		EdgeThreshold:        cfg.Gate.EdgeThreshold,
		SafetyCap:            cfg.Gate.SafetyCap,
		MaxTradesPerZone:     cfg.Gate.MaxTradesPerZone,
		Cooldown:             cfg.Cooldown(),
		MaxConsecutiveLosses: cfg.Gate.MaxConsecutiveLosses,
		PnLFloor:             cfg.Gate.PnLFloor,
		DegradedKillCount:    cfg.Executor.DegradedKillCount,
	}
}

func executorConfig(cfg *config.Config) executor.Config {
	return executor.Config{
		CashPerTrade:         cfg.Executor.CashPerTrade,
		CoreTimeout:          time.Duration(cfg.Executor.CoreTimeoutMs) * time.Millisecond,
		RecoveryTimeout:      time.Duration(cfg.Executor.RecoveryTimeoutMs) * time.Millisecond,
		PollInterval:         time.Duration(cfg.Executor.PollIntervalMs) * time.Millisecond,
		MaxRetries:           cfg.Executor.MaxRetries,
		RetryDelay:           time.Duration(cfg.Executor.RetryDelayMs) * time.Millisecond,
		DegradedThresholdBps: cfg.Executor.DegradedThresholdBps,
		DegradedKillCount:    cfg.Executor.DegradedKillCount,
		PartialMinRemaining:  cfg.Executor.PartialMinRemaining,
		EdgeThreshold:        cfg.Gate.EdgeThreshold,
		SafetyCap:            cfg.Gate.SafetyCap,
		MaxAskDrift:          cfg.Executor.MaxAskDrift,
		RebaseSlippage:       cfg.Executor.RebaseSlippage,
	}
}

func regimeConfig(cfg *config.Config) regime.Config {
	return regime.Config{
		Window:        time.Duration(cfg.Regime.WindowSeconds) * time.Second,
		MinInterval:   time.Duration(cfg.Regime.MinIntervalSeconds) * time.Second,
		MoveThreshold: cfg.Regime.MoveThreshold,
		MinSamples:    cfg.Regime.MinSamples,
		ChoppyMin:     cfg.Regime.ChoppyMin,
		StableMax:     cfg.Regime.StableMax,
		DeadZonePct:   cfg.Regime.DeadZonePct,
	}
}
