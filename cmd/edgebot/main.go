package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgebot/edgebot/config"
	"github.com/edgebot/edgebot/internal/adapters/journal"
	"github.com/edgebot/edgebot/internal/adapters/metricsink"
	"github.com/edgebot/edgebot/internal/adapters/notify"
	"github.com/edgebot/edgebot/internal/adapters/polymarket"
	"github.com/edgebot/edgebot/internal/application/engine"
	"github.com/edgebot/edgebot/internal/executor"
	"github.com/edgebot/edgebot/internal/metrics"
	"github.com/edgebot/edgebot/internal/ports"
	"github.com/edgebot/edgebot/internal/regime"
	"github.com/edgebot/edgebot/internal/risk"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	live := flag.Bool("live", false, "enable real order execution (overrides config)")
	resetKill := flag.Bool("reset-kill", false, "clear the persisted kill-switch and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *live {
		cfg.Engine.ExecutionEnabled = true
	}
	setupLogger(cfg.Log)
	log := slog.Default()

	jnl := buildJournal(cfg, log)
	defer jnl.Close()

	state := risk.NewState(cfg.Gate.InitialBalance)
	if snap, ok, err := jnl.LoadRiskState(context.Background()); err != nil {
		log.Warn("could not load persisted risk state", "err", err)
	} else if ok {
		state.Restore(snap)
		log.Info("risk state restored", "pnl", snap.CumulativePnL,
			"kill_switch", snap.KillSwitch, "streak", snap.ConsecutiveLosses)
	}

	gateCfg := gateConfig(cfg)
	gate := risk.NewGate(state, gateCfg, log)

	if *resetKill {
		gate.ResetKillSwitch()
		if err := jnl.SaveRiskState(context.Background(), state.Snapshot()); err != nil {
			log.Error("failed to persist reset", "err", err)
			os.Exit(1)
		}
		log.Info("kill-switch cleared")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)

	var venue ports.OrderVenue = monitorVenue{}
	markets := engine.MarketSource(client)
	if cfg.Engine.ExecutionEnabled {
		pv, err := buildVenue(ctx, cfg, log)
		if err != nil {
			log.Error("failed to set up trading venue", "err", err)
			os.Exit(1)
		}
		venue = pv
		markets = negRiskSource{client: client, venue: pv}

		if bal, err := pv.GetBalance(ctx); err != nil {
			log.Warn("could not fetch venue balance, using configured", "err", err)
		} else {
			state.SetBalance(bal)
			log.Info("venue balance", "usdc", bal)
		}
	}

	tracker := regime.New(regimeConfig(cfg))
	notifier := buildNotifier(cfg, tracker, log)
	sink, err := metricsink.New(cfg.Journal.Metrics, log)
	if err != nil {
		log.Error("failed to open trade metrics sink", "err", err)
		os.Exit(1)
	}
	defer sink.Close()

	recorder := risk.NewRecorder(state, gateCfg, log)
	exec := executor.New(executorConfig(cfg), venue, state, jnl, notifier, sink, log)
	feed := polymarket.NewFeed(cfg.API.WSBase, log)

	eng := engine.New(engine.Config{
		SlugPrefix:         cfg.Engine.SlugPrefix,
		ExecutionEnabled:   cfg.Engine.ExecutionEnabled,
		MaxSpread:          cfg.Engine.MaxSpread,
		ChoppyEdgeModifier: cfg.Engine.ChoppyEdgeModifier,
	}, markets, feed, gate, recorder, state, exec, tracker, jnl, notifier, sink, log)

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, log)
	}
	metrics.SetBalance(state.Balance())
	if active, _ := state.KillSwitch(); active {
		metrics.SetKillSwitch(true)
	}

	log.Info("edgebot starting",
		"config", *configPath,
		"execution_enabled", cfg.Engine.ExecutionEnabled,
		"slug_prefix", cfg.Engine.SlugPrefix,
	)

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("engine exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("edgebot stopped cleanly")
}

func buildVenue(ctx context.Context, cfg *config.Config, log *slog.Logger) (*polymarket.Venue, error) {
	auth, err := polymarket.NewAuthClient(
		cfg.API.CLOBBase, cfg.API.GammaBase,
		cfg.Wallet.PrivateKey, cfg.Wallet.FunderAddress, cfg.Wallet.SignatureType,
	)
	if err != nil {
		return nil, err
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return nil, err
	}
	log.Info("authenticated with CLOB", "address", auth.Address())
	return polymarket.NewVenue(auth, false, log), nil
}

func buildJournal(cfg *config.Config, log *slog.Logger) ports.TradeJournal {
	logfile, err := journal.NewLogfile(cfg.Journal.LogPath)
	if err != nil {
		log.Error("failed to open trade log", "err", err, "path", cfg.Journal.LogPath)
		os.Exit(1)
	}
	db, err := journal.NewSQLite(cfg.Journal.DSN)
	if err != nil {
		log.Error("failed to open journal db", "err", err, "dsn", cfg.Journal.DSN)
		os.Exit(1)
	}
	return journal.NewMulti(logfile, db)
}

func buildNotifier(cfg *config.Config, tracker *regime.Tracker, log *slog.Logger) ports.Notifier {
	console := notify.NewConsole()
	if !cfg.TelegramEnabled() {
		return console
	}
	tg := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, tracker, log)
	return notify.NewMulti(console, tg)
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("metrics listener up", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics listener stopped", "err", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
