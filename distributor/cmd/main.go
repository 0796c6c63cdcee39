package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xla-labs/waterfall-hub/distributor/config"
	"github.com/xla-labs/waterfall-hub/distributor/engine"
	"github.com/xla-labs/waterfall-hub/distributor/factory"
	"github.com/xla-labs/waterfall-hub/distributor/hub"
	"github.com/xla-labs/waterfall-hub/distributor/ledger"
	"github.com/xla-labs/waterfall-hub/distributor/oracle"
	"github.com/xla-labs/waterfall-hub/distributor/rpc"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

func main() {
	configPath := flag.String("config", "./distributor-config.toml", "deployment config file")
	flag.Parse()

	log.Info().Str("config", *configPath).Msg("Starting waterfall hub")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	maxAge, err := cfg.Oracle.MaxAge()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse oracle max price age")
	}

	feeds, err := buildFeeds(&cfg.Oracle)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build price feeds")
	}
	log.Info().Int("count", len(feeds)).Msg("Price feeds configured")

	l := ledger.New()
	platformOwner := engine.Address(cfg.Platform.Owner)
	f := factory.New(platformOwner, l)
	if cfg.Platform.Wallet != "" {
		if err := f.SetPlatformWallet(platformOwner, engine.Address(cfg.Platform.Wallet)); err != nil {
			log.Fatal().Err(err).Msg("Failed to set platform wallet")
		}
	}
	if cfg.Platform.Fee > 0 {
		if err := f.SetPlatformFee(platformOwner, cfg.Platform.Fee); err != nil {
			log.Fatal().Err(err).Msg("Failed to set platform fee")
		}
	}

	h := hub.New(l, f)

	if err := applyGenesis(h, cfg.Genesis); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply genesis accounts")
	}

	svc := rpc.NewService(h, feeds, maxAge)
	serverConfig := buildServerConfig(&cfg.Server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := rpc.NewServer(ctx, serverConfig, svc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// buildFeeds constructs the named price feeds: static prices become fixed
// feeds, everything else queries the oracle endpoint.
func buildFeeds(cfg *config.OracleConfig) (map[string]oracle.PriceFeed, error) {
	feeds := make(map[string]oracle.PriceFeed, len(cfg.Feeds))
	for _, fc := range cfg.Feeds {
		if fc.StaticPrice != "" {
			price, err := decimal.NewFromString(fc.StaticPrice)
			if err != nil {
				log.Error().Str("symbol", fc.Symbol).Err(err).Msg("Invalid static price")
				return nil, err
			}
			fixed := price.Shift(int32(fc.Decimals)).Truncate(0).BigInt()
			feeds[fc.Symbol] = oracle.NewFixedFeed(fc.Symbol, fixed, fc.Decimals)
			continue
		}

		feed, err := oracle.NewHTTPFeed(cfg.Endpoint, fc.Symbol, fc.Decimals)
		if err != nil {
			log.Error().Str("symbol", fc.Symbol).Err(err).Msg("Failed to build HTTP feed")
			return nil, err
		}
		feeds[fc.Symbol] = feed
	}
	return feeds, nil
}

// applyGenesis pre-funds the configured accounts.
func applyGenesis(h *hub.Hub, accounts []config.GenesisAccount) error {
	for _, acc := range accounts {
		balance, ok := new(big.Int).SetString(acc.Balance, 10)
		if !ok {
			log.Error().Str("address", acc.Address).Str("balance", acc.Balance).Msg("Invalid genesis balance")
			continue
		}
		addr := engine.Address(acc.Address)

		var err error
		if acc.Token == "" {
			err = h.MintNative(addr, balance)
		} else {
			err = h.MintToken(engine.Address(acc.Token), addr, balance)
		}
		if err != nil {
			return err
		}
		log.Info().Str("address", acc.Address).Str("balance", acc.Balance).Msg("Genesis account funded")
	}
	return nil
}

// buildServerConfig converts the loaded ServerConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.ServerConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        cfg.Address(),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.UsePrometheus,
	}

	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.MaxConcurrentRequests = &cfg.MaxConcurrentRequests
	}

	if cfg.EnableTracing || cfg.EnableMetrics || cfg.UsePrometheus {
		serverConfig.OTelConfig = &rpc.OTelConfig{
			ServiceName:    defaultString(cfg.ServiceName, "waterfall-hub"),
			ServiceVersion: defaultString(cfg.ServiceVersion, "1.0.0"),
			Environment:    defaultString(cfg.Environment, "development"),
			EnableTracing:  cfg.EnableTracing,
			UseOTLPTraces:  cfg.UseOTLPTraces,
			OTLPTracesURL:  cfg.OTLPTracesURL,
			EnableMetrics:  cfg.EnableMetrics,
			UsePrometheus:  cfg.UsePrometheus,
			UseOTLPMetrics: cfg.UseOTLPMetrics,
			OTLPMetricsURL: cfg.OTLPMetricsURL,
			InsecureOTLP:   cfg.InsecureOTLP,
		}
	}

	return serverConfig
}

// defaultString returns the default value if s is empty
func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
