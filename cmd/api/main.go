package main

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/punchamoorthee/creditops/internal/api"
	"github.com/punchamoorthee/creditops/internal/config"
	"github.com/punchamoorthee/creditops/internal/service"
	"github.com/punchamoorthee/creditops/internal/store"
	"github.com/punchamoorthee/creditops/internal/token"
)

// ephemeralScanKeys is 1 when the scan keypair was generated at startup
// instead of provisioned. Exposed so the degraded mode is visible on the
// metrics surface, not just in a log line.
var ephemeralScanKeys = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "credits_ephemeral_scan_keys",
	Help: "1 when scan-token keys are ephemeral (restart invalidates all scan tokens)",
})

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("configuration failed")
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "creditops").Logger()
	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ledgerStore, err := store.NewStore(cfg.DBSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer ledgerStore.Close()

	authority, err := token.New(cfg.SessionSecret, cfg.SessionTTL, cfg.ScanKeyFile, cfg.ScanPubFile, cfg.ScanTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("token authority setup failed")
	}
	if authority.Ephemeral {
		ephemeralScanKeys.Set(1)
		logger.Warn().Msg("=======================================================")
		logger.Warn().Msg("SCAN-TOKEN KEYS ARE EPHEMERAL (no key files configured)")
		logger.Warn().Msg("every restart invalidates all outstanding scan tokens;")
		logger.Warn().Msg("do not run a durable deployment in this mode")
		logger.Warn().Msg("=======================================================")
	}

	mutations := service.NewMutationService(ledgerStore.Db, authority, logger)
	handler := api.NewHandler(ledgerStore, mutations, authority, logger, cfg.TimestampSkew)
	limiter := api.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(limiter),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
