package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading engine.
type Config struct {
	Port string

	// Binance
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string

	// Database
	DBPath string

	// Bot seed file (optional)
	BotsConfigPath string

	// Margin defaults
	DefaultSideEffect string // NO_SIDE_EFFECT, MARGIN_BUY, AUTO_REPAY

	// Close-all pacing: venue calls per second across the flow
	CloseAllRate float64

	// Reconciliation sweep for stuck PENDING positions
	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration

	// Auth for the HTTP harness (empty disables auth)
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		BinanceTestnet:    getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		DBPath:            getEnv("DB_PATH", "./data/trader.db"),
		BotsConfigPath:    getEnv("BOTS_CONFIG_PATH", ""),
		DefaultSideEffect: getEnv("MARGIN_SIDE_EFFECT", "MARGIN_BUY"),
		CloseAllRate:      getEnvFloat("CLOSE_ALL_RATE", 2),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 0), // 0 disables the sweep
		ReconcileGrace:    getEnvDuration("RECONCILE_GRACE", time.Minute),
		JWTSecret:         os.Getenv("JWT_SECRET"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
