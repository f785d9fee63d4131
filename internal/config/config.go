package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration.
type Config struct {
	HTTPAddr   string
	DBPath     string
	LedgerPath string

	JWTSecret string
	JWTTTL    time.Duration

	// Fee policy applied to new distributions, in basis points.
	PlatformFeeBPS    uint32
	MaintenanceFeeBPS uint32
	FeeReceiver       string

	// FundingAccount holds deposited funds until a distribution is activated
	// and its gross is moved into that distribution's escrow account.
	FundingAccount string

	ClaimsAfterCompletion bool
}

func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		DBPath:         getEnv("DB_PATH", "./data/payouts.db"),
		LedgerPath:     getEnv("LEDGER_PATH", "./data/ledger"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		FeeReceiver:    getEnv("FEE_RECEIVER", "treasury"),
		FundingAccount: getEnv("FUNDING_ACCOUNT", "funding"),
	}

	var err error
	if cfg.ClaimsAfterCompletion, err = envBool("CLAIMS_AFTER_COMPLETION", true); err != nil {
		return Config{}, err
	}
	if cfg.JWTTTL, err = envDuration("JWT_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.PlatformFeeBPS, err = envBPS("PLATFORM_FEE_BPS", 0); err != nil {
		return Config{}, err
	}
	if cfg.MaintenanceFeeBPS, err = envBPS("MAINTENANCE_FEE_BPS", 0); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if cfg.PlatformFeeBPS+cfg.MaintenanceFeeBPS > 10000 {
		return Config{}, fmt.Errorf("PLATFORM_FEE_BPS + MAINTENANCE_FEE_BPS = %d exceeds 10000",
			cfg.PlatformFeeBPS+cfg.MaintenanceFeeBPS)
	}
	if cfg.FundingAccount == cfg.FeeReceiver {
		return Config{}, errors.New("FUNDING_ACCOUNT and FEE_RECEIVER must differ")
	}
	if strings.HasPrefix(cfg.FundingAccount, "escrow:") {
		return Config{}, fmt.Errorf("FUNDING_ACCOUNT %q collides with distribution escrow accounts", cfg.FundingAccount)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback, nil
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be a boolean, got %q", name, raw)
	}
}

func envBPS(name string, fallback uint32) (uint32, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v > 10000 {
		return 0, fmt.Errorf("%s must be an integer between 0 and 10000, got %q", name, raw)
	}
	return uint32(v), nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", name, raw)
	}
	return d, nil
}
