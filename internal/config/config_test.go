package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.HTTPAddr != ":8080" || cfg.JWTTTL != 24*time.Hour || !cfg.ClaimsAfterCompletion {
			t.Errorf("unexpected defaults: %+v", cfg)
		}
		if cfg.FundingAccount != "funding" || cfg.FeeReceiver != "treasury" {
			t.Errorf("accounts = %q/%q", cfg.FundingAccount, cfg.FeeReceiver)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("JWT_TTL", "90m")
		t.Setenv("PLATFORM_FEE_BPS", "250")
		t.Setenv("MAINTENANCE_FEE_BPS", "100")
		t.Setenv("CLAIMS_AFTER_COMPLETION", "off")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.JWTTTL != 90*time.Minute {
			t.Errorf("JWTTTL = %v, want 90m", cfg.JWTTTL)
		}
		if cfg.PlatformFeeBPS != 250 || cfg.MaintenanceFeeBPS != 100 {
			t.Errorf("fees = %d/%d, want 250/100", cfg.PlatformFeeBPS, cfg.MaintenanceFeeBPS)
		}
		if cfg.ClaimsAfterCompletion {
			t.Error("ClaimsAfterCompletion = true, want false")
		}
	})

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"rate not a number", map[string]string{"PLATFORM_FEE_BPS": "five"}},
		{"rate above 100%", map[string]string{"MAINTENANCE_FEE_BPS": "10001"}},
		{"rates sum above 100%", map[string]string{"PLATFORM_FEE_BPS": "6000", "MAINTENANCE_FEE_BPS": "5000"}},
		{"bad ttl", map[string]string{"JWT_TTL": "-1h"}},
		{"funding is fee receiver", map[string]string{"FUNDING_ACCOUNT": "ops", "FEE_RECEIVER": "ops"}},
		{"funding named like an escrow", map[string]string{"FUNDING_ACCOUNT": "escrow:1"}},
		{"claims flag not a boolean", map[string]string{"CLAIMS_AFTER_COMPLETION": "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}
