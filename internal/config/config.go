package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config carries every knob the daemon reads. All values are environment
// supplied; there are no CLI flags.
type Config struct {
	KajabiClientID     string
	KajabiClientSecret string
	KajabiBaseURL      string

	HubSpotAccessToken string
	HubSpotBaseURL     string

	// PurchaseCutoff excludes purchases created at or before this instant.
	// Zero means "use the last completed run, or fetch everything".
	PurchaseCutoff time.Time

	PollInterval time.Duration

	LedgerPath string
	RunLogPath string

	AdminAddr string

	// TemporalHostPort is optional; empty runs the pipeline in-process.
	TemporalHostPort string
}

// Load reads configuration from the environment (and a .env file when one is
// present) and validates the required credentials.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	// A missing .env file is fine; the environment alone is enough.
	_ = v.ReadInConfig()

	v.SetDefault("KAJABI_BASE_URL", "https://api.kajabi.com")
	v.SetDefault("HUBSPOT_BASE_URL", "https://api.hubapi.com")
	v.SetDefault("POLL_INTERVAL_MINUTES", 5)
	v.SetDefault("LEDGER_PATH", "sales_data.xlsx")
	v.SetDefault("RUNLOG_DB", "salesync.db")
	v.SetDefault("ADMIN_ADDR", ":8082")

	cfg := Config{
		KajabiClientID:     v.GetString("KAJABI_CLIENT_ID"),
		KajabiClientSecret: v.GetString("KAJABI_CLIENT_SECRET"),
		KajabiBaseURL:      v.GetString("KAJABI_BASE_URL"),
		HubSpotAccessToken: v.GetString("HUBSPOT_ACCESS_TOKEN"),
		HubSpotBaseURL:     v.GetString("HUBSPOT_BASE_URL"),
		PollInterval:       time.Duration(v.GetInt("POLL_INTERVAL_MINUTES")) * time.Minute,
		LedgerPath:         v.GetString("LEDGER_PATH"),
		RunLogPath:         v.GetString("RUNLOG_DB"),
		AdminAddr:          v.GetString("ADMIN_ADDR"),
		TemporalHostPort:   v.GetString("TEMPORAL_HOSTPORT"),
	}

	if raw := v.GetString("PURCHASE_CUTOFF_DATE"); raw != "" {
		cutoff, err := parseCutoff(raw)
		if err != nil {
			return Config{}, fmt.Errorf("PURCHASE_CUTOFF_DATE: %w", err)
		}
		cfg.PurchaseCutoff = cutoff
	}

	if cfg.KajabiClientID == "" || cfg.KajabiClientSecret == "" {
		return Config{}, fmt.Errorf("KAJABI_CLIENT_ID and KAJABI_CLIENT_SECRET must be set")
	}
	if cfg.HubSpotAccessToken == "" {
		return Config{}, fmt.Errorf("HUBSPOT_ACCESS_TOKEN must be set")
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("POLL_INTERVAL_MINUTES must be positive")
	}
	return cfg, nil
}

func parseCutoff(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q (want RFC3339 or YYYY-MM-DD)", raw)
}
