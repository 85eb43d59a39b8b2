package config

import (
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"homeescrow/native/common"
	"homeescrow/native/deed"
	"homeescrow/native/escrow"
	"homeescrow/storage"
)

// EventLog selects the gorm backend that persists committed events.
type EventLog struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// ResolvedDSN returns the configured DSN, defaulting sqlite to a file under
// the data directory.
func (c *Config) ResolvedDSN() string {
	if dsn := strings.TrimSpace(c.EventLog.DSN); dsn != "" {
		return dsn
	}
	if strings.EqualFold(c.EventLog.Driver, "sqlite") {
		return filepath.Join(c.DataDir, "events.db")
	}
	return ""
}

// StatePath is where the state backend keeps its files.
func (c *Config) StatePath() string {
	if strings.EqualFold(c.StateBackend, storage.BackendBolt) {
		return filepath.Join(c.DataDir, "state.bolt")
	}
	return filepath.Join(c.DataDir, "state")
}

// Escrow holds the engine-wide parties as bech32 account strings.
type Escrow struct {
	Seller    string `toml:"Seller"`
	Inspector string `toml:"Inspector"`
	Lender    string `toml:"Lender"`
}

type Pauses struct {
	Escrow bool `toml:"Escrow"`
	Deed   bool `toml:"Deed"`
}

// IsPaused implements common.PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case escrow.ModuleName:
		return p.Escrow
	case deed.ModuleName:
		return p.Deed
	default:
		return false
	}
}

// Quota defines rate limits for module interactions on a per-address basis.
type Quota struct {
	MaxRequestsPerMin uint32 `toml:"MaxRequestsPerMin"`
	MaxValuePerEpoch  uint64 `toml:"MaxValuePerEpoch"`
	EpochSeconds      uint32 `toml:"EpochSeconds"`
}

// Runtime converts the config quota into the tracker form.
func (q Quota) Runtime() common.Quota {
	return common.Quota{
		MaxRequestsPerMin: q.MaxRequestsPerMin,
		MaxValuePerEpoch:  q.MaxValuePerEpoch,
		EpochSeconds:      q.EpochSeconds,
	}
}

// Quotas groups quotas for each module.
type Quotas struct {
	Escrow Quota `toml:"Escrow"`
	Deed   Quota `toml:"Deed"`
}

// RPC configures the JSON-RPC server.
type RPC struct {
	AuthTokenEnv             string   `toml:"AuthTokenEnv"`
	RateLimitPerSecond       float64  `toml:"RateLimitPerSecond"`
	RateLimitBurst           int      `toml:"RateLimitBurst"`
	TrustProxyHeaders        bool     `toml:"TrustProxyHeaders"`
	ReadHeaderTimeoutSeconds int      `toml:"ReadHeaderTimeoutSeconds"`
	MaxConnections           int      `toml:"MaxConnections"`
	AllowedOrigins           []string `toml:"AllowedOrigins"`
	JWT                      JWT      `toml:"JWT"`
}

// ReadHeaderTimeout returns the header timeout as a duration.
func (r RPC) ReadHeaderTimeout() time.Duration {
	return time.Duration(r.ReadHeaderTimeoutSeconds) * time.Second
}

// JWT enables HMAC-signed bearer tokens as an alternative to the static token.
type JWT struct {
	Enable         bool     `toml:"Enable"`
	Issuer         string   `toml:"Issuer"`
	Audience       []string `toml:"Audience"`
	HSSecretEnv    string   `toml:"HSSecretEnv"`
	MaxSkewSeconds int64    `toml:"MaxSkewSeconds"`
}

type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	ServiceName string `toml:"ServiceName"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Headers     string `toml:"Headers"`
	Metrics     bool   `toml:"Metrics"`
	Traces      bool   `toml:"Traces"`
}

// Allocation seeds an account balance on first start.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

func parseUintAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() <= 0 {
		return nil, false
	}
	return value, true
}
