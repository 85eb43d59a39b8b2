package config

import (
	"fmt"
	"os"
	"strings"

	"homeescrow/core"
	"homeescrow/crypto"
	"homeescrow/native/deed"
	"homeescrow/native/escrow"
	"homeescrow/storage"
)

// Validate checks addresses, amounts and bounds. It does not touch the
// filesystem.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	switch strings.ToLower(strings.TrimSpace(c.StateBackend)) {
	case "", storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("StateBackend: unsupported backend %q", c.StateBackend)
	}
	switch strings.ToLower(strings.TrimSpace(c.EventLog.Driver)) {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.EventLog.DSN) == "" {
			return fmt.Errorf("EventLog: postgres driver requires DSN")
		}
	default:
		return fmt.Errorf("EventLog: unsupported driver %q", c.EventLog.Driver)
	}
	if _, err := c.Roles(); err != nil {
		return err
	}
	if _, err := c.GenesisAllocations(); err != nil {
		return err
	}
	if c.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("RPC: RateLimitPerSecond must not be negative")
	}
	if c.RPC.RateLimitPerSecond > 0 && c.RPC.RateLimitBurst <= 0 {
		return fmt.Errorf("RPC: RateLimitBurst must be positive when rate limiting is enabled")
	}
	if c.RPC.ReadHeaderTimeoutSeconds < 0 {
		return fmt.Errorf("RPC: ReadHeaderTimeoutSeconds must not be negative")
	}
	if c.RPC.MaxConnections < 0 {
		return fmt.Errorf("RPC: MaxConnections must not be negative")
	}
	if c.RPC.JWT.Enable {
		if strings.TrimSpace(c.RPC.JWT.Issuer) == "" {
			return fmt.Errorf("RPC.JWT: Issuer required when enabled")
		}
		if strings.TrimSpace(c.RPC.JWT.HSSecretEnv) == "" {
			return fmt.Errorf("RPC.JWT: HSSecretEnv required when enabled")
		}
		if c.RPC.JWT.MaxSkewSeconds < 0 {
			return fmt.Errorf("RPC.JWT: MaxSkewSeconds must not be negative")
		}
	}
	for name, q := range map[string]Quota{"Escrow": c.Quotas.Escrow, "Deed": c.Quotas.Deed} {
		if q.MaxValuePerEpoch > 0 && q.EpochSeconds == 0 {
			return fmt.Errorf("Quotas.%s: EpochSeconds required when MaxValuePerEpoch is set", name)
		}
	}
	return nil
}

// Roles decodes the configured escrow parties.
func (c *Config) Roles() (escrow.Roles, error) {
	var roles escrow.Roles
	fields := []struct {
		name string
		raw  string
		dst  *[20]byte
	}{
		{"Seller", c.Escrow.Seller, &roles.Seller},
		{"Inspector", c.Escrow.Inspector, &roles.Inspector},
		{"Lender", c.Escrow.Lender, &roles.Lender},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.raw) == "" {
			return escrow.Roles{}, fmt.Errorf("Escrow.%s must be set", field.name)
		}
		addr, err := parseParticipant(field.raw)
		if err != nil {
			return escrow.Roles{}, fmt.Errorf("Escrow.%s: %w", field.name, err)
		}
		*field.dst = addr
	}
	if err := roles.Validate(); err != nil {
		return escrow.Roles{}, err
	}
	return roles, nil
}

// GenesisAllocations decodes the configured starting balances.
func (c *Config) GenesisAllocations() ([]core.Allocation, error) {
	out := make([]core.Allocation, 0, len(c.Allocations))
	for i, alloc := range c.Allocations {
		addr, err := parseParticipant(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("Allocations[%d]: %w", i, err)
		}
		amount, ok := parseUintAmount(alloc.Amount)
		if !ok {
			return nil, fmt.Errorf("Allocations[%d]: amount %q must be a positive integer", i, alloc.Amount)
		}
		out = append(out, core.Allocation{Address: addr, Amount: amount})
	}
	return out, nil
}

// parseParticipant decodes a configured party address. Module accounts are
// refused whatever prefix they are written with.
func parseParticipant(raw string) ([20]byte, error) {
	addr, err := crypto.ParseParticipant(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, err
	}
	if addr == escrow.VaultAddress() || addr == crypto.DeriveModuleAddress(deed.ModuleName) {
		return [20]byte{}, fmt.Errorf("%s is a module account", crypto.FormatAccount(addr))
	}
	return addr, nil
}

// AuthToken reads the bearer token from the configured environment variable.
func (c *Config) AuthToken() string {
	return strings.TrimSpace(os.Getenv(c.RPC.AuthTokenEnv))
}

// JWTSecret reads the HMAC secret from the configured environment variable.
func (c *Config) JWTSecret() string {
	if strings.TrimSpace(c.RPC.JWT.HSSecretEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.RPC.JWT.HSSecretEnv))
}
