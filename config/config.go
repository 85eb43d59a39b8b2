package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"homeescrow/crypto"
	"homeescrow/storage"
)

const (
	// DefaultListenAddress is where the JSON-RPC server binds when unset.
	DefaultListenAddress = ":8080"
	// DefaultDataDir holds the goleveldb state and the sqlite event log.
	DefaultDataDir = "./escrow-data"
	// DefaultAuthTokenEnv names the environment variable carrying the RPC bearer token.
	DefaultAuthTokenEnv = "ESCROWD_RPC_TOKEN"
)

type Config struct {
	ListenAddress string       `toml:"ListenAddress"`
	DataDir       string       `toml:"DataDir"`
	StateBackend  string       `toml:"StateBackend"`
	Environment   string       `toml:"Environment"`
	KeystoreDir   string       `toml:"KeystoreDir"`
	EventLog      EventLog     `toml:"EventLog"`
	Escrow        Escrow       `toml:"Escrow"`
	Pauses        Pauses       `toml:"Pauses"`
	Quotas        Quotas       `toml:"Quotas"`
	RPC           RPC          `toml:"RPC"`
	Logging       Logging      `toml:"Logging"`
	Telemetry     Telemetry    `toml:"Telemetry"`
	Allocations   []Allocation `toml:"Allocations"`
}

// PassphraseSource resolves the passphrase protecting generated role keystores.
type PassphraseSource func() (string, error)

// LoadOption customises configuration loading.
type LoadOption func(*loadOptions)

type loadOptions struct {
	passphrase PassphraseSource
}

// WithKeystorePassphraseSource sets the passphrase used when default role
// keystores are generated. Without it the keystores are written unencrypted
// with an empty passphrase.
func WithKeystorePassphraseSource(source PassphraseSource) LoadOption {
	return func(o *loadOptions) {
		o.passphrase = source
	}
}

// Load loads the configuration from the given path. A missing file is
// replaced with a default one whose role accounts are freshly generated and
// saved as keystores next to it.
func Load(path string, opts ...LoadOption) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(c.StateBackend) == "" {
		c.StateBackend = storage.BackendLevelDB
	}
	if strings.TrimSpace(c.EventLog.Driver) == "" {
		c.EventLog.Driver = "sqlite"
	}
	if strings.TrimSpace(c.RPC.AuthTokenEnv) == "" {
		c.RPC.AuthTokenEnv = DefaultAuthTokenEnv
	}
	if c.RPC.ReadHeaderTimeoutSeconds == 0 {
		c.RPC.ReadHeaderTimeoutSeconds = 5
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, options loadOptions) (*Config, error) {
	passphrase := ""
	if options.passphrase != nil {
		resolved, err := options.passphrase()
		if err != nil {
			return nil, fmt.Errorf("resolve keystore passphrase: %w", err)
		}
		passphrase = resolved
	}
	keystoreDir := filepath.Join(filepath.Dir(path), "keys")
	roles := map[string]*string{}
	cfg := &Config{
		ListenAddress: DefaultListenAddress,
		DataDir:       DefaultDataDir,
		StateBackend:  storage.BackendLevelDB,
		Environment:   "local",
		KeystoreDir:   keystoreDir,
		EventLog:      EventLog{Driver: "sqlite"},
		RPC: RPC{
			AuthTokenEnv:             DefaultAuthTokenEnv,
			RateLimitPerSecond:       20,
			RateLimitBurst:           40,
			ReadHeaderTimeoutSeconds: 5,
		},
		Quotas: Quotas{
			Escrow: Quota{MaxRequestsPerMin: 120, EpochSeconds: 60},
			Deed:   Quota{MaxRequestsPerMin: 60, EpochSeconds: 60},
		},
		Logging:     Logging{Level: "info"},
		Telemetry:   Telemetry{ServiceName: "escrowd", Endpoint: "localhost:4318", Insecure: true},
		Allocations: []Allocation{},
	}
	roles["seller"] = &cfg.Escrow.Seller
	roles["inspector"] = &cfg.Escrow.Inspector
	roles["lender"] = &cfg.Escrow.Lender

	for name, field := range roles {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		if err := crypto.SaveToKeystore(filepath.Join(keystoreDir, name+".keystore"), key, passphrase); err != nil {
			return nil, fmt.Errorf("save %s keystore: %w", name, err)
		}
		*field = key.PubKey().Address().String()
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
