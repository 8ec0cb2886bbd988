package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"seaescrow/crypto"
)

type Config struct {
	// ProgramID is the escrow program identity every order and vault address
	// is derived under. Changing it orphans existing orders.
	ProgramID string `toml:"ProgramID"`
	// TokenProgramID overrides the token program identity. Empty selects the
	// built-in default.
	TokenProgramID string `toml:"TokenProgramID"`
	RPCAddress     string `toml:"RPCAddress"`
	DataDir        string `toml:"DataDir"`
	AuditDB        string `toml:"AuditDB"`
	Environment    string `toml:"Environment"`

	Log       LogConfig       `toml:"log"`
	RPC       RPCConfig       `toml:"rpc"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// RPCConfig tunes the JSON-RPC server. Durations are in seconds.
type RPCConfig struct {
	ReadHeaderTimeout  int     `toml:"ReadHeaderTimeout"`
	ReadTimeout        int     `toml:"ReadTimeout"`
	WriteTimeout       int     `toml:"WriteTimeout"`
	IdleTimeout        int     `toml:"IdleTimeout"`
	MaxBodyBytes       int64   `toml:"MaxBodyBytes"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	TrustProxyHeaders  bool    `toml:"TrustProxyHeaders"`
	// RequireAuth protects escrow_submit with HS256 bearer tokens signed
	// with the secret held in the environment variable JWTSecretEnv.
	RequireAuth  bool   `toml:"RequireAuth"`
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	JWTIssuer    string `toml:"JWTIssuer"`
	JWTAudience  string `toml:"JWTAudience"`
}

type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
	// Headers is a comma separated key=value list sent with every export.
	Headers string `toml:"Headers"`
}

// Load loads the configuration from the given path. A missing file is created
// with defaults and a fresh program identity.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
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

// Default returns the configuration written for new installations, without a
// program identity.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = "127.0.0.1:8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./seaescrow-data"
	}
	if strings.TrimSpace(c.AuditDB) == "" {
		c.AuditDB = filepath.Join(c.DataDir, "audit.db")
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if c.Log.File != "" && c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.RPC.ReadHeaderTimeout == 0 {
		c.RPC.ReadHeaderTimeout = 5
	}
	if c.RPC.ReadTimeout == 0 {
		c.RPC.ReadTimeout = 15
	}
	if c.RPC.WriteTimeout == 0 {
		c.RPC.WriteTimeout = 15
	}
	if c.RPC.IdleTimeout == 0 {
		c.RPC.IdleTimeout = 60
	}
	if c.RPC.MaxBodyBytes == 0 {
		c.RPC.MaxBodyBytes = 1 << 20
	}
	if c.RPC.RateLimitPerSecond == 0 {
		c.RPC.RateLimitPerSecond = 20
	}
	if c.RPC.RateLimitBurst == 0 {
		c.RPC.RateLimitBurst = 40
	}
	if c.RPC.JWTSecretEnv == "" {
		c.RPC.JWTSecretEnv = "SEAESCROW_JWT_SECRET"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}
}

// ProgramAddress parses ProgramID.
func (c *Config) ProgramAddress() (crypto.Address, error) {
	addr, err := crypto.ParseAddress(c.ProgramID)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("ProgramID: %w", err)
	}
	if addr.IsZero() {
		return crypto.Address{}, fmt.Errorf("ProgramID must not be the zero address")
	}
	return addr, nil
}

// TokenProgramAddress parses TokenProgramID. An empty value yields the zero
// address, which callers treat as the default token program.
func (c *Config) TokenProgramAddress() (crypto.Address, error) {
	if strings.TrimSpace(c.TokenProgramID) == "" {
		return crypto.ZeroAddress, nil
	}
	addr, err := crypto.ParseAddress(c.TokenProgramID)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("TokenProgramID: %w", err)
	}
	return addr, nil
}

func createDefault(path string) (*Config, error) {
	var id [crypto.AddressLength]byte
	if _, err := rand.Read(id[:]); err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.ProgramID = crypto.Address(id).String()
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
