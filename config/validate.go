package config

import (
	"fmt"
	"net"

	"seaescrow/observability/logging"
)

// Validate checks the settings that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if _, err := c.ProgramAddress(); err != nil {
		return err
	}
	if _, err := c.TokenProgramAddress(); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(c.RPCAddress); err != nil {
		return fmt.Errorf("RPCAddress: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.MaxBodyBytes < 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must not be negative")
	}
	if c.RPC.RequireAuth && c.RPC.JWTSecretEnv == "" {
		return fmt.Errorf("rpc: RequireAuth needs JWTSecretEnv")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	return nil
}
