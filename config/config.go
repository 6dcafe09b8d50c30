// Package config defines YAML configuration of the social recovery CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/lsp-toolkit/socialrecovery/actor"
	"github.com/lsp-toolkit/socialrecovery/network"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding the file values.
const (
	EnvEndpoint   = "SOCIALRECOVERY_ENDPOINT"
	EnvPrivateKey = "SOCIALRECOVERY_PRIVATE_KEY"
)

// Config is the root configuration.
type Config struct {
	// JSON-RPC endpoint. Takes precedence over Network.
	Endpoint string `yaml:"endpoint"`

	// Name of the network from the registry, e.g. 'l16'.
	Network string `yaml:"network"`

	// Networks added to or overriding the built-in registry.
	Networks network.Registry `yaml:"networks"`

	// Address of the Universal Profile.
	Profile string `yaml:"profile"`

	Key Key `yaml:"key"`

	// Period of transaction receipt polling, e.g. '500ms'.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Path to the file with hex-encoded creation code of the recovery
	// contract.
	RecoveryBytecode string `yaml:"recovery_bytecode"`

	Logging Logging `yaml:"logging"`
}

// Key configures the transaction signer. At most one source may be set.
type Key struct {
	// Hex-encoded private key.
	Hex string `yaml:"hex"`

	// Path to the encrypted keystore file.
	Keystore string `yaml:"keystore"`

	// Name of the environment variable holding the keystore password.
	PasswordEnv string `yaml:"password_env"`
}

// Logging configures the logger.
type Logging struct {
	// One of zap levels: debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Network:      "l16",
		PollInterval: actor.DefaultPollInterval,
		Logging:      Logging{Level: "info"},
	}
}

// Load reads configuration from the YAML file at path. Empty path means
// defaults. Environment variables override the file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv(EnvPrivateKey); v != "" {
		c.Key = Key{Hex: v}
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Key.Hex != "" && c.Key.Keystore != "" {
		return errors.New("both hex key and keystore are set")
	}

	if c.PollInterval < 0 {
		return fmt.Errorf("negative poll interval %s", c.PollInterval)
	}

	for id, n := range c.Networks {
		if n.RPCURL == "" {
			return fmt.Errorf("network %d: missing RPC URL", id)
		}
	}

	return nil
}

// Registry returns the built-in network registry merged with the
// configured networks.
func (c *Config) Registry() network.Registry {
	return network.DefaultRegistry().Merge(c.Networks)
}

// RPCURL returns the endpoint to connect to: the explicit one or the
// canonical endpoint of the configured network.
func (c *Config) RPCURL() (string, error) {
	if c.Endpoint != "" {
		return c.Endpoint, nil
	}

	if c.Network == "" {
		return "", errors.New("neither endpoint nor network is set")
	}

	_, n, err := c.Registry().Lookup(c.Network)
	if err != nil {
		return "", err
	}

	return n.RPCURL, nil
}

// Signer returns configured transaction signer. Nil signer without error
// means no key is configured.
func (c *Config) Signer() (actor.Signer, error) {
	var (
		s   *actor.KeySigner
		err error
	)

	switch {
	case c.Key.Hex != "":
		s, err = actor.KeySignerFromHex(c.Key.Hex)
	case c.Key.Keystore != "":
		var password string
		if c.Key.PasswordEnv != "" {
			password = os.Getenv(c.Key.PasswordEnv)
		}
		s, err = actor.KeySignerFromKeystore(c.Key.Keystore, password)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Bytecode reads creation code of the recovery contract. Nil without error
// means the path is not configured.
func (c *Config) Bytecode() ([]byte, error) {
	if c.RecoveryBytecode == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.RecoveryBytecode)
	if err != nil {
		return nil, fmt.Errorf("read recovery contract bytecode: %w", err)
	}

	s := strings.TrimSpace(string(data))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}

	code, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode recovery contract bytecode: %w", err)
	}

	return code, nil
}
