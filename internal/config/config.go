// Package config loads the node configuration from YAML with defaults
// applied before validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"credrelay/internal/ident"
)

type Fees struct {
	Message      uint64 `yaml:"message"`
	PerByte      uint64 `yaml:"per_byte"`
	Withdrawal   uint64 `yaml:"withdrawal"`
	Registration uint64 `yaml:"registration"`
	Max          uint64 `yaml:"max"`
}

type Registry struct {
	MaxEntriesPerOwner int `yaml:"max_entries_per_owner"`
}

type Config struct {
	ListenQUIC string   `yaml:"listen_quic"`
	ListenHTTP string   `yaml:"listen_http"`
	DataDir    string   `yaml:"data_dir"`
	Shards     int      `yaml:"shards"`
	Operator   string   `yaml:"operator"`
	MaxPayload int      `yaml:"max_payload"`
	Fees       Fees     `yaml:"fees"`
	Registry   Registry `yaml:"registry"`
	Pprof      string   `yaml:"pprof"`
	Debug      bool     `yaml:"debug"`
}

func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ListenQUIC: "127.0.0.1:7420",
		ListenHTTP: "127.0.0.1:7421",
		DataDir:    filepath.Join(home, ".credrelay"),
		Shards:     4,
		MaxPayload: 64 << 10,
		Fees: Fees{
			Message:      100,
			PerByte:      0,
			Withdrawal:   250,
			Registration: 1000,
			Max:          1_000_000,
		},
		Registry: Registry{MaxEntriesPerOwner: 16},
	}
}

// Load reads path over the defaults. A missing file is not an error;
// the defaults still need a configured operator to validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenQUIC == "" {
		return fmt.Errorf("missing listen_quic")
	}
	if c.DataDir == "" {
		return fmt.Errorf("missing data_dir")
	}
	if c.Shards <= 0 {
		return fmt.Errorf("shards must be positive")
	}
	if c.Operator == "" {
		return fmt.Errorf("missing operator principal")
	}
	if _, err := ident.ParsePrincipal(c.Operator); err != nil {
		return fmt.Errorf("bad operator principal: %v", err)
	}
	if c.MaxPayload <= 0 {
		return fmt.Errorf("max_payload must be positive")
	}
	if c.Fees.Max == 0 {
		return fmt.Errorf("missing fees.max")
	}
	if c.Fees.Message == 0 || c.Fees.Message > c.Fees.Max {
		return fmt.Errorf("fees.message out of range")
	}
	if c.Fees.PerByte > c.Fees.Max {
		return fmt.Errorf("fees.per_byte out of range")
	}
	if c.Fees.Withdrawal == 0 || c.Fees.Withdrawal > c.Fees.Max {
		return fmt.Errorf("fees.withdrawal out of range")
	}
	if c.Fees.Registration > c.Fees.Max {
		return fmt.Errorf("fees.registration out of range")
	}
	if c.Registry.MaxEntriesPerOwner <= 0 {
		return fmt.Errorf("registry.max_entries_per_owner must be positive")
	}
	return nil
}

// OperatorPrincipal parses the configured operator. Validate must have
// accepted the config first.
func (c Config) OperatorPrincipal() ident.Principal {
	p, _ := ident.ParsePrincipal(c.Operator)
	return p
}
