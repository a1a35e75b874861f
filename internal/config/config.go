package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type Database struct {
	URL string `toml:"url"`
}

type Torii struct {
	ToriiURL     string `toml:"torii_url"`
	WorldAddress string `toml:"world_address"`
}

type Avnu struct {
	APIURL string `toml:"api_url"`
}

type Ekubo struct {
	APIURL  string `toml:"api_url"`
	ChainID string `toml:"chain_id"`
}

type Starknet struct {
	RPCURL string `toml:"rpc_url"`
}

type Token struct {
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Decimals int    `toml:"decimals"`
}

type Config struct {
	Database Database `toml:"database"`
	Torii    Torii    `toml:"torii"`
	Avnu     Avnu     `toml:"avnu"`
	Ekubo    Ekubo    `toml:"ekubo"`
	Starknet Starknet `toml:"starknet"`

	Tokens       []Token `toml:"token"`
	DefaultToken string  `toml:"default_token"`

	Address     string   `toml:"address"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	DropEmitterWallets []string `toml:"drop_emitter_wallets"`
}

// Path resolves the config file location: CONFIG_PATH or ./config.toml.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./config.toml"
}

// Load reads the TOML file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("%s: database.url is required", path)
	}
	if cfg.Torii.ToriiURL == "" {
		return nil, fmt.Errorf("%s: torii.torii_url is required", path)
	}
	return &cfg, nil
}

// applyEnv lets deployment environments override file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("TORII_URL"); v != "" {
		c.Torii.ToriiURL = v
	}
	if v := os.Getenv("WORLD_ADDRESS"); v != "" {
		c.Torii.WorldAddress = v
	}
	if v := os.Getenv("AVNU_API_URL"); v != "" {
		c.Avnu.APIURL = v
	}
	if v := os.Getenv("EKUBO_API_URL"); v != "" {
		c.Ekubo.APIURL = v
	}
	if v := os.Getenv("STARKNET_RPC_URL"); v != "" {
		c.Starknet.RPCURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("DROP_EMITTER_WALLETS"); v != "" {
		c.DropEmitterWallets = splitCSV(v)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TokenBySymbol returns the registry entry for symbol, or nil.
func (c *Config) TokenBySymbol(symbol string) *Token {
	for i := range c.Tokens {
		if strings.EqualFold(c.Tokens[i].Symbol, symbol) {
			return &c.Tokens[i]
		}
	}
	return nil
}
