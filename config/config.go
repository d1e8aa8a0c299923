// Package config loads the client configuration from TOML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment overrides, applied after the file is read
const (
	EnvAPIURL    = "AUTHFLOW_API_URL"
	EnvStorePath = "AUTHFLOW_STORE_PATH"
	EnvLogLevel  = "AUTHFLOW_LOG_LEVEL"
)

// Store backends
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Duration wraps time.Duration so it reads as text ("10s") from TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type API struct {
	URL     string   `toml:"url"`
	Timeout Duration `toml:"timeout"`
}

type Store struct {
	Backend string `toml:"backend"`
	// Path is the JSON file or SQLite database; empty means the default
	// location under the user config directory.
	Path string `toml:"path"`
}

type Password struct {
	MinLength      int  `toml:"min_length"`
	RequireUpper   bool `toml:"require_upper"`
	RequireLower   bool `toml:"require_lower"`
	RequireDigit   bool `toml:"require_digit"`
	RequireSpecial bool `toml:"require_special"`
}

type OTP struct {
	Length      int      `toml:"length"`
	SubmitDelay Duration `toml:"submit_delay"`
}

type Wizard struct {
	CopiedReset Duration `toml:"copied_reset"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Cache struct {
	Level string   `toml:"level"`
	TTL   Duration `toml:"ttl"`
}

type OAuthProvider struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Scopes       []string `toml:"scopes"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
}

type OAuth struct {
	CallbackAddr string                   `toml:"callback_addr"`
	Providers    map[string]OAuthProvider `toml:"providers"`
}

// Config is the whole configuration file
type Config struct {
	API      API      `toml:"api"`
	Store    Store    `toml:"store"`
	Password Password `toml:"password"`
	OTP      OTP      `toml:"otp"`
	Wizard   Wizard   `toml:"wizard"`
	Log      Log      `toml:"log"`
	Cache    Cache    `toml:"cache"`
	OAuth    OAuth    `toml:"oauth"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		API:   API{URL: "http://localhost:8080", Timeout: Duration{15 * time.Second}},
		Store: Store{Backend: StoreFile},
		Password: Password{
			MinLength:    8,
			RequireUpper: true,
			RequireLower: true,
			RequireDigit: true,
		},
		OTP:    OTP{Length: 6, SubmitDelay: Duration{100 * time.Millisecond}},
		Wizard: Wizard{CopiedReset: Duration{2 * time.Second}},
		Log:    Log{Level: "info", Format: "text"},
		Cache:  Cache{Level: "small", TTL: Duration{5 * time.Minute}},
		OAuth:  OAuth{CallbackAddr: "127.0.0.1:0"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.API.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorePath)); v != "" {
		cfg.Store.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = v
	}
}

// Marshal encodes cfg as TOML
func Marshal(cfg *Config) ([]byte, error) {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
