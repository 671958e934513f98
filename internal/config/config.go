// Package config loads client settings from flags, WORDDUEL_* environment
// variables, an optional .env file and an optional config file, in that order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "WORDDUEL"

const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type Config struct {
	LedgerURL    string
	LedgerAPIKey string
	// ProverURL selects a remote proof backend; empty proves locally with
	// the keys in KeysDir.
	ProverURL    string
	ProverAPIKey string
	KeysDir      string

	// Empty paths fall back to the embedded word list.
	DictionaryPath      string
	GuessDictionaryPath string

	Store         string
	StateDir      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	PollInterval    time.Duration
	ConfirmRetries  uint64
	ConfirmInterval time.Duration

	ListenAddr   string
	AllowOrigins []string

	WalletKey         string
	UseSessionKey     bool
	SessionFundAmount int64

	LogLevel  string
	LogFormat string
}

// New returns a viper instance with every key defaulted and bound to its
// WORDDUEL_ environment variable.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("ledger_url", "http://127.0.0.1:8545")
	v.SetDefault("ledger_api_key", "")
	v.SetDefault("prover_url", "")
	v.SetDefault("prover_api_key", "")
	v.SetDefault("keys_dir", "keys")
	v.SetDefault("dictionary_path", "")
	v.SetDefault("guess_dictionary_path", "")
	v.SetDefault("store", StoreFile)
	v.SetDefault("state_dir", ".wordduel")
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("confirm_retries", 30)
	v.SetDefault("confirm_interval", time.Second)
	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("allow_origins", []string{})
	v.SetDefault("wallet_key", "wallet.json")
	v.SetDefault("use_session_key", true)
	v.SetDefault("session_fund_amount", 1000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	return v
}

// Load reads .env (if present) and file (if set), then resolves v.
func Load(v *viper.Viper, file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	c := &Config{
		LedgerURL:           v.GetString("ledger_url"),
		LedgerAPIKey:        v.GetString("ledger_api_key"),
		ProverURL:           v.GetString("prover_url"),
		ProverAPIKey:        v.GetString("prover_api_key"),
		KeysDir:             v.GetString("keys_dir"),
		DictionaryPath:      v.GetString("dictionary_path"),
		GuessDictionaryPath: v.GetString("guess_dictionary_path"),
		Store:               strings.ToLower(v.GetString("store")),
		StateDir:            v.GetString("state_dir"),
		RedisAddr:           v.GetString("redis_addr"),
		RedisPassword:       v.GetString("redis_password"),
		RedisDB:             v.GetInt("redis_db"),
		SessionTTL:          v.GetDuration("session_ttl"),
		PollInterval:        v.GetDuration("poll_interval"),
		ConfirmRetries:      v.GetUint64("confirm_retries"),
		ConfirmInterval:     v.GetDuration("confirm_interval"),
		ListenAddr:          v.GetString("listen_addr"),
		AllowOrigins:        origins(v.GetStringSlice("allow_origins")),
		WalletKey:           v.GetString("wallet_key"),
		UseSessionKey:       v.GetBool("use_session_key"),
		SessionFundAmount:   v.GetInt64("session_fund_amount"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreFile:
		if c.StateDir == "" {
			return errors.New("config: state_dir required for file store")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: redis_addr required for redis store")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	switch {
	case c.PollInterval <= 0:
		return errors.New("config: poll_interval must be positive")
	case c.ConfirmRetries == 0:
		return errors.New("config: confirm_retries must be at least 1")
	case c.ConfirmInterval <= 0:
		return errors.New("config: confirm_interval must be positive")
	case c.SessionFundAmount < 0:
		return errors.New("config: session_fund_amount must not be negative")
	case c.ProverURL == "" && c.KeysDir == "":
		return errors.New("config: keys_dir or prover_url required")
	}
	return nil
}

// origins accepts both a list and a single comma-separated env value.
func origins(in []string) []string {
	var out []string
	for _, s := range in {
		for _, o := range strings.Split(s, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}
