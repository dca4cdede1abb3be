// Package config loads knoldeck settings from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable. A double underscore
// separates levels: KNOLDECK_REMOTE__GIST_ID sets remote.gist_id.
const EnvPrefix = "KNOLDECK_"

const (
	defaultConfigFile = "knoldeck.yaml"
	defaultEnvFile    = ".env"
)

type Config struct {
	Log     Log     `koanf:"log"`
	Storage Storage `koanf:"storage"`
	Remote  Remote  `koanf:"remote"`
	Sync    Sync    `koanf:"sync"`
	HTTP    HTTP    `koanf:"http"`
	Seed    Seed    `koanf:"seed"`
	Deck    Deck    `koanf:"deck"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type Storage struct {
	// Path is the sqlite file holding the local cache and review history.
	Path string `koanf:"path" validate:"required"`
}

// Remote describes the shared document the cards are mirrored to.
type Remote struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	GistID  string        `koanf:"gist_id"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	// Files maps a deck id to its remote filename when it is not <id>.json.
	Files map[string]string `koanf:"files"`
}

type Sync struct {
	Policy   string        `koanf:"policy" validate:"oneof=immediate debounced guarded"`
	Debounce time.Duration `koanf:"debounce" validate:"gt=0"`
	MaxDelay time.Duration `koanf:"max_delay" validate:"gtfield=Debounce"`
	// Probe is how often the remote is polled while running; 0 disables it.
	Probe time.Duration `koanf:"probe" validate:"gte=0"`
}

type HTTP struct {
	Addr string `koanf:"addr" validate:"required"`
}

type Seed struct {
	Sources      []string `koanf:"sources" validate:"dive,required"`
	Prune        bool     `koanf:"prune"`
	FirstRunOnly bool     `koanf:"first_run_only"`
	ReposDir     string   `koanf:"repos_dir" validate:"required"`
}

type Deck struct {
	Default string `koanf:"default" validate:"required,max=64"`
	// Vocabulary introduces new cards by proficiency tier and leaves them
	// out of the due count.
	Vocabulary bool `koanf:"vocabulary"`
}

// RemoteConfigured reports whether credentials for the remote are set.
func (c *Config) RemoteConfigured() bool {
	return c.Remote.GistID != "" && c.Remote.Token != ""
}

var defaults = map[string]any{
	"log.level":           "info",
	"log.format":          "text",
	"storage.path":        "knoldeck.db",
	"remote.base_url":     "https://api.github.com",
	"remote.timeout":      "10s",
	"sync.policy":         "debounced",
	"sync.debounce":       "2s",
	"sync.max_delay":      "20s",
	"sync.probe":          "1m",
	"http.addr":           "localhost:8080",
	"seed.repos_dir":      "repos",
	"seed.prune":          false,
	"seed.first_run_only": false,
	"deck.default":        "Default",
	"deck.vocabulary":     false,
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"config":     "config_file",
	"env-file":   "env_file",
	"db":         "storage.path",
	"addr":       "http.addr",
	"log-level":  "log.level",
	"log-format": "log.format",
	"policy":     "sync.policy",
	"deck":       "deck.default",
	"source":     "seed.sources",
	"prune":      "seed.prune",
	"gist-id":    "remote.gist_id",
	"vocabulary": "deck.vocabulary",
}

// Flags returns the flag set understood by Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", defaultConfigFile, "path to a YAML config file")
	fs.String("env-file", defaultEnvFile, "path to a .env file")
	fs.String("db", "", "path to the sqlite database")
	fs.String("addr", "", "HTTP listen address")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("log-format", "", "log format: text or json")
	fs.String("policy", "", "remote write policy: immediate, debounced or guarded")
	fs.String("deck", "", "name of the deck created when none exist")
	fs.StringSlice("source", nil, "seed source path or git URL (repeatable)")
	fs.Bool("prune", false, "delete cards absent from the seed sources")
	fs.String("gist-id", "", "id of the remote document")
	fs.Bool("vocabulary", false, "introduce new cards by proficiency tier")
	return fs
}

// Load parses args with flags and builds the configuration. It returns the
// positional arguments left after the flags.
func Load(flags *pflag.FlagSet, args []string) (*Config, []string, error) {
	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}

	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	// A missing file is only an error when it was asked for explicitly.
	configFile, _ := flags.GetString("config")
	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || flags.Changed("config") {
			return nil, nil, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
	}

	envFile, _ := flags.GetString("env-file")
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || flags.Changed("env-file") {
			return nil, nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, nil, fmt.Errorf("failed to load environment: %w", err)
	}

	fp := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			key = f.Name
		}
		return key, posflag.FlagVal(flags, f)
	})
	if err := k.Load(fp, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, flags.Args(), nil
}

// Validate checks the configuration's constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// envKey turns KNOLDECK_SYNC__MAX_DELAY into sync.max_delay.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
