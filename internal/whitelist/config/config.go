package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TIVILSTA_"

// configFileEnv names the environment variable pointing at an optional
// YAML, JSON or TOML configuration file.
const configFileEnv = envPrefix + "CONFIG_FILE"

// AppConfig holds configuration values parsed from defaults, an optional file
// and environment variables, in that order of precedence.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,log_level"`

	// CatalogDB is the bbolt file caching downloaded TLD catalogs.
	// An empty value disables the cache.
	CatalogDB string `koanf:"catalog_db"`

	// CatalogTTL is how long a cached catalog is served before refetching.
	CatalogTTL time.Duration `koanf:"catalog_ttl" validate:"gte=0"`

	IANAURL string `koanf:"iana_url" validate:"required,url"`
	PSLURL  string `koanf:"psl_url" validate:"required,url"`

	// HTTPTimeout bounds each catalog or remote source request.
	HTTPTimeout time.Duration `koanf:"http_timeout" validate:"gt=0"`
	HTTPRetries int           `koanf:"http_retries" validate:"gte=0,lte=10"`

	// DecisionCacheSize is the LRU size for memoized decisions; 0 disables it.
	DecisionCacheSize int `koanf:"decision_cache_size" validate:"gte=0"`

	// BloomFPRate is the target false-positive rate of the rule prefilter;
	// 0 disables the prefilter.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gte=0,lt=1"`

	// RegexTimeout bounds a single regex rule evaluation.
	RegexTimeout time.Duration `koanf:"regex_timeout" validate:"gt=0"`
}

// DEFAULT_APP_CONFIG defines the default application configuration. The
// catalog cache lives under the user cache directory when one exists.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:               "prod",
	LogLevel:          "info",
	CatalogDB:         defaultCatalogDB(),
	CatalogTTL:        24 * time.Hour,
	IANAURL:           "https://raw.githubusercontent.com/PyFunceble/iana/master/iana-domains-db.json",
	PSLURL:            "https://raw.githubusercontent.com/PyFunceble/public-suffix/master/public-suffix.json",
	HTTPTimeout:       30 * time.Second,
	HTTPRetries:       3,
	DecisionCacheSize: 10000,
	BloomFPRate:       0.001,
	RegexTimeout:      time.Second,
}

func defaultCatalogDB() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		return ""
	}
	return filepath.Join(dir, "tivilsta", "catalog.db")
}

// validLogLevel accepts the level names in any case.
func validLogLevel(fl validator.FieldLevel) bool {
	switch strings.ToLower(fl.Field().String()) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// envLoader loads environment variables with the prefix "TIVILSTA_".
// It lowercases keys and strips the prefix. TIVILSTA_CONFIG_FILE comes through
// as an unknown key and is ignored by Unmarshal. Mockable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// fileLoader loads the file named by TIVILSTA_CONFIG_FILE, if set. The
// parser is chosen from the file extension.
var fileLoader = func(k *koanf.Koanf) error {
	path := strings.TrimSpace(os.Getenv(configFileEnv))
	if path == "" {
		return nil
	}
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	return k.Load(file.Provider(path), parser)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "log_level" tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("log_level", validLogLevel)
}

// Load returns an AppConfig built from defaults, the optional config file and
// the environment. It runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := fileLoader(k); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
