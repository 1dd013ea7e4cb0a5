package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvPrefix is used when no prefix is configured.
const DefaultEnvPrefix = "QUERYKIT"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader loads configuration with precedence: flags > ENV > file > defaults.
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
	flagKeys   map[string]string
}

// NewViperLoader creates a new ViperLoader.
// configFile is optional; envPrefix defaults to QUERYKIT.
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags binds command line flags to config keys. keys maps a flag name
// to a config key such as "mongodb.url". Only flags set by the user override.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet, keys map[string]string) *ViperLoader {
	l.flags = flags
	l.flagKeys = keys
	return l
}

// Load reads defaults, the optional file, environment and flags, then validates.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	l.bindEnvVars(v)

	if err := l.applyFlags(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("mongodb.url", cfg.MongoDB.URL)
	v.SetDefault("mongodb.database", cfg.MongoDB.Database)
	v.SetDefault("mongodb.connect_timeout", cfg.MongoDB.ConnectTimeout)
	v.SetDefault("mongodb.operation_timeout", cfg.MongoDB.OperationTimeout)
	v.SetDefault("mongodb.object_id_fields", cfg.MongoDB.ObjectIDFields)
	v.SetDefault("mongodb.number_fields", cfg.MongoDB.NumberFields)

	v.SetDefault("query.default_sort", cfg.Query.DefaultSort)
	v.SetDefault("query.default_page", cfg.Query.DefaultPage)
	v.SetDefault("query.default_limit", cfg.Query.DefaultLimit)
	v.SetDefault("query.default_projection", cfg.Query.DefaultProjection)
	v.SetDefault("query.literal_search", cfg.Query.LiteralSearch)
}

func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	// Log
	v.BindEnv("log.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("log.format", l.prefixedEnv("LOG_FORMAT"))

	// MongoDB
	v.BindEnv("mongodb.url", l.prefixedEnv("MONGODB_URL"), "MONGODB_URI")
	v.BindEnv("mongodb.database", l.prefixedEnv("MONGODB_DATABASE"))
	v.BindEnv("mongodb.connect_timeout", l.prefixedEnv("MONGODB_CONNECT_TIMEOUT"))
	v.BindEnv("mongodb.operation_timeout", l.prefixedEnv("MONGODB_OPERATION_TIMEOUT"))
	v.BindEnv("mongodb.object_id_fields", l.prefixedEnv("MONGODB_OBJECT_ID_FIELDS"))
	v.BindEnv("mongodb.number_fields", l.prefixedEnv("MONGODB_NUMBER_FIELDS"))

	// Query
	v.BindEnv("query.default_sort", l.prefixedEnv("QUERY_DEFAULT_SORT"))
	v.BindEnv("query.default_page", l.prefixedEnv("QUERY_DEFAULT_PAGE"))
	v.BindEnv("query.default_limit", l.prefixedEnv("QUERY_DEFAULT_LIMIT"))
	v.BindEnv("query.default_projection", l.prefixedEnv("QUERY_DEFAULT_PROJECTION"))
	v.BindEnv("query.literal_search", l.prefixedEnv("QUERY_LITERAL_SEARCH"))
}

func (l *ViperLoader) applyFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range l.flagKeys {
		flag := l.flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// Validate checks the configuration and normalizes list values.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.MongoDB.ObjectIDFields = normalizeStringSlice(cfg.MongoDB.ObjectIDFields)
	cfg.MongoDB.NumberFields = normalizeStringSlice(cfg.MongoDB.NumberFields)

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(cfg.Log.Level)) {
		errs = append(errs, fmt.Errorf("invalid log.level: %s (must be one of: %v)", cfg.Log.Level, validLevels))
	}
	validFormats := []string{"json", "text", "console"}
	if !contains(validFormats, strings.ToLower(cfg.Log.Format)) {
		errs = append(errs, fmt.Errorf("invalid log.format: %s (must be one of: %v)", cfg.Log.Format, validFormats))
	}

	if cfg.MongoDB.ConnectTimeout < 0 {
		errs = append(errs, errors.New("mongodb.connect_timeout must not be negative"))
	}
	if cfg.MongoDB.OperationTimeout < 0 {
		errs = append(errs, errors.New("mongodb.operation_timeout must not be negative"))
	}

	if cfg.Query.DefaultPage < 1 {
		errs = append(errs, fmt.Errorf("query.default_page must be at least 1, got %d", cfg.Query.DefaultPage))
	}
	if cfg.Query.DefaultLimit < 1 {
		errs = append(errs, fmt.Errorf("query.default_limit must be at least 1, got %d", cfg.Query.DefaultLimit))
	}
	if strings.ContainsRune(cfg.Query.DefaultSort, ',') {
		errs = append(errs, errors.New("query.default_sort must be space separated, not a comma list"))
	}

	return errors.Join(errs...)
}

// RequireMongoDB reports an error when the MongoDB connection is not configured.
func RequireMongoDB(cfg *Config) error {
	var errs []error
	if strings.TrimSpace(cfg.MongoDB.URL) == "" {
		errs = append(errs, errors.New("mongodb.url is required"))
	}
	if strings.TrimSpace(cfg.MongoDB.Database) == "" {
		errs = append(errs, errors.New("mongodb.database is required"))
	}
	return errors.Join(errs...)
}

func normalizeStringSlice(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
