package config

import "time"

// Config is the root configuration for querykit tooling.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Query   QueryConfig   `mapstructure:"query"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// MongoDBConfig configures the MongoDB connection.
type MongoDBConfig struct {
	URL              string        `mapstructure:"url"`
	Database         string        `mapstructure:"database"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// ObjectIDFields lists fields whose hex string filter values are cast to ObjectIDs.
	ObjectIDFields []string `mapstructure:"object_id_fields"`
	// NumberFields lists fields whose numeric string filter values are cast to numbers.
	NumberFields []string `mapstructure:"number_fields"`
}

// QueryConfig holds the fallbacks applied when a parameter is absent.
type QueryConfig struct {
	DefaultSort       string `mapstructure:"default_sort"`
	DefaultPage       int    `mapstructure:"default_page"`
	DefaultLimit      int    `mapstructure:"default_limit"`
	DefaultProjection string `mapstructure:"default_projection"`
	LiteralSearch     bool   `mapstructure:"literal_search"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		MongoDB: MongoDBConfig{
			ConnectTimeout:   10 * time.Second,
			OperationTimeout: 5 * time.Second,
		},
		Query: QueryConfig{
			DefaultSort:       "-createdAt",
			DefaultPage:       1,
			DefaultLimit:      10,
			DefaultProjection: "-__v",
		},
	}
}
