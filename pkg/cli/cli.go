// Package cli provides the querykit command line for running list queries
// against MongoDB and explaining how a query string is translated.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nimburion/querykit/pkg/config"
	"github.com/nimburion/querykit/pkg/observability/logger"
	"github.com/nimburion/querykit/pkg/querybuilder"
	"github.com/nimburion/querykit/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Options configures the root command.
type Options struct {
	Name        string
	Description string
	ConfigPath  string
	// EnvPrefix defaults to QUERYKIT.
	EnvPrefix string
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"log-format":     "log.format",
	"mongo-url":      "mongodb.url",
	"mongo-database": "mongodb.database",
	"default-sort":   "query.default_sort",
	"default-limit":  "query.default_limit",
	"literal-search": "query.literal_search",
}

// NewRootCommand creates the querykit CLI with find, explain, ping and version subcommands.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "querykit"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath, requestID string
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	pf.StringVar(&requestID, "request-id", "", "request ID attached to every log entry")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (json, text)")
	pf.String("mongo-url", "", "MongoDB connection URL")
	pf.String("mongo-database", "", "MongoDB database name")
	pf.String("default-sort", "", "sort applied when the query has none")
	pf.Int("default-limit", 0, "page size applied when the query has none")
	pf.Bool("literal-search", false, "match searchTerm literally instead of as a pattern")

	loadConfig := func(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
		cfg, log, err := LoadConfigAndLogger(cfgPath, opts.EnvPrefix, cmd.Flags(), cmd.ErrOrStderr())
		if err != nil {
			return nil, nil, err
		}
		return cfg, withRequestID(cmd, log, requestID), nil
	}

	rootCmd.AddCommand(
		newFindCommand(loadConfig),
		newExplainCommand(loadConfig),
		newPingCommand(loadConfig),
		newVersionCommand(opts.Name),
	)
	return rootCmd
}

type configLoader func(cmd *cobra.Command) (*config.Config, logger.Logger, error)

// LoadConfigAndLogger loads configuration and builds the logger it describes.
// Log output goes to logOut, or stderr when nil.
func LoadConfigAndLogger(cfgPath, envPrefix string, flags *pflag.FlagSet, logOut io.Writer) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewViperLoader(cfgPath, envPrefix).WithFlags(flags, flagKeys).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level, err := logger.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	if logOut == nil {
		logOut = os.Stderr
	}
	log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format, Output: logOut})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	if level == logger.DebugLevel {
		log.Debug("effective configuration", "config", fmt.Sprintf("%+v", *cfg))
	}
	return cfg, log, nil
}

// withRequestID stores requestID in the command context and returns a logger
// that tags every entry with it. An empty requestID leaves both unchanged.
func withRequestID(cmd *cobra.Command, log logger.Logger, requestID string) logger.Logger {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return log
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.ContextWithRequestID(ctx, requestID)
	cmd.SetContext(ctx)
	return log.WithContext(ctx)
}

// mergeFields joins configured field names with the ones given on the command line.
func mergeFields(configured, flagged []string) []string {
	return append(append([]string{}, configured...), flagged...)
}

// builderOptions turns query configuration into builder options.
func builderOptions(cfg config.QueryConfig, log logger.Logger) []querybuilder.Option {
	opts := []querybuilder.Option{
		querybuilder.WithLogger(log),
		querybuilder.WithDefaults(querybuilder.Defaults{
			Sort:       cfg.DefaultSort,
			Page:       cfg.DefaultPage,
			Limit:      cfg.DefaultLimit,
			Projection: cfg.DefaultProjection,
		}),
	}
	if cfg.LiteralSearch {
		opts = append(opts, querybuilder.WithLiteralSearch())
	}
	return opts
}

// parseQueryArg accepts "a=1&b=2", with or without a leading '?'.
func parseQueryArg(args []string) (querybuilder.Params, error) {
	if len(args) == 0 {
		return querybuilder.Params{}, nil
	}
	return querybuilder.ParseQuery(strings.TrimPrefix(args[0], "?"))
}

func newVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:       %s\n", info.Name)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:         %s\n", info.GoVersion)
		},
	}
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
