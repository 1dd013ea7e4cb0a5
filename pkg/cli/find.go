package cli

import (
	"fmt"
	"io"

	"github.com/nimburion/querykit/pkg/config"
	"github.com/nimburion/querykit/pkg/observability/logger"
	"github.com/nimburion/querykit/pkg/observability/metrics"
	"github.com/nimburion/querykit/pkg/querybuilder"
	"github.com/nimburion/querykit/pkg/store/mongodb"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
)

func newFindCommand(load configLoader) *cobra.Command {
	var (
		searchFields   []string
		objectIDFields []string
		numberFields   []string
		output         string
		printMetrics   bool
	)

	cmd := &cobra.Command{
		Use:   "find <collection> [query]",
		Short: "Run a list query against MongoDB and print data and meta",
		Example: `  querykit find products 'searchTerm=shoe&category=shoes&sort=-price&page=2&limit=5' --search-fields name,description
  querykit find orders 'customer=507f1f77bcf86cd799439011&skipLimit=YES' --object-id-fields customer -o yaml
  querykit find products 'price=25' --number-fields price --request-id 7f3c`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			params, err := parseQueryArg(args[1:])
			if err != nil {
				return err
			}

			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			adapter, reg, err := connectMongo(cfg, log)
			if err != nil {
				return err
			}
			defer adapter.Close()

			collection := args[0]
			query := mongodb.NewQuery[bson.M](adapter, collection,
				mongodb.WithObjectIDFields(mergeFields(cfg.MongoDB.ObjectIDFields, objectIDFields)...),
				mongodb.WithNumberFields(mergeFields(cfg.MongoDB.NumberFields, numberFields)...),
			)

			res, err := querybuilder.New[bson.M](query, params, builderOptions(cfg.Query, log)...).
				Search(searchFields...).
				Filter().
				Sort().
				Paginate().
				Fields().
				Execute(cmd.Context())
			if err != nil {
				return fmt.Errorf("find %s: %w", collection, err)
			}
			log.Info("query executed", "collection", collection, "returned", len(res.Data), "total", res.Meta.Total)

			if err := render(cmd.OutOrStdout(), format, res); err != nil {
				return err
			}
			if printMetrics {
				return writeMetrics(cmd.ErrOrStderr(), reg)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&searchFields, "search-fields", nil, "fields matched against searchTerm")
	cmd.Flags().StringSliceVar(&objectIDFields, "object-id-fields", nil, "fields whose hex values are cast to ObjectIDs")
	cmd.Flags().StringSliceVar(&numberFields, "number-fields", nil, "fields whose numeric string values are cast to numbers")
	cmd.Flags().StringVarP(&output, "output", "o", string(outputJSON), "output format (json, yaml)")
	cmd.Flags().BoolVar(&printMetrics, "print-metrics", false, "write store metrics to stderr after the query")
	return cmd
}

// connectMongo opens an adapter reporting to a fresh metrics registry.
func connectMongo(cfg *config.Config, log logger.Logger) (*mongodb.Adapter, *metrics.Registry, error) {
	if err := config.RequireMongoDB(cfg); err != nil {
		return nil, nil, err
	}
	reg := metrics.NewRegistry()
	storeMetrics, err := metrics.NewStoreMetrics(reg)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := mongodb.NewAdapter(mongodb.Config{
		URL:              cfg.MongoDB.URL,
		Database:         cfg.MongoDB.Database,
		ConnectTimeout:   cfg.MongoDB.ConnectTimeout,
		OperationTimeout: cfg.MongoDB.OperationTimeout,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return adapter.WithMetrics(storeMetrics), reg, nil
}

// writeMetrics writes the querykit store metric families in text exposition format.
func writeMetrics(w io.Writer, reg *metrics.Registry) error {
	families, err := reg.Gatherer().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !metrics.IsStoreMetric(mf.GetName()) {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}
