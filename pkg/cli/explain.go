package cli

import (
	"fmt"

	"github.com/nimburion/querykit/pkg/querybuilder"
	"github.com/nimburion/querykit/pkg/store/memory"
	"github.com/nimburion/querykit/pkg/store/mongodb"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
)

// Explanation is the output of the explain command.
type Explanation struct {
	Params      querybuilder.Params `json:"params"`
	Plan        memory.Plan         `json:"plan"`
	MongoFilter bson.M              `json:"mongoFilter"`
}

func newExplainCommand(load configLoader) *cobra.Command {
	var (
		collection     string
		searchFields   []string
		objectIDFields []string
		numberFields   []string
		output         string
	)

	cmd := &cobra.Command{
		Use:   "explain [query]",
		Short: "Show how a query string translates into filter, sort, paging and projection",
		Example: `  querykit explain 'searchTerm=shoe&category=507f1f77bcf86cd799439011&sort=-price,name' --search-fields name --object-id-fields category`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			params, err := parseQueryArg(args)
			if err != nil {
				return err
			}
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}

			numbers := mergeFields(cfg.MongoDB.NumberFields, numberFields)
			base := memory.NewQuery[map[string]any](memory.NewCollection(collection), memory.WithNumberFields(numbers...))
			b := querybuilder.New[map[string]any](base, params, builderOptions(cfg.Query, log)...).
				Search(searchFields...).
				Filter().
				Sort().
				Paginate().
				Fields()

			q, ok := b.Query().(*memory.Query[map[string]any])
			if !ok {
				return fmt.Errorf("unexpected query type %T", b.Query())
			}
			plan := q.Plan()

			mongoQuery := mongodb.NewQuery[bson.M](nil, collection,
				mongodb.WithObjectIDFields(mergeFields(cfg.MongoDB.ObjectIDFields, objectIDFields)...),
				mongodb.WithNumberFields(numbers...),
			).Find(plan.Filter).(*mongodb.Query[bson.M])
			log.Info("query explained", "collection", collection, "conditions", len(plan.Filter))

			return render(cmd.OutOrStdout(), format, Explanation{
				Params:      params,
				Plan:        plan,
				MongoFilter: mongoQuery.BSONFilter(),
			})
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "documents", "collection name shown in the plan")
	cmd.Flags().StringSliceVar(&searchFields, "search-fields", nil, "fields matched against searchTerm")
	cmd.Flags().StringSliceVar(&objectIDFields, "object-id-fields", nil, "fields whose hex values are cast to ObjectIDs")
	cmd.Flags().StringSliceVar(&numberFields, "number-fields", nil, "fields whose numeric string values are cast to numbers")
	cmd.Flags().StringVarP(&output, "output", "o", string(outputJSON), "output format (json, yaml)")
	return cmd
}
