package cli

import (
	"context"
	"fmt"

	"github.com/nimburion/querykit/pkg/health"
	"github.com/spf13/cobra"
)

func newPingCommand(load configLoader) *cobra.Command {
	var output, check string

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check MongoDB connectivity",
		Example: `  querykit ping
  querykit ping --check mongodb -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			adapter, _, err := connectMongo(cfg, log)
			if err != nil {
				return err
			}
			defer adapter.Close()

			registry := health.NewRegistry()
			registry.Register(health.NewAdapterChecker("mongodb", adapter, cfg.MongoDB.OperationTimeout))
			result, status, err := checkHealth(cmd.Context(), registry, check)
			if err != nil {
				return err
			}
			log.Info("health checked", "check", check, "status", status)

			if err := render(cmd.OutOrStdout(), format, result); err != nil {
				return err
			}
			if status != health.StatusHealthy {
				return fmt.Errorf("health check failed: %s", status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", string(outputJSON), "output format (json, yaml)")
	cmd.Flags().StringVar(&check, "check", "", "run only the named check instead of all of them")
	return cmd
}

// checkHealth runs every registered check, or only the one called name.
func checkHealth(ctx context.Context, registry *health.Registry, name string) (any, health.Status, error) {
	if name == "" {
		result := registry.Check(ctx)
		return result, result.Status, nil
	}
	result, err := registry.CheckOne(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return result, result.Status, nil
}
