package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replaces the area table from a CSV file",
		Long: `Loads areas from a CSV file with a "prefecture,name,url" header and
replaces the contents of the area store. Defaults to areas.csv_path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if csvPath == "" {
				csvPath = rt.cfg.Areas.CSVPath
			}
			if csvPath == "" {
				return errors.New("no CSV given: pass --csv or set areas.csv_path")
			}
			return withApp(cmd, func(ctx context.Context, app appService) error {
				n, err := app.SeedAreas(ctx, csvPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d areas from %s\n", n, csvPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "area CSV file")
	return cmd
}
