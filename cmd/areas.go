package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAreasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "areas",
		Short: "Lists the configured areas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app appService) error {
				areas, err := app.ListAreas(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPREFECTURE\tNAME\tURL")
				for _, a := range areas {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", a.ID, a.Prefecture, a.Name, a.StartURL)
				}
				return tw.Flush()
			})
		},
	}
}
