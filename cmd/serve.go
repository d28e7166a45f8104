package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP server",
		Long: `Serves the area list, the Server-Sent Events job stream, cancellation
and report downloads. Stale cancellation signals are swept at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app appService) error {
				return app.Serve(ctx)
			})
		},
	}
}
