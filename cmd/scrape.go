package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/progress"
	memorypublisher "github.com/JakeFAU/area-listing-scraper/internal/publisher/memory"
	"github.com/JakeFAU/area-listing-scraper/internal/server"
)

const localTopic = "local"

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape <area_id>",
		Short: "Runs one job and prints its events",
		Long: `Runs a job for the area in the foreground, printing one line per event.
Interrupting the command cancels the job. The job token is printed first so
that "scraper cancel <token>" can stop the job from another shell.`,
		Args: cobra.ExactArgs(1),
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, args []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	var opts []server.Option
	var notes *memorypublisher.Publisher
	if rt.cfg.PubSub.TopicName == "" {
		notes = memorypublisher.New()
		opts = append(opts, server.WithPublisher(notes, localTopic))
	}

	return withApp(cmd, func(ctx context.Context, app appService) error {
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		final := app.Run(ctx, args[0], progress.EmitterFunc(func(evt progress.Event) {
			printEvent(out, evt)
		}))
		if notes != nil {
			for _, msg := range notes.Topic(localTopic) {
				rt.logger.Info("job notification", zap.String("id", msg.ID), zap.ByteString("payload", msg.Data))
			}
		}
		switch final.Type {
		case progress.TypeError, progress.TypeAborted:
			return fmt.Errorf("job ended with %s", final.Type)
		default:
			return nil
		}
	}, opts...)
}

func printEvent(w io.Writer, evt progress.Event) {
	data, err := evt.Data()
	if err != nil {
		data = err.Error()
	}
	fmt.Fprintf(w, "%-12s %s\n", evt.Type, data)
}
