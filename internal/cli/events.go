package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/app"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/event"
	pkgkafka "github.com/ddmuddatsir/marketin-website-sub000/pkg/kafka"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/logger"
)

// EventsOptions holds flags for the events commands.
type EventsOptions struct {
	*RootOptions
	Group         string
	FromBeginning bool
}

// NewEventsCommand creates the events command group.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect sync events published to Kafka",
	}

	tail := &cobra.Command{
		Use:   "tail",
		Short: "Follow confirmed, rolled back and purged events",
		Long: `Follow the sync events every cartsync agent publishes when
KAFKA_ENABLED is set. Stops on SIGINT.

Examples:
  cartsync events tail
  cartsync events tail --from-beginning --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsTail(cmd, opts)
		},
	}
	tail.Flags().StringVar(&opts.Group, "group", "", "consumer group (default: a fresh group per run)")
	tail.Flags().BoolVar(&opts.FromBeginning, "from-beginning", false, "start at the oldest retained event")
	cmd.AddCommand(tail)

	return cmd
}

func runEventsTail(cmd *cobra.Command, opts *EventsOptions) error {
	cfg, err := opts.loadConfig(nil)
	if err != nil {
		return err
	}
	group := opts.Group
	if group == "" {
		group = fmt.Sprintf("cartsync-tail-%d", time.Now().UnixNano())
	}

	log := logger.New(app.ServiceName, cfg.LogLevel)
	out := cmd.OutOrStdout()
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:       cfg.KafkaBrokers,
		GroupID:       group,
		Topics:        event.Topics(),
		MinBytes:      1,
		MaxBytes:      1 << 20,
		FromBeginning: opts.FromBeginning,
	}, func(_ context.Context, evt *pkgkafka.Event) error {
		return printEvent(out, opts.Format, evt)
	}, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "create consumer", err)
	}
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		return WrapExitError(ExitFailure, "consume events", err)
	}
	return nil
}

func printEvent(w io.Writer, format string, evt *pkgkafka.Event) error {
	if format == "json" {
		return writeJSON(w, evt)
	}
	_, err := fmt.Fprintf(w, "%s  %-32s user=%s  %s\n",
		evt.Timestamp.Format(time.RFC3339), evt.EventType, evt.AggregateID, string(evt.Data))
	return err
}
