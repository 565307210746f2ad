// Package client contains Cobra CLI commands for the event log server.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	transports "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/cmd/client/transports"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	"github.com/spf13/cobra"
)

// NewEventsCommand constructs the `events` command group and subcommands.
func NewEventsCommand(baseURL BaseURLFunc) *cobra.Command {
	eventsCmd := &cobra.Command{Use: "events", Short: "Event stream operations"}
	eventsCmd.AddCommand(
		newEventsPublishCommand(baseURL),
		newEventsStreamsCommand(baseURL),
		newEventsPendingCommand(baseURL),
		newEventsDLQCommand(baseURL),
		newEventsTailCommand(baseURL),
		newEventsCatalogCommand(),
	)
	return eventsCmd
}

// newEventsPublishCommand constructs the `events publish` subcommand.
func newEventsPublishCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			typ, _ := cmd.Flags().GetString("type")
			source, _ := cmd.Flags().GetString("source")
			raw, _ := cmd.Flags().GetString("data")
			if _, ok := events.Lookup(events.Name(typ)); !ok {
				return fmt.Errorf("unknown event type %q; see `events catalog`", typ)
			}
			data, err := readData(raw)
			if err != nil {
				return err
			}
			var obj map[string]json.RawMessage
			if json.Unmarshal(data, &obj) != nil || obj == nil {
				return errors.New("--data must be a JSON object")
			}
			res, err := transportFor(baseURL).Publish(cmd.Context(), typ, source, data)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s\n", res.RecordID, res.Stream)
			return nil
		},
	}
	cmd.Flags().String("type", "", "Event type, e.g. CHAPTER_COMPLETED")
	cmd.Flags().String("source", "cli", "Producing service recorded in the envelope")
	cmd.Flags().String("data", "{}", "Payload JSON object, or @file")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// newEventsStreamsCommand constructs the `events streams` subcommand.
func newEventsStreamsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streams",
		Short: "List streams with their reader groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := transportFor(baseURL).Streams(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "STREAM\tLAST ID\tGROUP\tPENDING")
			for _, s := range list {
				if len(s.Groups) == 0 {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t-\t-\n", s.Stream, s.LastID)
				}
				for _, g := range s.Groups {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.Stream, s.LastID, g.Name, g.Pending)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Print JSON instead of a table")
	return cmd
}

// newEventsPendingCommand constructs the `events pending` subcommand.
func newEventsPendingCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List a group's unacknowledged entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req transports.PendingRequest
			req.Stream, _ = cmd.Flags().GetString("stream")
			req.Type, _ = cmd.Flags().GetString("type")
			req.Group, _ = cmd.Flags().GetString("group")
			req.Service, _ = cmd.Flags().GetString("service")
			if req.Stream == "" && req.Type == "" {
				return errors.New("one of --stream or --type is required")
			}
			if req.Group == "" && req.Service == "" {
				return errors.New("one of --group or --service is required")
			}
			items, err := transportFor(baseURL).Pending(cmd.Context(), req)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tCONSUMER\tDELIVERIES\tIDLE MS")
			for _, p := range items {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", p.ID, p.Consumer, p.Deliveries, p.IdleMs)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("stream", "", "Stream key")
	cmd.Flags().String("type", "", "Event type (resolves the stream)")
	cmd.Flags().String("group", "", "Reader group")
	cmd.Flags().String("service", "", "Service (resolves the group)")
	return cmd
}

// newEventsDLQCommand constructs the `events dlq` subcommand.
func newEventsDLQCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Print dead-lettered entries of a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			typ, _ := cmd.Flags().GetString("type")
			limit, _ := cmd.Flags().GetInt("limit")
			if stream == "" && typ == "" {
				return errors.New("one of --stream or --type is required")
			}
			entries, err := transportFor(baseURL).DeadLetters(cmd.Context(), stream, typ, limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("stream", "", "Source stream key (without the dead-letter suffix)")
	cmd.Flags().String("type", "", "Event type (resolves the stream)")
	cmd.Flags().Int("limit", 100, "Maximum entries")
	return cmd
}

// newEventsTailCommand constructs the `events tail` subcommand.
func newEventsTailCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow a stream without a group (no acks)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req transports.TailRequest
			req.Stream, _ = cmd.Flags().GetString("stream")
			req.Type, _ = cmd.Flags().GetString("type")
			req.From, _ = cmd.Flags().GetString("from")
			req.Limit, _ = cmd.Flags().GetInt("limit")
			if req.Stream == "" && req.Type == "" {
				return errors.New("one of --stream or --type is required")
			}
			if req.From != "latest" && req.From != "earliest" {
				return errors.New("invalid --from; use latest|earliest")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return transportFor(baseURL).Tail(cmd.Context(), req, func(e transports.Entry) error {
				return enc.Encode(e)
			})
		},
	}
	cmd.Flags().String("stream", "", "Stream key")
	cmd.Flags().String("type", "", "Event type (resolves the stream)")
	cmd.Flags().String("from", "latest", "Start position: latest|earliest")
	cmd.Flags().Int("limit", 0, "Stop after N entries (0 = follow)")
	return cmd
}

// newEventsCatalogCommand prints the built-in catalog. It needs no server.
func newEventsCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List known event types with their streams and consumers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "TYPE\tSTREAM\tCONSUMERS")
			for _, d := range events.All() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%v\n", d.Name, d.StreamKey(), d.Consumers)
			}
			return tw.Flush()
		},
	}
}
