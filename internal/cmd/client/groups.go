package client

import (
	"fmt"
	"path/filepath"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/bootstrap"
	cfgpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/config"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/listeners"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
	"github.com/spf13/cobra"
)

// NewGroupsCommand constructs the `groups` command group. Its commands open
// the data directory directly, so the server must not be running on it.
func NewGroupsCommand() *cobra.Command {
	groupsCmd := &cobra.Command{Use: "groups", Short: "Reader group provisioning (offline)"}
	groupsCmd.AddCommand(newGroupsEnsureCommand())
	return groupsCmd
}

// subscriptionsFor lists the (stream, group) pairs the server would bootstrap
// for service: one per route of its listener table.
func subscriptionsFor(service string) []bootstrap.Subscription {
	var subs []bootstrap.Subscription
	for _, r := range listeners.New(listeners.Deps{}).Table(service) {
		subs = append(subs, bootstrap.Subscription{Stream: events.StreamKeyFor(r.Event), Group: events.GroupName(service)})
	}
	return subs
}

// newGroupsEnsureCommand constructs the `groups ensure` subcommand.
func newGroupsEnsureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create the reader groups of one or more services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, _ := cmd.Flags().GetStringSlice("service")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			if len(services) == 0 {
				return fmt.Errorf("--service is required")
			}
			if dataDir == "" {
				dataDir = cfgpkg.DefaultDataDir()
			}
			logger := logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
			db, err := pebblestore.Open(pebblestore.Options{DataDir: filepath.Join(dataDir, "store"), Fsync: pebblestore.FsyncModeAlways, Logger: logger})
			if err != nil {
				return err
			}
			defer db.Close()
			b := bootstrap.New(bootstrap.StoreGroups{Store: eventlog.NewStore(db)}, logger)

			out := cmd.OutOrStdout()
			failed := 0
			for _, svc := range services {
				subs := subscriptionsFor(svc)
				if len(subs) == 0 {
					_, _ = fmt.Fprintf(out, "%s: no subscriptions\n", svc)
					continue
				}
				for _, s := range subs {
					if err := b.EnsureGroup(cmd.Context(), s.Stream, s.Group); err != nil {
						failed++
						_, _ = fmt.Fprintf(out, "%s %s: %v\n", s.Stream, s.Group, err)
						continue
					}
					_, _ = fmt.Fprintf(out, "%s %s: ready\n", s.Stream, s.Group)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d group(s) could not be created", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("service", nil, "Service name (repeat or comma-separate)")
	cmd.Flags().String("data-dir", "", "Data directory (defaults to the OS application data directory)")
	return cmd
}
