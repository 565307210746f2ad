package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command holding every client command
// group.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "edu-events",
		Short: "Event log client commands",
	}
	root.AddCommand(
		NewEventsCommand(baseURL),
		NewAnnounceCommand(baseURL),
		NewGroupsCommand(),
		NewHealthCommand(),
	)
	return root
}
