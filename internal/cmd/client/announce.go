package client

import (
	"errors"
	"fmt"

	transports "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// NewAnnounceCommand constructs the `announce` command. The server stores
// the announcement and queues its event in one transaction.
func NewAnnounceCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Publish a system announcement to every connected user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var a transports.Announcement
			a.Title, _ = cmd.Flags().GetString("title")
			a.Content, _ = cmd.Flags().GetString("content")
			a.TargetAudience, _ = cmd.Flags().GetString("audience")
			if a.Title == "" {
				return errors.New("--title is required")
			}
			res, err := transportFor(baseURL).Announce(cmd.Context(), a)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "announcement %d queued as event %s\n", res.Announcement.ID, res.EventID)
			return nil
		},
	}
	cmd.Flags().String("title", "", "Announcement title")
	cmd.Flags().String("content", "", "Announcement body")
	cmd.Flags().String("audience", "", "Target audience (default ALL)")
	return cmd
}
