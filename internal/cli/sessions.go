package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	sessionsClient string
	sessionsLimit  int
	sessionsDelete bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "List, show or delete chat sessions",
	Long: `List stored chat sessions, show one transcript, or delete every session
of a client.

Examples:
  sitechat sessions --client acme
  sitechat sessions 5f0c...
  sitechat sessions --client acme --delete`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVarP(&sessionsClient, "client", "c", "", "only this tenant's sessions")
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "max sessions to list")
	sessionsCmd.Flags().BoolVar(&sessionsDelete, "delete", false, "delete every session of --client")
}

func runSessions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if sessionsDelete {
		n, err := application.Chat.DeleteSessions(ctx, sessionsClient)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d sessions\n", n)
		return nil
	}

	if len(args) == 1 {
		s, err := application.Chat.Session(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Session %s (updated %s)\n\n", s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
		for _, m := range s.Messages {
			fmt.Fprintf(out, "%s: %s\n\n", m.Role, m.Content)
		}
		return nil
	}

	list, err := application.Chat.Sessions(ctx, sessionsClient, sessionsLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No sessions found")
		return nil
	}
	fmt.Fprintf(out, "%-36s %-12s %-8s %s\n", "ID", "CLIENT", "MESSAGES", "UPDATED")
	for _, s := range list {
		fmt.Fprintf(out, "%-36s %-12s %-8d %s\n", s.ID, s.ClientID, len(s.Messages), s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
