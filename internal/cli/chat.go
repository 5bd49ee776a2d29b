package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat/internal/service"
)

var (
	chatSession string
	chatClient  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold a conversation with the knowledge base",
	Long: `Start an interactive conversation. Each line you type is answered from
the knowledge base with the earlier turns as history. The transcript is
stored, so --session resumes it later.

Type "exit" or press Ctrl+D to leave.

Examples:
  sitechat chat
  sitechat chat --client acme
  sitechat chat --session 5f0c...`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "resume this session")
	chatCmd.Flags().StringVarP(&chatClient, "client", "c", "", "only search this tenant's documents")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())
	sessionID := chatSession

	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		resp, err := application.Chat.Chat(ctx, service.ChatRequest{
			Message:   line,
			SessionID: sessionID,
			ClientID:  chatClient,
		})
		if err != nil {
			return err
		}
		sessionID = resp.SessionID
		printAnswer(out, resp.Answer)
		fmt.Fprintln(out)
	}

	if sessionID != "" {
		fmt.Fprintf(out, "Session %s saved.\n", sessionID)
	}
	return in.Err()
}
