package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat/internal/service"
)

var (
	askClient       string
	askSystemPrompt string
	askJSON         bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and get an answer grounded in the knowledge base",
	Long: `Ask a question about the ingested content. The most similar chunks are
retrieved, filtered by distance and passed to the language model as
numbered sources.

Examples:
  sitechat ask "What are your opening hours?"
  sitechat ask "How much does the pro plan cost?" --client acme
  sitechat ask "Summarise the refund policy" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askClient, "client", "c", "", "only search this tenant's documents")
	askCmd.Flags().StringVar(&askSystemPrompt, "system-prompt", "", "replace the configured system prompt")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	answer := application.Search.Answer(cmd.Context(), service.AnswerRequest{
		Query:        args[0],
		ClientID:     askClient,
		SystemPrompt: askSystemPrompt,
	})

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}
	printAnswer(out, answer)
	return nil
}

func printAnswer(out io.Writer, answer service.Answer) {
	fmt.Fprintln(out, answer.Text)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSources:")
	for i, src := range answer.Sources {
		fmt.Fprintf(out, "  [%d] %s - %s\n", i+1, src.Title, src.URL)
	}
}
