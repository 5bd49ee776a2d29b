package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat/internal/service"
)

var (
	statsJSON bool
	resetYes  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		stats, err := application.Stats.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if statsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		printStats(out, stats)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every document from the vector index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		if !resetYes {
			fmt.Fprint(out, "Delete all documents from the index? [y/N] ")
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}
		if err := application.Index.Reset(cmd.Context()); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
		fmt.Fprintln(out, "Index cleared.")
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print statistics as JSON")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip the confirmation prompt")
}

func printStats(out io.Writer, s service.Stats) {
	fmt.Fprintf(out, "Knowledge Base\n")
	fmt.Fprintf(out, "═══════════════════════════════════════\n")
	fmt.Fprintf(out, "Documents:       %d\n", s.TotalDocuments)
	fmt.Fprintf(out, "Jobs:            %d\n", s.TotalJobs)
	fmt.Fprintf(out, "Top K:           %d\n", s.TopK)
	fmt.Fprintf(out, "Max distance:    %.2f\n", s.MaxDistance)
	fmt.Fprintf(out, "Model:           %s\n", s.Model)
	fmt.Fprintf(out, "Embedding model: %s\n", s.EmbeddingModel)
	segmentation := "character approximation"
	if s.TokenizerAvailable {
		segmentation = "tokenizer"
	}
	fmt.Fprintf(out, "Segmentation:    %s\n", segmentation)

	if len(s.Metrics.Operations) == 0 {
		return
	}
	fmt.Fprintf(out, "\nOperations (uptime %.1fs)\n", s.Metrics.UptimeSeconds)
	names := make([]string, 0, len(s.Metrics.Operations))
	for name := range s.Metrics.Operations {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		op := s.Metrics.Operations[name]
		fmt.Fprintf(out, "  %-16s %6d calls  %4d errors  avg %8.1fms", name, op.Count, op.Errors, op.AvgTimeMs)
		if op.TotalInputTokens != nil && op.TotalOutputTokens != nil {
			fmt.Fprintf(out, "  tokens %d in / %d out", *op.TotalInputTokens, *op.TotalOutputTokens)
		}
		fmt.Fprintln(out)
	}
}
