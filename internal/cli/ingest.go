package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/service"
)

var (
	ingestFiles    []string
	ingestDir      string
	ingestMaxPages int
	ingestMaxDepth int
	ingestReset    bool
	ingestClient   string
	ingestNoUI     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [url]",
	Short: "Crawl a website or extract files into the knowledge base",
	Long: `Crawl a website starting at url, or extract local .txt, .pdf and Markdown files,
and store the chunked, embedded text in the vector index.

A url without a scheme is fetched over https. The crawl stays on the
seed's site and stops at --max-pages or --max-depth.

Examples:
  sitechat ingest example.com
  sitechat ingest https://docs.example.com --max-pages 200 --client acme
  sitechat ingest --file handbook.pdf --file faq.txt
  sitechat ingest --dir ./exports --reset`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVarP(&ingestFiles, "file", "f", nil, "file to extract (repeatable)")
	ingestCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "extract every .txt, .pdf and .md file below this directory")
	ingestCmd.Flags().IntVar(&ingestMaxPages, "max-pages", service.DefaultMaxPages, "maximum pages to crawl (1-500)")
	ingestCmd.Flags().IntVar(&ingestMaxDepth, "max-depth", service.DefaultMaxDepth, "maximum link depth (1-10)")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "clear the whole index first")
	ingestCmd.Flags().StringVarP(&ingestClient, "client", "c", "", "tenant the documents belong to")
	ingestCmd.Flags().BoolVar(&ingestNoUI, "no-progress", false, "print a summary instead of the progress display")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req := service.IngestRequest{
		Files:    ingestFiles,
		MaxPages: ingestMaxPages,
		MaxDepth: ingestMaxDepth,
		Reset:    ingestReset,
		ClientID: ingestClient,
	}
	if len(args) == 1 {
		req.URL = args[0]
	}
	if ingestDir != "" {
		files, err := findDocuments(ingestDir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no .txt, .pdf or .md files found below %s", ingestDir)
		}
		req.Files = append(req.Files, files...)
	}

	job, err := application.Ingest.Start(ctx, req)
	if err != nil {
		return err
	}

	// The job runs in this process, so the command waits for it either way.
	if !ingestNoUI && term.IsTerminal(int(os.Stdout.Fd())) {
		return RunJobProgress(ctx, application.Ingest.Jobs(), job)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Started job %s (%s)\n", job.ID, job.Type)
	done, err := application.Ingest.Wait(ctx, job.ID, pollInterval)
	if err != nil {
		return fmt.Errorf("wait for job %s: %w", job.ID, err)
	}
	printJob(out, done)
	if done.Status == models.JobStatusFailed {
		return fmt.Errorf("job failed: %s", done.Error)
	}
	return nil
}

// findDocuments lists extractable files below root in lexical order.
func findDocuments(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path must be a directory: %s", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".txt", ".pdf", ".md", ".markdown":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}
	return files, nil
}
