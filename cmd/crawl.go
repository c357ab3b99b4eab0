package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

type crawlOptions struct {
	creators []string
	jobID    string
	headless bool
	asJSON   bool
}

func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl job in process",
		Long: `Crawls the given creators with the accounts whose login is currently
valid and prints the aggregated report.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.creators, "creators", nil, "comma separated creator IDs")
	cmd.Flags().StringVar(&opts.jobID, "job-id", "", "caller supplied job ID")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "run the browser headless")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the full report as JSON")
	_ = cmd.MarkFlagRequired("creators")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	targets := make([]string, 0, len(opts.creators))
	for _, id := range opts.creators {
		if id = strings.TrimSpace(id); id != "" {
			targets = append(targets, id)
		}
	}

	report, err := appInstance.Submit(cmd.Context(), crawler.JobRequest{
		JobID:    opts.jobID,
		Targets:  targets,
		Headless: opts.headless,
	})
	out := cmd.OutOrStdout()
	if err != nil {
		if errors.Is(err, crawler.ErrRejected) {
			color.New(color.FgYellow).Fprintf(out, "rejected: %v\n", err)
		} else {
			color.New(color.FgRed).Fprintf(out, "failed: %v\n", err)
		}
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, report)
	return nil
}

func printReport(out io.Writer, report crawler.Report) {
	color.New(color.FgGreen, color.Bold).Fprintf(out, "job %s: %d notes in %dms\n", report.RunID, report.Total, report.ElapsedMs)
	for _, rec := range report.List {
		fmt.Fprintf(out, "  %s  %s  %s\n", rec.NotePublishTime, rec.NoteID, rec.NoteTitle)
	}
	if len(report.ErrorInfos) == 0 {
		return
	}
	keys := make([]string, 0, len(report.ErrorInfos))
	for k := range report.ErrorInfos {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	red := color.New(color.FgRed)
	for _, k := range keys {
		red.Fprintf(out, "  error %s: %s\n", k, report.ErrorInfos[k])
	}
}
