package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/thread-reply/internal/app"
	"github.com/nhle/thread-reply/internal/model"
)

func searchTimeout(e *env) time.Duration {
	return time.Duration(e.cfg.Search.TimeoutSec) * time.Second
}

func searchCmd(e *env) *cobra.Command {
	var (
		subject string
		to      string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List prior messages a draft could reply to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.requireAccount(); err != nil {
				return err
			}
			records, err := findThreads(cmd.Context(), e, subject, to)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Draft subject")
	cmd.Flags().StringVar(&to, "to", "", "Draft recipient")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON output")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func findThreads(ctx context.Context, e *env, subject, to string) ([]model.ThreadRecord, error) {
	engine, err := app.BuildEngine(ctx, e.cfg, e.log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, searchTimeout(e))
	defer cancel()
	return engine.FindThreads(ctx, subject, to)
}

func printRecords(w io.Writer, records []model.ThreadRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No prior messages found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSENT\tSUBJECT\tTOKEN\tMESSAGE-ID")
	for i, r := range records {
		sent := r.SentAt.Format("2006-01-02 15:04")
		if r.DateSource == model.DateDefaulted {
			sent += "?"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, sent, r.Subject, r.CorrelationToken, r.MessageID)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
