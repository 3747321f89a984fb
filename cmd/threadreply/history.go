package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/store"
)

func historyCmd(e *env) *cobra.Command {
	var (
		limit     int
		messageID string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show messages sent from this machine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			journal, err := store.NewSQLiteStore(e.cfg.Journal.Path)
			if err != nil {
				return fmt.Errorf("opening journal: %w", err)
			}
			defer journal.Close()

			var replies []model.SentReply
			if messageID != "" {
				replies, err = journal.RepliesTo(cmd.Context(), messageID)
			} else {
				replies, err = journal.ListReplies(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), replies)
			}
			if len(replies) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing sent yet.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SENT\tTO\tSUBJECT\tIN-REPLY-TO\tVIA")
			for _, r := range replies {
				inReplyTo := r.InReplyTo
				if inReplyTo == "" {
					inReplyTo = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.SentAt.Local().Format("2006-01-02 15:04"), r.To, r.Subject, inReplyTo, r.Dispatcher)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries (0 for all)")
	cmd.Flags().StringVar(&messageID, "replies-to", "", "Only entries threaded onto this Message-ID")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON output")
	return cmd
}
