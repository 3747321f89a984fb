package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/thread-reply/internal/app"
	"github.com/nhle/thread-reply/internal/source"
	"github.com/nhle/thread-reply/internal/source/gmail"
	"github.com/nhle/thread-reply/internal/source/mailbox"
	"github.com/nhle/thread-reply/internal/store"
)

func checkCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the mailbox, API, sender and journal settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.requireAccount(); err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			failed := false

			report := func(name string, detail string, err error) {
				if err != nil {
					failed = true
					fmt.Fprintf(out, "✗ %-8s %v\n", name, err)
					return
				}
				fmt.Fprintf(out, "✓ %-8s %s\n", name, detail)
			}

			provider := source.ProviderFor(e.cfg.Account.Email, e.cfg.Account.GoogleDomains)
			fmt.Fprintf(out, "account  %s (%s)\n", e.cfg.Account.Email, provider)

			mcfg, err := app.MailboxConfig(e.cfg)
			if err == nil {
				var selected string
				selected, err = mailbox.New(mcfg, e.log).ValidateConnection(ctx)
				report("imap", fmt.Sprintf("%s, searching %q", mcfg.Host, selected), err)
			} else {
				report("imap", "", err)
			}

			if e.cfg.Account.UseProgrammaticSearch && provider == source.ProviderGoogle {
				_, err := gmail.NewService(ctx, e.cfg.Gmail.CredentialsPath, e.cfg.Gmail.TokenPath)
				report("gmail", "token cached", err)
			}

			d, err := app.BuildDispatcher(ctx, e.cfg, nil, e.log)
			if err == nil {
				report("sender", d.Name(), nil)
			} else {
				report("sender", "", err)
			}

			checkJournal(e, report)

			if failed {
				return fmt.Errorf("some checks failed")
			}
			return nil
		},
	}
}

func checkJournal(e *env, report func(string, string, error)) {
	journal, err := store.NewSQLiteStore(e.cfg.Journal.Path)
	if err != nil {
		report("journal", "", err)
		return
	}
	defer journal.Close()
	report("journal", e.cfg.Journal.Path, nil)
}
