package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/thread-reply/internal/app"
	"github.com/nhle/thread-reply/internal/dispatch"
	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/store"
	appsync "github.com/nhle/thread-reply/internal/sync"
	"github.com/nhle/thread-reply/internal/thread"
)

type replyOptions struct {
	subject   string
	to        string
	body      string
	bodyFile  string
	attach    []string
	pick      int
	messageID string
	rework    bool
	newThread bool
	dryRun    bool
}

func replyCmd(e *env) *cobra.Command {
	o := &replyOptions{}

	cmd := &cobra.Command{
		Use:   "reply",
		Short: "Send a draft, threaded onto a prior message when one is picked",
		Long: `reply searches for prior messages to the recipient under the draft
subject and sends the draft as a reply to the one chosen with --pick (its
position in the search listing) or --message-id. Without either the draft
is sent as a new message.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.requireAccount(); err != nil {
				return err
			}
			return runReply(cmd, e, o)
		},
	}

	cmd.Flags().StringVar(&o.subject, "subject", "", "Draft subject")
	cmd.Flags().StringVar(&o.to, "to", "", "Recipient address")
	cmd.Flags().StringVar(&o.body, "body", "", "Message body")
	cmd.Flags().StringVar(&o.bodyFile, "body-file", "", "Read the message body from a file")
	cmd.Flags().StringSliceVar(&o.attach, "attach", nil, "Attachment path (repeatable)")
	cmd.Flags().IntVar(&o.pick, "pick", 0, "Reply to the Nth search result (1 is the most recent)")
	cmd.Flags().StringVar(&o.messageID, "message-id", "", "Reply to the search result with this Message-ID")
	cmd.Flags().BoolVar(&o.rework, "rework", false, "Append the subject marker to the subject")
	cmd.Flags().BoolVar(&o.newThread, "new", false, "Skip the search and send a new message")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Print the composed message instead of sending it")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	cmd.MarkFlagsMutuallyExclusive("pick", "message-id", "new")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runReply(cmd *cobra.Command, e *env, o *replyOptions) error {
	ctx := cmd.Context()

	body := o.body
	if o.bodyFile != "" {
		data, err := os.ReadFile(o.bodyFile)
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		body = string(data)
	}

	var finder appsync.Finder = noSearch{}
	if !o.newThread {
		engine, err := app.BuildEngine(ctx, e.cfg, e.log)
		if err != nil {
			return err
		}
		finder = engine
	}

	coord := appsync.New(finder, thread.NewSelection(), appsync.Options{
		Timeout:       searchTimeout(e),
		SubjectMarker: e.cfg.Search.SubjectMarker,
		Logger:        e.log,
	})

	if _, err := coord.StartSearch(o.subject, o.to); err != nil {
		return err
	}
	result, err := coord.Await(ctx)
	if err != nil {
		return err
	}
	coord.Apply(result)
	if result.Err != nil {
		return result.Err
	}

	sel := coord.Selection()
	switch {
	case o.pick > 0:
		if err := sel.Toggle(o.pick - 1); err != nil {
			return err
		}
	case o.messageID != "":
		if err := sel.ToggleID(o.messageID); err != nil {
			return err
		}
	case len(result.Records) > 0:
		fmt.Fprintf(cmd.ErrOrStderr(),
			"%d prior messages found; sending as a new message (use --pick or --message-id to reply)\n",
			len(result.Records))
	}

	msg, err := coord.PrepareReply(appsync.Draft{
		To:          o.to,
		Subject:     o.subject,
		Body:        body,
		Attachments: o.attach,
		Rework:      o.rework,
	})
	if err != nil {
		return err
	}

	var outbox *dispatch.Outbox
	if o.dryRun {
		outbox, err = app.BuildOutbox(ctx, e.cfg, nil, cmd.OutOrStdout(), e.log)
	} else {
		journal, jerr := store.NewSQLiteStore(e.cfg.Journal.Path)
		if jerr != nil {
			return fmt.Errorf("opening journal: %w", jerr)
		}
		defer journal.Close()
		outbox, err = app.BuildOutbox(ctx, e.cfg, journal, nil, e.log)
	}
	if err != nil {
		return err
	}

	if err := outbox.Send(ctx, msg); err != nil {
		return err
	}
	coord.MarkSent()

	if o.dryRun {
		return nil
	}
	kind := "new message"
	if msg.IsReply() {
		kind = "reply to " + msg.InReplyTo
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %s (%s) via %s\n", msg.MessageID, kind, outbox.Dispatcher().Name())
	return nil
}

// noSearch is the finder used with --new.
type noSearch struct{}

func (noSearch) FindThreads(_ context.Context, subject, recipient string) ([]model.ThreadRecord, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(recipient) == "" {
		return nil, &thread.ValidationError{Field: "draft", Reason: "subject and recipient must not be blank"}
	}
	return nil, nil
}
