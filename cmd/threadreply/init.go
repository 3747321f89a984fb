package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/emersion/go-message/mail"
	"github.com/spf13/cobra"

	"github.com/nhle/thread-reply/internal/model"
)

type initOptions struct {
	email       string
	fromName    string
	sender      string
	imapHost    string
	sesRegion   string
	gmailSecret string
}

var initFlags = []string{"email", "from-name", "sender", "imap-host", "ses-region", "gmail-credentials"}

func initCmd(e *env) *cobra.Command {
	o := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the account and sender settings to the config file",
		Long: `init fills in the account, sender and mailbox settings and writes them
to the config file. Without flags it asks for them interactively; any
flag switches to non-interactive mode and leaves unset values as they
are.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := e.cfg
			seedInitOptions(o, cfg, cmd)

			if !anyChanged(cmd, initFlags...) {
				if err := initForm(o).Run(); err != nil {
					return err
				}
			}

			if err := applyInitOptions(cfg, o); err != nil {
				return err
			}
			if err := model.SaveConfig(e.configPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", e.configPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&o.email, "email", "", "Account address the prior messages were sent from")
	cmd.Flags().StringVar(&o.fromName, "from-name", "", "Display name on outgoing messages")
	cmd.Flags().StringVar(&o.sender, "sender", "", "Delivery method: smtp or ses")
	cmd.Flags().StringVar(&o.imapHost, "imap-host", "", "IMAP host (empty uses the provider default)")
	cmd.Flags().StringVar(&o.sesRegion, "ses-region", "", "AWS region for the ses sender")
	cmd.Flags().StringVar(&o.gmailSecret, "gmail-credentials", "", "Path to the Google OAuth client secret")
	return cmd
}

// seedInitOptions fills options the user did not pass from cfg, so the
// form starts from the current values.
func seedInitOptions(o *initOptions, cfg *model.AppConfig, cmd *cobra.Command) {
	seed := func(flag string, dst *string, current string) {
		if !cmd.Flags().Changed(flag) {
			*dst = current
		}
	}
	seed("email", &o.email, cfg.Account.Email)
	seed("from-name", &o.fromName, cfg.Account.FromName)
	seed("sender", &o.sender, cfg.Sender.Kind)
	seed("imap-host", &o.imapHost, cfg.IMAP.Host)
	seed("ses-region", &o.sesRegion, cfg.Sender.SES.Region)
	seed("gmail-credentials", &o.gmailSecret, cfg.Gmail.CredentialsPath)
}

func initForm(o *initOptions) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Account email").
				Value(&o.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Display name").
				Value(&o.fromName),
			huh.NewSelect[string]().
				Title("Send replies with").
				Options(huh.NewOption("SMTP relay", "smtp"), huh.NewOption("AWS SES", "ses")).
				Value(&o.sender),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP host").
				Description("Leave empty for the provider default.").
				Value(&o.imapHost),
			huh.NewInput().
				Title("SES region").
				Value(&o.sesRegion),
			huh.NewInput().
				Title("Gmail OAuth client secret").
				Description("Only used for Google hosted accounts.").
				Value(&o.gmailSecret),
		),
	)
}

func applyInitOptions(cfg *model.AppConfig, o *initOptions) error {
	if err := validateEmail(o.email); err != nil {
		return err
	}
	sender := strings.ToLower(strings.TrimSpace(o.sender))
	if sender != "smtp" && sender != "ses" {
		return fmt.Errorf("sender must be smtp or ses, got %q", o.sender)
	}

	email := strings.TrimSpace(o.email)
	if cfg.IMAP.Username == cfg.Account.Email {
		cfg.IMAP.Username = email
	}
	if cfg.Sender.SMTP.Username == cfg.Account.Email {
		cfg.Sender.SMTP.Username = email
	}

	cfg.Account.Email = email
	cfg.Account.FromName = strings.TrimSpace(o.fromName)
	cfg.Sender.Kind = sender
	cfg.IMAP.Host = strings.TrimSpace(o.imapHost)
	cfg.Sender.SES.Region = strings.TrimSpace(o.sesRegion)
	cfg.Gmail.CredentialsPath = strings.TrimSpace(o.gmailSecret)
	return nil
}

func validateEmail(s string) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("%q is not an email address", s)
	}
	return nil
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, name := range names {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}
