package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/thread-reply/internal/credential"
	"github.com/nhle/thread-reply/internal/source/gmail"
)

var loginKeys = map[string]string{
	"imap": credential.KeyIMAPPassword,
	"smtp": credential.KeySMTPPassword,
	"ses":  credential.KeySESSecret,
}

func loginCmd(_ *env) *cobra.Command {
	var (
		fromStdin bool
		remove    bool
	)

	cmd := &cobra.Command{
		Use:       "login imap|smtp|ses",
		Short:     "Store a mailbox password or SES secret in the system keyring",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"imap", "smtp", "ses"},
		RunE: func(cmd *cobra.Command, args []string) error {
			key := loginKeys[args[0]]

			if remove {
				if err := credential.Delete(key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s credential\n", args[0])
				return nil
			}

			var secret string
			if fromStdin {
				s, err := readSecret(cmd.InOrStdin())
				if err != nil {
					return err
				}
				secret = s
			} else {
				err := huh.NewInput().
					Title(fmt.Sprintf("%s secret", strings.ToUpper(args[0]))).
					Description("Stored in the system keyring. " + credential.EnvVar(key) + " overrides it.").
					EchoMode(huh.EchoModePassword).
					Value(&secret).
					Run()
				if err != nil {
					return err
				}
			}

			if strings.TrimSpace(secret) == "" {
				return fmt.Errorf("empty secret, nothing stored")
			}
			if err := credential.Set(key, secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s credential\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the secret from the first line of stdin")
	cmd.Flags().BoolVar(&remove, "delete", false, "Remove the stored secret")
	return cmd
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func authCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize API access",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "gmail",
		Short: "Authorize read-only Gmail API access and cache the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := gmail.Authorize(cmd.Context(),
				e.cfg.Gmail.CredentialsPath, e.cfg.Gmail.TokenPath,
				cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", e.cfg.Gmail.TokenPath)
			return nil
		},
	})
	return cmd
}
