package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// THREADREPLY_SEARCH_WINDOW_DAYS.
const EnvPrefix = "THREADREPLY"

// AccountConfig identifies the mailbox that sent the prior messages.
type AccountConfig struct {
	// Email is the account address; its domain drives backend selection.
	Email string `mapstructure:"email" yaml:"email"`

	// FromName is the display name used on outgoing messages.
	FromName string `mapstructure:"from_name" yaml:"from_name"`

	// UseProgrammaticSearch enables the Gmail API backend for Google
	// hosted accounts.
	UseProgrammaticSearch bool `mapstructure:"use_programmatic_search" yaml:"use_programmatic_search"`

	// GoogleDomains lists extra domains hosted on Google Workspace.
	GoogleDomains []string `mapstructure:"google_domains" yaml:"google_domains"`
}

// SearchConfig bounds thread searches.
type SearchConfig struct {
	WindowDays    int      `mapstructure:"window_days" yaml:"window_days"`
	MaxResults    int      `mapstructure:"max_results" yaml:"max_results"`
	TimeoutSec    int      `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	Mailboxes     []string `mapstructure:"mailboxes" yaml:"mailboxes"`
	SubjectMarker string   `mapstructure:"subject_marker" yaml:"subject_marker"`
}

// IMAPConfig holds the protocol backend endpoint. The password is
// resolved through the credential package.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Security is one of "tls", "starttls" or "none".
	Security string `mapstructure:"security" yaml:"security"`
}

// GmailConfig points at the OAuth client secret and cached token.
type GmailConfig struct {
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path"`
	TokenPath       string `mapstructure:"token_path" yaml:"token_path"`
}

// SMTPConfig holds the relay used by the smtp sender.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
}

// SESConfig holds the AWS SES v2 settings used by the ses sender.
type SESConfig struct {
	Region      string `mapstructure:"region" yaml:"region"`
	AccessKeyID string `mapstructure:"access_key_id" yaml:"access_key_id"`
}

// SenderConfig selects how replies are delivered.
type SenderConfig struct {
	// Kind is "smtp" or "ses".
	Kind string     `mapstructure:"kind" yaml:"kind"`
	SMTP SMTPConfig `mapstructure:"smtp" yaml:"smtp"`
	SES  SESConfig  `mapstructure:"ses" yaml:"ses"`
}

// JournalConfig locates the sent-reply journal database.
type JournalConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Account AccountConfig `mapstructure:"account" yaml:"account"`
	Search  SearchConfig  `mapstructure:"search" yaml:"search"`
	IMAP    IMAPConfig    `mapstructure:"imap" yaml:"imap"`
	Gmail   GmailConfig   `mapstructure:"gmail" yaml:"gmail"`
	Sender  SenderConfig  `mapstructure:"sender" yaml:"sender"`
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ConfigDir returns ~/.config/threadreply.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "threadreply")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/threadreply/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultMailboxes are the folders searched for prior messages, in order.
// The first entry is the localized Gmail sent folder name.
var DefaultMailboxes = []string{
	"[Gmail]/&BB4EQgQ,BEAEMAQyBDsENQQ9BD0ESwQ1-",
	"[Gmail]/Sent Mail",
	"INBOX.Sent",
	"Sent",
	"INBOX",
}

func setDefaults(v *viper.Viper) {
	dir := ConfigDir()

	// Zero-valued defaults register the keys so AutomaticEnv can fill them.
	v.SetDefault("account.email", "")
	v.SetDefault("account.from_name", "")
	v.SetDefault("imap.host", "")
	v.SetDefault("imap.port", 0)
	v.SetDefault("imap.username", "")
	v.SetDefault("sender.smtp.host", "")
	v.SetDefault("sender.smtp.port", 0)
	v.SetDefault("sender.smtp.username", "")
	v.SetDefault("sender.ses.region", "")
	v.SetDefault("sender.ses.access_key_id", "")
	v.SetDefault("logging.file", "")

	v.SetDefault("account.use_programmatic_search", true)
	v.SetDefault("search.window_days", 30)
	v.SetDefault("search.max_results", 50)
	v.SetDefault("search.timeout_sec", 30)
	v.SetDefault("search.mailboxes", DefaultMailboxes)
	v.SetDefault("search.subject_marker", "(#ПЕР)")
	v.SetDefault("imap.security", "tls")
	v.SetDefault("gmail.credentials_path", filepath.Join(dir, "client_secret.json"))
	v.SetDefault("gmail.token_path", filepath.Join(dir, "token.json"))
	v.SetDefault("sender.kind", "smtp")
	v.SetDefault("journal.path", filepath.Join(dir, "journal.db"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with THREADREPLY_ override file values.
// If the file does not exist, defaults and environment values are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Search.WindowDays <= 0 {
		cfg.Search.WindowDays = 30
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 50
	}
	if cfg.Search.TimeoutSec <= 0 {
		cfg.Search.TimeoutSec = 30
	}
	if len(cfg.Search.Mailboxes) == 0 {
		cfg.Search.Mailboxes = DefaultMailboxes
	}
	if cfg.IMAP.Username == "" {
		cfg.IMAP.Username = cfg.Account.Email
	}
	if cfg.Sender.SMTP.Username == "" {
		cfg.Sender.SMTP.Username = cfg.Account.Email
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("account", cfg.Account)
	v.Set("search", cfg.Search)
	v.Set("imap", cfg.IMAP)
	v.Set("gmail", cfg.Gmail)
	v.Set("sender", cfg.Sender)
	v.Set("journal", cfg.Journal)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
