package model

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sheet backends.
const (
	BackendGoogle = "google"
	BackendSQLite = "sqlite"
)

// Bounce extraction strategies.
const (
	StrategyBody   = "body"
	StrategyHeader = "header"
)

// Bounce search filters.
const (
	FilterBySender  = "sender"
	FilterBySubject = "subject"
)

// Policies for rows already marked undelivered.
const (
	PolicySkipUndelivered  = "skip"
	PolicyRetryUndelivered = "retry"
)

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password is used as-is when set. Otherwise PasswordRef is
	// resolved, e.g. "keyring:smtp".
	Password    string `mapstructure:"password" yaml:"password"`
	PasswordRef string `mapstructure:"password_ref" yaml:"password_ref"`

	// From defaults to Username.
	From string `mapstructure:"from" yaml:"from"`

	// SSL forces implicit TLS. Port 465 implies it.
	SSL bool `mapstructure:"ssl" yaml:"ssl"`
}

// IMAPConfig holds the mailbox settings used to look for bounces.
// Empty credentials fall back to the SMTP ones.
type IMAPConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Host        string `mapstructure:"host" yaml:"host"`
	Port        int    `mapstructure:"port" yaml:"port"`
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	PasswordRef string `mapstructure:"password_ref" yaml:"password_ref"`
	TLS         bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox     string `mapstructure:"mailbox" yaml:"mailbox"`
}

// BounceConfig controls how bounce notifications are found and read.
type BounceConfig struct {
	// Strategy is "body" or "header".
	Strategy string `mapstructure:"strategy" yaml:"strategy"`

	// FilterBy is "sender" or "subject".
	FilterBy string `mapstructure:"filter_by" yaml:"filter_by"`

	Sender     string `mapstructure:"sender" yaml:"sender"`
	Subject    string `mapstructure:"subject" yaml:"subject"`
	WindowDays int    `mapstructure:"window_days" yaml:"window_days"`

	// Marker is the phrase the body strategy looks for.
	Marker string `mapstructure:"marker" yaml:"marker"`
}

// SheetConfig locates the recipient sheet and describes its columns.
// Rows and columns are 1-indexed.
type SheetConfig struct {
	Backend         string `mapstructure:"backend" yaml:"backend"`
	Name            string `mapstructure:"name" yaml:"name"`
	WorksheetIndex  int    `mapstructure:"worksheet_index" yaml:"worksheet_index"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	DatabasePath    string `mapstructure:"database_path" yaml:"database_path"`

	StartRow     int `mapstructure:"start_row" yaml:"start_row"`
	EmailColumn  int `mapstructure:"email_column" yaml:"email_column"`
	StatusColumn int `mapstructure:"status_column" yaml:"status_column"`

	SentText        string `mapstructure:"sent_text" yaml:"sent_text"`
	UndeliveredText string `mapstructure:"undelivered_text" yaml:"undelivered_text"`

	// UndeliveredPolicy is "skip" or "retry".
	UndeliveredPolicy string `mapstructure:"undelivered_policy" yaml:"undelivered_policy"`
}

// EmailConfig is the message sent to every recipient.
type EmailConfig struct {
	Subject        string `mapstructure:"subject" yaml:"subject"`
	Body           string `mapstructure:"body" yaml:"body"`
	AttachmentPath string `mapstructure:"attachment_path" yaml:"attachment_path"`
	AttachmentType string `mapstructure:"attachment_type" yaml:"attachment_type"`
}

// DispatchConfig bounds the random pause taken before each send.
type DispatchConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// LogConfig controls the run log file.
type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	SMTP     SMTPConfig     `mapstructure:"smtp" yaml:"smtp"`
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Bounce   BounceConfig   `mapstructure:"bounce" yaml:"bounce"`
	Sheet    SheetConfig    `mapstructure:"sheet" yaml:"sheet"`
	Email    EmailConfig    `mapstructure:"email" yaml:"email"`
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "config.yaml"

func setDefaults(v *viper.Viper) {
	v.SetDefault("smtp.port", 587)

	v.SetDefault("imap.enabled", true)
	v.SetDefault("imap.host", "imap.gmail.com")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.mailbox", "INBOX")

	v.SetDefault("bounce.strategy", StrategyBody)
	v.SetDefault("bounce.filter_by", FilterBySender)
	v.SetDefault("bounce.sender", "mailer-daemon@googlemail.com")
	v.SetDefault("bounce.subject", "Delivery Status Notification")
	v.SetDefault("bounce.window_days", 7)
	v.SetDefault("bounce.marker", "Your message wasn't delivered")

	v.SetDefault("sheet.backend", BackendGoogle)
	v.SetDefault("sheet.worksheet_index", 0)
	v.SetDefault("sheet.start_row", 2)
	v.SetDefault("sheet.sent_text", "Sent")
	v.SetDefault("sheet.undelivered_text", "Undelivered")
	v.SetDefault("sheet.undelivered_policy", PolicySkipUndelivered)

	v.SetDefault("email.attachment_type", "pdf")

	v.SetDefault("dispatch.min_delay", 5*time.Second)
	v.SetDefault("dispatch.max_delay", 12*time.Second)

	v.SetDefault("log.path", "log.txt")
	v.SetDefault("log.retention_days", 7)
}

// LoadConfig reads configuration from path using Viper. The format is
// taken from the file extension (YAML, INI, TOML and JSON all work).
// Unlike an interactive tool there is no useful default for the sheet
// or the mail servers, so a missing file is an error.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return nil, &ConfigError{
				Message: fmt.Sprintf("config file %s not found", path),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyFallbacks()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFallbacks fills values derived from other sections.
func (c *AppConfig) applyFallbacks() {
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.Username
	}
	if c.IMAP.Username == "" {
		c.IMAP.Username = c.SMTP.Username
	}
	if c.IMAP.Password == "" && c.IMAP.PasswordRef == "" {
		c.IMAP.Password = c.SMTP.Password
		c.IMAP.PasswordRef = c.SMTP.PasswordRef
	}
	if c.Sheet.Backend == BackendSQLite && c.Sheet.DatabasePath == "" {
		c.Sheet.DatabasePath = "sheets.db"
	}
}

// Validate collects every problem that would make a run meaningless
// into a single ConfigError.
func (c *AppConfig) Validate() error {
	var problems []string

	if c.SMTP.Host == "" {
		problems = append(problems, "smtp.host is required")
	}
	if c.SMTP.Port <= 0 {
		problems = append(problems, "smtp.port must be positive")
	}
	if c.SMTP.From == "" {
		problems = append(problems, "smtp.from or smtp.username is required")
	}

	switch c.Sheet.Backend {
	case BackendGoogle:
		if c.Sheet.CredentialsFile == "" {
			problems = append(problems, "sheet.credentials_file is required for the google backend")
		}
	case BackendSQLite:
	default:
		problems = append(problems, fmt.Sprintf("sheet.backend %q is not one of google, sqlite", c.Sheet.Backend))
	}
	if c.Sheet.Name == "" {
		problems = append(problems, "sheet.name is required")
	}
	if c.Sheet.StartRow < 1 {
		problems = append(problems, "sheet.start_row must be at least 1")
	}
	if c.Sheet.EmailColumn < 1 || c.Sheet.StatusColumn < 1 {
		problems = append(problems, "sheet.email_column and sheet.status_column must be at least 1")
	} else if c.Sheet.EmailColumn == c.Sheet.StatusColumn {
		problems = append(problems, "sheet.email_column and sheet.status_column must differ")
	}
	if c.Sheet.SentText == "" || c.Sheet.UndeliveredText == "" {
		problems = append(problems, "sheet.sent_text and sheet.undelivered_text must not be empty")
	} else if c.Sheet.SentText == c.Sheet.UndeliveredText {
		problems = append(problems, "sheet.sent_text and sheet.undelivered_text must differ")
	}
	switch c.Sheet.UndeliveredPolicy {
	case PolicySkipUndelivered, PolicyRetryUndelivered:
	default:
		problems = append(problems, fmt.Sprintf("sheet.undelivered_policy %q is not one of skip, retry", c.Sheet.UndeliveredPolicy))
	}

	switch c.Bounce.Strategy {
	case StrategyBody, StrategyHeader:
	default:
		problems = append(problems, fmt.Sprintf("bounce.strategy %q is not one of body, header", c.Bounce.Strategy))
	}
	switch c.Bounce.FilterBy {
	case FilterBySender, FilterBySubject:
	default:
		problems = append(problems, fmt.Sprintf("bounce.filter_by %q is not one of sender, subject", c.Bounce.FilterBy))
	}
	if c.Bounce.WindowDays < 1 {
		problems = append(problems, "bounce.window_days must be at least 1")
	}

	if c.Email.Subject == "" {
		problems = append(problems, "email.subject is required")
	}

	if c.Dispatch.MinDelay < 0 || c.Dispatch.MaxDelay < c.Dispatch.MinDelay {
		problems = append(problems, "dispatch delays must satisfy 0 <= min_delay <= max_delay")
	}

	if len(problems) == 0 {
		return nil
	}
	return &ConfigError{Message: strings.Join(problems, "; ")}
}
