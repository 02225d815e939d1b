package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/sheet-mailer/internal/bounce"
	"github.com/nhle/sheet-mailer/internal/credential"
	"github.com/nhle/sheet-mailer/internal/dispatch"
	"github.com/nhle/sheet-mailer/internal/mailbox"
	"github.com/nhle/sheet-mailer/internal/mailmerge"
	"github.com/nhle/sheet-mailer/internal/model"
	"github.com/nhle/sheet-mailer/internal/runlog"
	"github.com/nhle/sheet-mailer/internal/sheet"
	"github.com/nhle/sheet-mailer/internal/sheet/gsheets"
	"github.com/nhle/sheet-mailer/internal/store"
)

type runFlags struct {
	configPath  string
	debug       bool
	dryRun      bool
	skipBounces bool
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check for bounces, then email every eligible row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), flags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", model.DefaultConfigPath, "Path to config file")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Log debug messages")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "List eligible recipients without sending or updating the sheet")
	cmd.Flags().BoolVar(&flags.skipBounces, "skip-bounces", false, "Do not check the mailbox for bounces")
	return cmd
}

func runBatch(ctx context.Context, flags *runFlags, stdout io.Writer) error {
	cfg, err := model.LoadConfig(flags.configPath)
	if err != nil {
		return err
	}

	retention := time.Duration(cfg.Log.RetentionDays) * 24 * time.Hour
	pruned, pruneErr := runlog.Prune(cfg.Log.Path, retention, time.Now())

	log, closeLog, err := runlog.New(cfg.Log.Path, flags.debug, stdout)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	if pruneErr != nil {
		log.Warnf("Could not prune %s: %v", cfg.Log.Path, pruneErr)
	} else if pruned > 0 {
		log.Debugf("Pruned %d log entries older than %d days", pruned, cfg.Log.RetentionDays)
	}

	smtpPassword, err := credential.Resolve(cfg.SMTP.Password, cfg.SMTP.PasswordRef)
	if err != nil {
		log.Errorf("Error loading SMTP password: %v", err)
		return &model.ConfigError{Message: "resolving smtp password", Err: err}
	}

	opener, closeOpener, err := newOpener(ctx, cfg)
	if err != nil {
		log.Errorf("Error connecting to spreadsheet backend: %v", err)
		return err
	}
	defer func() { _ = closeOpener() }()

	var mb bounce.Mailbox
	if cfg.IMAP.Enabled && !flags.skipBounces && !flags.dryRun {
		mb, err = newMailbox(cfg)
		if err != nil {
			log.Errorf("Error checking mailbox: %v", err)
		}
	}

	transport := dispatch.NewSMTPTransport(cfg.SMTP, smtpPassword)
	log.Debugf("Using SMTP server %s:%d as %s", transport.Host(), cfg.SMTP.Port, cfg.SMTP.From)

	runner := mailmerge.NewRunner(cfg, opener, mb, transport, log)
	_, err = runner.Run(ctx, mailmerge.RunOptions{
		DryRun:      flags.dryRun,
		SkipBounces: flags.skipBounces,
	})
	return err
}

func newOpener(ctx context.Context, cfg *model.AppConfig) (sheet.Opener, func() error, error) {
	switch cfg.Sheet.Backend {
	case model.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.Sheet.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		o, err := gsheets.NewOpener(ctx, cfg.Sheet.CredentialsFile)
		if err != nil {
			return nil, nil, &model.ConfigError{Message: "loading Google credentials", Err: err}
		}
		return o, func() error { return nil }, nil
	}
}

func newMailbox(cfg *model.AppConfig) (bounce.Mailbox, error) {
	password, err := credential.Resolve(cfg.IMAP.Password, cfg.IMAP.PasswordRef)
	if err != nil {
		return nil, &model.MailboxError{Op: "login", Err: fmt.Errorf("resolving imap password: %w", err)}
	}
	return mailbox.NewClient(mailbox.Config{
		Host:     cfg.IMAP.Host,
		Port:     cfg.IMAP.Port,
		Username: cfg.IMAP.Username,
		Password: password,
		TLS:      cfg.IMAP.TLS,
		Mailbox:  cfg.IMAP.Mailbox,
	}), nil
}
