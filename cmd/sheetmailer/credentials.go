package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/sheet-mailer/internal/credential"
)

// promptSecret asks for a secret without echoing it.
var promptSecret = func(key string) (string, error) {
	var value string
	err := huh.NewInput().
		Title("Password for " + key).
		Description("Stored in the system keyring").
		EchoMode(huh.EchoModePassword).
		Value(&value).
		Validate(func(s string) error {
			if s == "" {
				return errors.New("password is required")
			}
			return nil
		}).
		Run()
	return value, err
}

func newCredentialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage mail passwords in the system keyring",
	}
	cmd.AddCommand(newCredentialsSetCommand(), newCredentialsDeleteCommand())
	return cmd
}

func newCredentialsSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key>",
		Short: "Prompt for a password and store it under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, err := promptSecret(key)
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			if err := credential.Set(key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %q. Reference it with password_ref: %s\n", key, credential.Ref(key))
			return nil
		},
	}
}

func newCredentialsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credential.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", args[0])
			return nil
		},
	}
}
