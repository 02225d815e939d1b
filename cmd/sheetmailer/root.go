package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "sheetmailer",
		Short:         "Send a templated email to every new row of a spreadsheet",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newRunCommand(),
		newCredentialsCommand(),
		newSheetCommand(),
	)
	return root
}
