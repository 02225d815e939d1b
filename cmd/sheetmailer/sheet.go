package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/sheet-mailer/internal/sheet"
	"github.com/nhle/sheet-mailer/internal/store"
)

type importFlags struct {
	dbPath    string
	name      string
	file      string
	worksheet int
}

func newSheetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "Manage the local SQLite workbook",
	}
	cmd.AddCommand(newSheetImportCommand())
	return cmd
}

func newSheetImportCommand() *cobra.Command {
	flags := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace a worksheet with the contents of a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := importCSV(cmd.Context(), flags)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rows into %q\n", n, flags.name)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.dbPath, "db", "sheets.db", "Path to the SQLite workbook")
	cmd.Flags().StringVar(&flags.name, "name", "", "Spreadsheet name")
	cmd.Flags().StringVar(&flags.file, "file", "", "CSV file to import")
	cmd.Flags().IntVar(&flags.worksheet, "worksheet", 0, "Worksheet index")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func importCSV(ctx context.Context, flags *importFlags) (int, error) {
	rows, err := readCSV(flags.file)
	if err != nil {
		return 0, err
	}

	s, err := store.NewSQLiteStore(flags.dbPath)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	_, err = s.Open(ctx, flags.name, flags.worksheet)
	if errors.Is(err, sheet.ErrSpreadsheetNotFound) {
		titles := make([]string, flags.worksheet+1)
		for i := range titles {
			titles[i] = fmt.Sprintf("Sheet%d", i+1)
		}
		if _, err := s.CreateSpreadsheet(ctx, flags.name, titles...); err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	if err := s.ReplaceCells(ctx, flags.name, flags.worksheet, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}
