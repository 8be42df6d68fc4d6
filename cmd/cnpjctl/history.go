package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"consultacnpj/internal/config"
	"consultacnpj/internal/db"
	"consultacnpj/internal/models"
)

// historyRecord is the portable history file entry. IDs are not exported so
// files can be merged into any database.
type historyRecord struct {
	Date     *time.Time            `json:"data,omitempty"`
	Kind     string                `json:"tipo"`
	CNPJs    string                `json:"cnpjs"`
	Filename *string               `json:"arquivo_nome"`
	Results  []models.LookupResult `json:"resultado"`
}

// readHistory decodes a history file. Entries without a date get one when
// stored.
func readHistory(r io.Reader) ([]models.History, error) {
	var records []historyRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("invalid history file: %w", err)
	}

	out := make([]models.History, 0, len(records))
	for _, rec := range records {
		h := models.History{
			Kind:     rec.Kind,
			CNPJs:    rec.CNPJs,
			Filename: rec.Filename,
			Results:  rec.Results,
		}
		if rec.Date != nil {
			h.CreatedAt = rec.Date.UTC()
		}
		out = append(out, h)
	}
	return out, nil
}

// writeHistory encodes records oldest first with UTC dates.
func writeHistory(w io.Writer, records []models.History) error {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b models.History) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	out := make([]historyRecord, 0, len(sorted))
	for _, h := range sorted {
		date := h.CreatedAt.UTC()
		results := h.Results
		if results == nil {
			results = []models.LookupResult{}
		}
		out = append(out, historyRecord{
			Date:     &date,
			Kind:     h.Kind,
			CNPJs:    h.CNPJs,
			Filename: h.Filename,
			Results:  results,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func openDB(ctx context.Context) (*db.DB, error) {
	cfg := config.Load()
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func importHistoryCmd() *cobra.Command {
	var truncate bool

	cmd := &cobra.Command{
		Use:   "import-history [file.json]",
		Short: "Import history records from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			records, err := readHistory(f)
			if err != nil {
				return err
			}

			database, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := database.ImportHistory(cmd.Context(), records, truncate)
			if err != nil {
				return err
			}
			if truncate {
				fmt.Fprintln(cmd.OutOrStdout(), "Existing history deleted.")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s\n", n, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&truncate, "truncate", false, "delete existing history before importing")
	return cmd
}

func exportHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-history [file.json]",
		Short: "Export every history record to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			records, err := database.ListHistory(cmd.Context(), 0)
			if err != nil {
				return err
			}

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := writeHistory(f, records); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", len(records), args[0])
			return nil
		},
	}
}
