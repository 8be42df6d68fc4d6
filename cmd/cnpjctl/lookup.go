package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"consultacnpj/internal/app"
	"consultacnpj/internal/batch"
	"consultacnpj/internal/config"
	"consultacnpj/internal/export"
	"consultacnpj/internal/jobs"
	"consultacnpj/internal/models"
	"consultacnpj/internal/ratelimit"
)

func openStack() (*app.Stack, *config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	s, _, err := app.OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	stack, err := app.NewStack(cfg, s, slog.Default())
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return stack, cfg, nil
}

// resolveAll resolves reqs in order, spacing lookups with pacer, and writes a
// progress line per item to progress.
func resolveAll(ctx context.Context, r jobs.Resolver, reqs []models.LookupRequest, pacer *rate.Limiter, progress io.Writer) ([]models.LookupResult, error) {
	results := make([]models.LookupResult, 0, len(reqs))
	for i, req := range reqs {
		if err := pacer.Wait(ctx); err != nil {
			return results, fmt.Errorf("failed to wait for next lookup: %w", err)
		}
		res := r.Resolve(ctx, req.CNPJ, func(attempt int, wait time.Duration) {
			fmt.Fprintf(progress, "\nrate limited, retrying attempt %d in %s\n", attempt, wait)
		})
		res.Tag = req.Tag
		results = append(results, res)
		fmt.Fprintf(progress, "\r[%d/%d] %s", i+1, len(reqs), res.CNPJ)
	}
	fmt.Fprintln(progress)
	return results, nil
}

func lookupCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "lookup [cnpj...]",
		Short: "Resolve identifiers through the configured lookup policy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, _, err := openStack()
			if err != nil {
				return err
			}
			defer stack.Store.Close()

			reqs, err := batch.NewExtractor(nil, nil).FromText(strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			for _, req := range reqs {
				res := stack.Lookup.Resolve(cmd.Context(), req.CNPJ, func(attempt int, wait time.Duration) {
					fmt.Fprintf(cmd.ErrOrStderr(), "rate limited, retrying attempt %d in %s\n", attempt, wait)
				})
				if asJSON {
					if err := enc.Encode(res); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", res.CNPJ, res.Name, res.Email)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print full results as JSON")
	return cmd
}

func resolveCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "resolve [file]",
		Short: "Resolve every identifier of a CSV/XLSX file and write a spreadsheet",
		Long: `Resolve every identifier found in a CSV or XLSX file, one at a time under
the shared rate budget, and write the results as CSV or XLSX.

Examples:
  cnpjctl resolve lote.xlsx -o resultados.xlsx
  cnpjctl resolve lote.csv -o resultados.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			reqs, err := batch.NewExtractor(nil, nil).FromFile(args[0], f)
			if err != nil {
				return err
			}

			stack, cfg, err := openStack()
			if err != nil {
				return err
			}
			defer stack.Store.Close()

			results, err := resolveAll(cmd.Context(), stack.Lookup, reqs, ratelimit.NewPacer(cfg.StepDelay), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			return writeExport(output, export.FromResults(results), false)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "resultados.xlsx", "output file (.csv or .xlsx)")
	return cmd
}

func writeExport(path string, rows []export.Row, withDate bool) error {
	var (
		body []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		body, err = export.CSV(rows, withDate)
	case ".xlsx":
		body, err = export.XLSX(rows, withDate)
	default:
		return fmt.Errorf("unsupported output %q: use .csv or .xlsx", path)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}
