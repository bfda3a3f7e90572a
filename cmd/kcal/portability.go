package kcal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/saadjs/kcal-core/internal/app"
	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/portability"
)

var (
	exportFormat   string
	exportOut      string
	exportSince    string
	importIn       string
	importStrategy string
	importDryRun   bool
	statsJSON      bool
	cacheExpired   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export local data (json or csv)",
	Long:  "Export custom foods, goals and food logs as a versioned JSON document, or food logs only as CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts portability.ExportOptions
		if strings.TrimSpace(exportSince) != "" {
			since, err := parseDate(exportSince)
			if err != nil {
				return err
			}
			opts.Since = since
		}
		format := strings.ToLower(strings.TrimSpace(exportFormat))
		if format != "json" && format != "csv" {
			return fmt.Errorf("unsupported --format %q (use json or csv)", exportFormat)
		}
		return withApp(cmd, func(a *app.App) error {
			payload, err := a.ExportData(cmd.Context(), opts)
			if err != nil {
				return err
			}
			write := func(w io.Writer) error {
				if format == "csv" {
					return writeFoodLogsCSV(w, payload.FoodLogs)
				}
				return portability.Encode(w, payload)
			}
			if exportOut == "" || exportOut == "-" {
				return write(cmd.OutOrStdout())
			}
			if err := writeExportFile(exportOut, write); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d food logs, %d custom foods to %s\n",
				len(payload.FoodLogs), len(payload.CustomFoods), exportOut)
			return nil
		})
	},
}

// writeExportFile creates path, runs write and reports a failed close.
func writeExportFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	return nil
}

var foodLogCSVHeader = []string{"id", "logged_at", "meal", "name", "calories", "protein_g", "carbs_g", "fat_g", "serving_size", "serving_unit", "barcode", "custom_food_id"}

func writeFoodLogsCSV(w io.Writer, logs []model.FoodLog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(foodLogCSVHeader); err != nil {
		return fmt.Errorf("write export csv header: %w", err)
	}
	for _, f := range logs {
		customID := ""
		if f.CustomFoodID != nil {
			customID = f.CustomFoodID.String()
		}
		record := []string{
			f.ID.String(),
			f.LoggedAt.Format(time.RFC3339),
			string(f.Meal),
			f.Name,
			strconv.FormatFloat(f.Calories, 'f', -1, 64),
			strconv.FormatFloat(f.ProteinG, 'f', -1, 64),
			strconv.FormatFloat(f.CarbsG, 'f', -1, 64),
			strconv.FormatFloat(f.FatG, 'f', -1, 64),
			strconv.FormatFloat(f.ServingSize, 'f', -1, 64),
			f.ServingUnit,
			f.Barcode,
			customID,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write export csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush export csv: %w", err)
	}
	return nil
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a JSON export",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(importIn) == "" {
			return fmt.Errorf("--in is required")
		}
		strategy, err := portability.ParseStrategy(importStrategy)
		if err != nil {
			return err
		}
		f, err := os.Open(importIn)
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer f.Close()
		payload, err := portability.Decode(f)
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			report, err := a.ImportData(cmd.Context(), payload, portability.ImportOptions{
				Strategy: strategy,
				DryRun:   importDryRun,
			})
			if err != nil {
				return err
			}
			prefix := "Import report"
			if report.DryRun {
				prefix = "Dry run"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: inserted=%d updated=%d skipped=%d conflicts=%d\n",
				prefix, report.Inserted, report.Updated, report.Skipped, report.Conflicts)
			return nil
		})
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete food logs older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			report, err := a.CleanupOldData(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d food logs before %s\n", report.Deleted, report.Cutoff.Format(time.DateOnly))
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			st, err := a.StorageStatistics(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if statsJSON {
				return writeJSON(out, st)
			}
			fmt.Fprintf(out, "Food logs: %d\n", st.FoodLogs)
			fmt.Fprintf(out, "Custom foods: %d\n", st.CustomFoods)
			fmt.Fprintf(out, "Goal scopes: %d\n", st.GoalScopes)
			fmt.Fprintf(out, "Cache items: %d/%d\n", st.CacheItems, st.Cache.MaxItems)
			fmt.Fprintf(out, "Storage: %d bytes (database %d)\n", st.TotalBytes, st.DatabaseBytes)
			fmt.Fprintf(out, "Last export: %s\n", formatStamp(st.LastExportAt))
			fmt.Fprintf(out, "Last import: %s\n", formatStamp(st.LastImportAt))
			fmt.Fprintf(out, "Last cleanup: %s\n", formatStamp(st.LastCleanupAt))
			return nil
		})
	},
}

func formatStamp(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the lookup result cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear cached lookup results",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			if cacheExpired {
				n := a.ClearExpiredCache()
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired cache entries\n", n)
				return nil
			}
			a.ClearCache()
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd, cleanupCmd, statsCmd, cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json or csv")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default stdout)")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "Only export food logs on or after YYYY-MM-DD")

	importCmd.Flags().StringVar(&importIn, "in", "", "Input JSON file")
	importCmd.Flags().StringVar(&importStrategy, "strategy", string(portability.StrategyOverwrite), "Conflict strategy: overwrite, skip or fail")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate and report without writing")

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print statistics as JSON")
	cacheClearCmd.Flags().BoolVar(&cacheExpired, "expired", false, "Only remove expired entries")
}
