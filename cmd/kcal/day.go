package kcal

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saadjs/kcal-core/internal/app"
	"github.com/saadjs/kcal-core/internal/model"
)

var (
	dayDate string
	dayTo   string
)

var dayCmd = &cobra.Command{
	Use:     "day",
	Aliases: []string{"today"},
	Short:   "Show a day's entries, totals and goal progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseDate(dayDate)
		if err != nil {
			return err
		}
		if strings.TrimSpace(dayTo) != "" {
			return showRange(cmd, dayDate, dayTo)
		}
		return withApp(cmd, func(a *app.App) error {
			report, err := a.LoadFoodLogs(cmd.Context(), target)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Date: %s\n", report.Day.Format("2006-01-02"))
			var current model.MealCategory
			for _, f := range report.Logs {
				if f.Meal != current {
					current = f.Meal
					fmt.Fprintf(out, "[%s]\n", current)
				}
				printFoodLog(out, f)
			}
			printMacros(out, "Intake", report.Totals.Macros())
			if report.Goals == nil {
				fmt.Fprintln(out, "Goal: not set")
				return nil
			}
			printMacros(out, "Goal", report.Goals.Macros())
			printMacros(out, "Remaining", *report.Remaining)
			fmt.Fprintf(out, "Progress: %.0f%% kcal | P %.0f%% | C %.0f%% | F %.0f%%\n",
				report.Progress.Calories*100, report.Progress.ProteinG*100, report.Progress.CarbsG*100, report.Progress.FatG*100)
			return nil
		})
	},
}

func showRange(cmd *cobra.Command, from, to string) error {
	start, err := parseDate(from)
	if err != nil {
		return err
	}
	end, err := parseDate(to)
	if err != nil {
		return err
	}
	return withApp(cmd, func(a *app.App) error {
		logs, err := a.FoodLogsBetween(cmd.Context(), start, end)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, f := range logs {
			printFoodLog(out, f)
		}
		printMacros(out, "Total", model.TotalsOf(logs).Macros())
		return nil
	})
}

func init() {
	rootCmd.AddCommand(dayCmd)
	dayCmd.Flags().StringVar(&dayDate, "date", "", "Date YYYY-MM-DD (default today)")
	dayCmd.Flags().StringVar(&dayTo, "to", "", "Show every day from --date through this date YYYY-MM-DD")
}
