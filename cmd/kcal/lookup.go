package kcal

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/saadjs/kcal-core/internal/app"
	"github.com/saadjs/kcal-core/internal/model"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Lookup nutrition data from external providers",
	Long: "Search Open Food Facts, USDA FoodData Central and UPCitemdb by name or barcode. " +
		"Providers and API keys are set in the config file or KCAL_LOOKUP_* environment variables.",
}

var (
	lookupJSON  bool
	lookupLog   bool
	lookupMeal  string
	lookupDate  string
	lookupTime  string
	lookupPick  int
	lookupScale float64
)

var lookupSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search foods by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withApp(cmd, func(a *app.App) error {
			results, err := a.SearchFoods(cmd.Context(), query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if lookupLog {
				if len(results) == 0 {
					return fmt.Errorf("no results for %q", query)
				}
				if lookupPick < 1 || lookupPick > len(results) {
					return fmt.Errorf("--pick must be between 1 and %d", len(results))
				}
				return logResult(cmd, a, results[lookupPick-1])
			}
			if lookupJSON {
				return writeJSON(out, results)
			}
			if len(results) == 0 {
				fmt.Fprintf(out, "No results for %q\n", query)
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%2d. ", i+1)
				printResult(out, r)
			}
			return nil
		})
	},
}

var lookupBarcodeCmd = &cobra.Command{
	Use:   "barcode <code>",
	Short: "Lookup food by barcode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			r, err := a.LookupBarcode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if lookupLog {
				return logResult(cmd, a, r)
			}
			if lookupJSON {
				return writeJSON(cmd.OutOrStdout(), r)
			}
			printResult(cmd.OutOrStdout(), r)
			return nil
		})
	},
}

func logResult(cmd *cobra.Command, a *app.App, r model.FoodSearchResult) error {
	meal, err := parseMeal(lookupMeal)
	if err != nil {
		return err
	}
	at, err := parseDateTimeOrNow(lookupDate, lookupTime)
	if err != nil {
		return err
	}
	if lookupScale <= 0 {
		return fmt.Errorf("--servings must be greater than zero")
	}
	f := r.ToFoodLog(meal, at)
	f.Calories *= lookupScale
	f.ProteinG *= lookupScale
	f.CarbsG *= lookupScale
	f.FatG *= lookupScale
	f.ServingSize *= lookupScale
	saved, err := a.LogFood(cmd.Context(), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged %s as entry %s\n", saved.Name, saved.ID)
	return nil
}

func printResult(w io.Writer, r model.FoodSearchResult) {
	name := r.Name
	if r.Brand != "" {
		name += " (" + r.Brand + ")"
	}
	mark := ""
	if !r.Verified {
		mark = " [unverified]"
	}
	fmt.Fprintf(w, "%s  %.0f %s  %.1f kcal  P %.1fg | C %.1fg | F %.1fg  via %s%s\n",
		name, r.ServingSize, r.ServingUnit, r.Calories, r.ProteinG, r.CarbsG, r.FatG, r.Source, mark)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.AddCommand(lookupSearchCmd, lookupBarcodeCmd)

	for _, c := range []*cobra.Command{lookupSearchCmd, lookupBarcodeCmd} {
		c.Flags().BoolVar(&lookupJSON, "json", false, "Print results as JSON")
		c.Flags().BoolVar(&lookupLog, "log", false, "Log the result as a meal entry")
		c.Flags().StringVar(&lookupMeal, "meal", string(model.MealSnacks), "Meal for --log")
		c.Flags().StringVar(&lookupDate, "date", "", "Date for --log YYYY-MM-DD")
		c.Flags().StringVar(&lookupTime, "time", "", "Time for --log HH:MM")
		c.Flags().Float64Var(&lookupScale, "servings", 1, "Servings for --log")
	}
	lookupSearchCmd.Flags().IntVar(&lookupPick, "pick", 1, "Result number to log with --log")
}
