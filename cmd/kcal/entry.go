package kcal

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saadjs/kcal-core/internal/app"
	"github.com/saadjs/kcal-core/internal/model"
)

var (
	entryName        string
	entryCalories    float64
	entryProtein     float64
	entryCarbs       float64
	entryFat         float64
	entryMeal        string
	entryDate        string
	entryTime        string
	entryServing     float64
	entryServingUnit string
	entryBarcode     string
	entryFood        string
	entryServings    float64
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Log a meal entry",
	Long:  "Log a meal entry from explicit macros, or from a saved custom food with --food.",
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseDateTimeOrNow(entryDate, entryTime)
		if err != nil {
			return err
		}
		meal, err := parseMeal(entryMeal)
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			var saved model.FoodLog
			if strings.TrimSpace(entryFood) != "" {
				id, err := parseIDArg(entryFood)
				if err != nil {
					return err
				}
				saved, err = a.LogCustomFood(cmd.Context(), id, meal, at, entryServings)
				if err != nil {
					return err
				}
			} else {
				saved, err = a.LogFood(cmd.Context(), model.FoodLog{
					LoggedAt:    at,
					Name:        entryName,
					Calories:    entryCalories,
					ProteinG:    entryProtein,
					CarbsG:      entryCarbs,
					FatG:        entryFat,
					Meal:        meal,
					ServingSize: entryServing,
					ServingUnit: entryServingUnit,
					Barcode:     strings.TrimSpace(entryBarcode),
				})
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged entry %s\n", saved.ID)
			return nil
		})
	},
}

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Show, update or delete logged entries",
}

var entryShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			f, err := a.GetFood(cmd.Context(), id)
			if err != nil {
				return err
			}
			printFoodLog(cmd.OutOrStdout(), f)
			return nil
		})
	},
}

var entryUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			f, err := a.GetFood(cmd.Context(), id)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				f.Name = entryName
			}
			if flags.Changed("calories") {
				f.Calories = entryCalories
			}
			if flags.Changed("protein") {
				f.ProteinG = entryProtein
			}
			if flags.Changed("carbs") {
				f.CarbsG = entryCarbs
			}
			if flags.Changed("fat") {
				f.FatG = entryFat
			}
			if flags.Changed("meal") {
				if f.Meal, err = parseMeal(entryMeal); err != nil {
					return err
				}
			}
			if flags.Changed("serving") {
				f.ServingSize = entryServing
			}
			if flags.Changed("serving-unit") {
				f.ServingUnit = entryServingUnit
			}
			if flags.Changed("date") || flags.Changed("time") {
				date, clock := entryDate, entryTime
				if date == "" {
					date = f.LoggedAt.In(a.Location()).Format("2006-01-02")
				}
				if clock == "" {
					clock = f.LoggedAt.In(a.Location()).Format("15:04")
				}
				if f.LoggedAt, err = parseDateTimeOrNow(date, clock); err != nil {
					return err
				}
			}
			if _, err := a.UpdateFood(cmd.Context(), f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated entry %s\n", f.ID)
			return nil
		})
	},
}

var entryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			if err := a.DeleteFood(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry %s\n", id)
			return nil
		})
	},
}

func addEntryFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&entryName, "name", "", "Food name")
	cmd.Flags().Float64Var(&entryCalories, "calories", 0, "Calories (kcal)")
	cmd.Flags().Float64Var(&entryProtein, "protein", 0, "Protein grams")
	cmd.Flags().Float64Var(&entryCarbs, "carbs", 0, "Carbohydrate grams")
	cmd.Flags().Float64Var(&entryFat, "fat", 0, "Fat grams")
	cmd.Flags().StringVar(&entryMeal, "meal", string(model.MealSnacks), "Meal: breakfast, lunch, dinner or snacks")
	cmd.Flags().StringVar(&entryDate, "date", "", "Date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&entryTime, "time", "", "Time HH:MM (requires --date)")
	cmd.Flags().Float64Var(&entryServing, "serving", 1, "Serving size")
	cmd.Flags().StringVar(&entryServingUnit, "serving-unit", "serving", "Serving unit")
}

func init() {
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(entryCmd)
	entryCmd.AddCommand(entryShowCmd, entryUpdateCmd, entryDeleteCmd)

	addEntryFlags(logCmd)
	logCmd.Flags().StringVar(&entryBarcode, "barcode", "", "Barcode of the logged product")
	logCmd.Flags().StringVar(&entryFood, "food", "", "Log a saved custom food by id")
	logCmd.Flags().Float64Var(&entryServings, "servings", 1, "Servings of --food")

	addEntryFlags(entryUpdateCmd)
}
