package kcal

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/saadjs/kcal-core/internal/app"
	"github.com/saadjs/kcal-core/internal/model"
)

var foodCmd = &cobra.Command{
	Use:   "food",
	Short: "Manage reusable custom foods",
}

var (
	foodName        string
	foodCalories    float64
	foodProtein     float64
	foodCarbs       float64
	foodFat         float64
	foodServing     float64
	foodServingUnit string
	foodIngredients []string
	foodFile        string
	foodQuery       string
)

var foodCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a custom food",
	Long: "Create a custom food from macros, or a composite food with one --ingredient per item " +
		"formatted name:quantity:unit:calories:protein:carbs:fat. --file reads a JSON food instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		food, err := foodFromFlags(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			saved, err := a.CreateCustomFood(cmd.Context(), food)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created food %s\n", saved.ID)
			return nil
		})
	},
}

var foodUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a custom food",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			food, err := a.GetCustomFood(cmd.Context(), id)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				food.Name = foodName
			}
			if flags.Changed("calories") {
				food.Calories = foodCalories
			}
			if flags.Changed("protein") {
				food.ProteinG = foodProtein
			}
			if flags.Changed("carbs") {
				food.CarbsG = foodCarbs
			}
			if flags.Changed("fat") {
				food.FatG = foodFat
			}
			if flags.Changed("serving") {
				food.ServingSize = foodServing
			}
			if flags.Changed("serving-unit") {
				food.ServingUnit = foodServingUnit
			}
			if flags.Changed("ingredient") {
				if food.Ingredients, err = parseIngredients(foodIngredients); err != nil {
					return err
				}
			}
			if _, err := a.UpdateCustomFood(cmd.Context(), food); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated food %s\n", food.ID)
			return nil
		})
	},
}

var foodListCmd = &cobra.Command{
	Use:     "list [query]",
	Aliases: []string{"search"},
	Short:   "List custom foods, optionally filtered by name",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := foodQuery
		if len(args) == 1 {
			query = args[0]
		}
		return withApp(cmd, func(a *app.App) error {
			foods, err := a.SearchCustomFoods(cmd.Context(), query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(foods) == 0 {
				fmt.Fprintln(out, "No custom foods")
				return nil
			}
			for _, f := range foods {
				printCustomFood(out, f)
			}
			return nil
		})
	},
}

var foodShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a custom food and its ingredients",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			f, err := a.GetCustomFood(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printCustomFood(out, f)
			for _, ing := range f.Ingredients {
				fmt.Fprintf(out, "  - %s %.1f %s: %.1f kcal  P %.1fg | C %.1fg | F %.1fg\n",
					ing.Name, ing.Quantity, ing.Unit, ing.Calories, ing.ProteinG, ing.CarbsG, ing.FatG)
			}
			return nil
		})
	},
}

var foodDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a custom food",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			if err := a.DeleteCustomFood(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted food %s\n", id)
			return nil
		})
	},
}

func foodFromFlags(cmd *cobra.Command) (model.CustomFood, error) {
	if foodFile != "" {
		raw, err := os.ReadFile(foodFile)
		if err != nil {
			return model.CustomFood{}, fmt.Errorf("read food file: %w", err)
		}
		var f model.CustomFood
		if err := json.Unmarshal(raw, &f); err != nil {
			return model.CustomFood{}, fmt.Errorf("parse food file: %w", err)
		}
		return f, nil
	}
	ingredients, err := parseIngredients(foodIngredients)
	if err != nil {
		return model.CustomFood{}, err
	}
	return model.CustomFood{
		Name:        foodName,
		Calories:    foodCalories,
		ProteinG:    foodProtein,
		CarbsG:      foodCarbs,
		FatG:        foodFat,
		ServingSize: foodServing,
		ServingUnit: foodServingUnit,
		Ingredients: ingredients,
	}, nil
}

func parseIngredients(values []string) ([]model.Ingredient, error) {
	out := make([]model.Ingredient, 0, len(values))
	for _, v := range values {
		parts := strings.Split(v, ":")
		if len(parts) != 7 {
			return nil, fmt.Errorf("invalid --ingredient %q (expected name:quantity:unit:calories:protein:carbs:fat)", v)
		}
		nums := make([]float64, 0, 5)
		for _, p := range []string{parts[1], parts[3], parts[4], parts[5], parts[6]} {
			n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q in --ingredient %q", p, v)
			}
			nums = append(nums, n)
		}
		out = append(out, model.Ingredient{
			Name:     strings.TrimSpace(parts[0]),
			Quantity: nums[0],
			Unit:     strings.TrimSpace(parts[2]),
			Calories: nums[1],
			ProteinG: nums[2],
			CarbsG:   nums[3],
			FatG:     nums[4],
		})
	}
	return out, nil
}

func printCustomFood(w io.Writer, f model.CustomFood) {
	kind := "simple"
	if f.IsComposite {
		kind = fmt.Sprintf("composite, %d ingredients", len(f.Ingredients))
	}
	fmt.Fprintf(w, "%s  %-24s  %.0f %s  %.1f kcal  P %.1fg | C %.1fg | F %.1fg  (%s)\n",
		f.ID, f.Name, f.ServingSize, f.ServingUnit, f.Calories, f.ProteinG, f.CarbsG, f.FatG, kind)
}

func init() {
	rootCmd.AddCommand(foodCmd)
	foodCmd.AddCommand(foodCreateCmd, foodUpdateCmd, foodListCmd, foodShowCmd, foodDeleteCmd)

	for _, c := range []*cobra.Command{foodCreateCmd, foodUpdateCmd} {
		c.Flags().StringVar(&foodName, "name", "", "Food name")
		c.Flags().Float64Var(&foodCalories, "calories", 0, "Calories per serving")
		c.Flags().Float64Var(&foodProtein, "protein", 0, "Protein grams per serving")
		c.Flags().Float64Var(&foodCarbs, "carbs", 0, "Carbohydrate grams per serving")
		c.Flags().Float64Var(&foodFat, "fat", 0, "Fat grams per serving")
		c.Flags().Float64Var(&foodServing, "serving", 1, "Serving size")
		c.Flags().StringVar(&foodServingUnit, "serving-unit", "serving", "Serving unit")
		c.Flags().StringArrayVar(&foodIngredients, "ingredient", nil, "Ingredient name:quantity:unit:calories:protein:carbs:fat (repeatable)")
	}
	foodCreateCmd.Flags().StringVar(&foodFile, "file", "", "Read the food from a JSON file")
	foodListCmd.Flags().StringVar(&foodQuery, "query", "", "Name filter")
}
