package kcal

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/saadjs/kcal-core/internal/app"
	"github.com/saadjs/kcal-core/internal/goals"
	"github.com/saadjs/kcal-core/internal/model"
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage daily calorie and macro goals",
}

var (
	goalCalories  float64
	goalProtein   float64
	goalCarbs     float64
	goalFat       float64
	goalActivity  string
	goalDirection string
	goalBMR       float64
	goalTDEE      float64

	planWeight float64
	planHeight float64
	planAge    int
	planSex    string
)

var goalSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set daily goals explicitly",
	RunE: func(cmd *cobra.Command, args []string) error {
		activity, err := model.ParseActivityLevel(goalActivity)
		if err != nil {
			return err
		}
		direction, err := model.ParseGoalDirection(goalDirection)
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			g, err := a.UpdateGoals(cmd.Context(), model.NutritionGoals{
				Calories:      goalCalories,
				ProteinG:      goalProtein,
				CarbsG:        goalCarbs,
				FatG:          goalFat,
				ActivityLevel: activity,
				Direction:     direction,
				BMR:           goalBMR,
				TDEE:          goalTDEE,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set goals for %s\n", g.Scope)
			return nil
		})
	},
}

var goalShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"current"},
	Short:   "Show current goals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			g, err := a.LoadGoals(cmd.Context())
			if err != nil {
				return err
			}
			if g == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No goal configured")
				return nil
			}
			printGoals(cmd.OutOrStdout(), *g)
			return nil
		})
	},
}

var goalPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute goals from body metrics, activity level and direction",
	Long: "Compute BMR (Mifflin-St Jeor), TDEE and macro targets and save them as the active goals. " +
		"Metrics left unset are read from the health service when one is configured.",
	RunE: func(cmd *cobra.Command, args []string) error {
		activity, err := model.ParseActivityLevel(goalActivity)
		if err != nil {
			return err
		}
		direction, err := model.ParseGoalDirection(goalDirection)
		if err != nil {
			return err
		}
		in := goals.PlanInput{
			WeightKg:      planWeight,
			HeightCm:      planHeight,
			Age:           planAge,
			ActivityLevel: activity,
			Direction:     direction,
		}
		if planSex != "" {
			if in.Sex, err = model.ParseBiologicalSex(planSex); err != nil {
				return err
			}
		}
		return withApp(cmd, func(a *app.App) error {
			g, err := a.SetupGoals(cmd.Context(), in)
			if err != nil {
				return err
			}
			printGoals(cmd.OutOrStdout(), g)
			return nil
		})
	},
}

func printGoals(w io.Writer, g model.NutritionGoals) {
	fmt.Fprintf(w, "Scope: %s\n", g.Scope)
	printMacros(w, "Goal", g.Macros())
	fmt.Fprintf(w, "Activity: %s | Direction: %s\n", g.ActivityLevel, g.Direction)
	fmt.Fprintf(w, "BMR: %.0f kcal | TDEE: %.0f kcal\n", g.BMR, g.TDEE)
	if !g.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated: %s\n", g.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

func init() {
	rootCmd.AddCommand(goalCmd)
	goalCmd.AddCommand(goalSetCmd, goalShowCmd, goalPlanCmd)

	goalSetCmd.Flags().Float64Var(&goalCalories, "calories", 0, "Daily calories")
	goalSetCmd.Flags().Float64Var(&goalProtein, "protein", 0, "Daily protein grams")
	goalSetCmd.Flags().Float64Var(&goalCarbs, "carbs", 0, "Daily carbohydrate grams")
	goalSetCmd.Flags().Float64Var(&goalFat, "fat", 0, "Daily fat grams")
	goalSetCmd.Flags().Float64Var(&goalBMR, "bmr", 0, "Basal metabolic rate")
	goalSetCmd.Flags().Float64Var(&goalTDEE, "tdee", 0, "Total daily energy expenditure")
	_ = goalSetCmd.MarkFlagRequired("calories")
	_ = goalSetCmd.MarkFlagRequired("bmr")

	for _, c := range []*cobra.Command{goalSetCmd, goalPlanCmd} {
		c.Flags().StringVar(&goalActivity, "activity", string(model.ActivitySedentary), "Activity: sedentary, lightly_active, moderately_active, very_active, extra_active")
		c.Flags().StringVar(&goalDirection, "direction", string(model.GoalMaintain), "Direction: cut, maintain or bulk")
	}

	goalPlanCmd.Flags().Float64Var(&planWeight, "weight", 0, "Weight in kg")
	goalPlanCmd.Flags().Float64Var(&planHeight, "height", 0, "Height in cm")
	goalPlanCmd.Flags().IntVar(&planAge, "age", 0, "Age in years")
	goalPlanCmd.Flags().StringVar(&planSex, "sex", "", "Biological sex: male or female")
}
