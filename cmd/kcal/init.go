package kcal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saadjs/kcal-core/internal/app"
	"github.com/saadjs/kcal-core/internal/db"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize local kcal database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			path, err := app.ResolveDBPath(a.Config().Database.Path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized kcal database at %s (schema v%d)\n", path, db.SchemaVersion())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
