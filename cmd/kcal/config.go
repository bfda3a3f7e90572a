package kcal

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/saadjs/kcal-core/internal/app"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect kcal configuration",
	Long: "kcal reads configuration from a YAML file (--config or $KCAL_CONFIG) and KCAL_* environment variables. " +
		"Environment variables take priority over the file.",
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"get"},
	Short:   "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		shown := *cfg
		shown.Lookup.USDAAPIKey = mask(shown.Lookup.USDAAPIKey)
		shown.Lookup.UPCItemDBAPIKey = mask(shown.Lookup.UPCItemDBAPIKey)
		shown.Health.Token = mask(shown.Health.Token)
		if shown.Database.Path, err = app.ResolveDBPath(shown.Database.Path); err != nil {
			return err
		}
		b, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
