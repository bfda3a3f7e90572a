package kcal

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/saadjs/kcal-core/internal/db"
	"github.com/saadjs/kcal-core/internal/portability"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version/build metadata",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd)
	},
}

func printVersion(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "kcal %s\n", Version)
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				fmt.Fprintf(out, "commit: %s\n", s.Value)
			}
		}
	}
	fmt.Fprintf(out, "go: %s\n", runtime.Version())
	fmt.Fprintf(out, "database schema: v%d\n", db.SchemaVersion())
	fmt.Fprintf(out, "export schema: v%d\n", portability.SchemaVersion)
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
