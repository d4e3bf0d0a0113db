package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/artist-check/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "artist-check",
	Short:   "Score artists against a planned city and date",
	Long:    "Fetches artists' show histories, scores how saturated a planned city and date already are for each of them, and keeps a priced roster of candidates.",
	Version: version,
	// Config and logger are ready before any subcommand runs; the shows
	// and roster groups chain onto this and validate afterwards.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			c.Log.Level = lvl
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("file", path),
			zap.String("store", cfg.Store.Driver),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
