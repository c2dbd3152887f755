package main

import (
	"fmt"

	"github.com/bobarin/gigi/internal/config"
	"github.com/bobarin/gigi/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfg       *config.Config
	logLevel  string
	logPretty bool
)

var rootCmd = &cobra.Command{
	Use:   "gigi",
	Short: "gigi studio - storyboard-to-video generation backend",
	Long: `gigi studio turns a brand and an ad scenario into a storyboard,
generates one short clip per scene through the remote GPU services and
merges the clips into a final video.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-pretty") {
			loaded.LogPretty = logPretty
		}

		logging.Init(loaded.LogLevel, loaded.LogPretty)
		log.Debug().Str("scenario_provider", loaded.ScenarioProvider).Msg("configuration loaded")

		cfg = loaded
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human-readable console logs")
}
