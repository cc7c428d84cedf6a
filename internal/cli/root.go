package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatmakere/internal/config"
	"chatmakere/internal/logging"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:          "chatmakere",
	Short:        "Realtime chat service",
	Long:         "chatmakere serves the chat REST API and the realtime WebSocket endpoint.",
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command. Without a subcommand it serves.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./application.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Service), nil
}
