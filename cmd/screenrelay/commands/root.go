package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/ScreenRelay/internal/config"
	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "screenrelay",
		Short: "ScreenRelay - Device screen capture bridge",
		Long: `ScreenRelay connects to a minicap capture daemon, keeps the most recent
screen frame in memory and serves it over HTTP.

Features:
  • Latest frame as JPEG with conditional GET and scaling
  • Live MJPEG and websocket streams
  • Tap, swipe, key and text input relayed through adb
  • Pass-through relay to an automation queue service
  • Prometheus metrics
  • Built-in capture daemon simulator for development`,
		SilenceUsage:      true,
		PersistentPreRunE: preRun,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/screenrelay/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", true, "human-readable console logs")
}

// preRun loads .env from the working directory and sets up logging from
// the global flags. Commands that read the config file re-initialize
// logging once the merged config is known.
func preRun(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = os.Getenv(config.EnvPrefix + "_LOG_LEVEL")
	}
	if level != "" && !logger.ValidLevel(level) {
		return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", level)
	}
	pretty, _ := cmd.Flags().GetBool("log-pretty")
	logger.Init(level, pretty)
	return nil
}

// loadConfig opens the config manager and binds the named flags of cmd
// over their keys. Global flags are always bound.
func loadConfig(cmd *cobra.Command, flagKeys map[string]string) (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	bind := map[string]string{
		"log_level":  "log-level",
		"log_pretty": "log-pretty",
	}
	for key, name := range flagKeys {
		bind[key] = name
	}
	for key, name := range bind {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := configMgr.BindFlag(key, flag); err != nil {
			return nil, nil, err
		}
	}

	cfg, err := configMgr.Get()
	if err != nil {
		return nil, nil, err
	}
	return configMgr, cfg, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
