package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/ScreenRelay/internal/app"
	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ScreenRelay server",
	Long: `Connect to the capture daemon and start the HTTP gateway.

The process runs until the capture stream ends, the HTTP server fails or
it receives SIGINT/SIGTERM. The capture connection is never re-opened.`,
	Example: `  # Start with defaults (capture 127.0.0.1:1717, HTTP 127.0.0.1:3000)
  screenrelay serve

  # Forward the capture port through adb first
  screenrelay serve --serial emulator-5554 --forward

  # Listen on all interfaces and relay to a queue service
  screenrelay serve --listen 0.0.0.0:3000 --queue-url http://127.0.0.1:8000

  # Start with debug logging
  screenrelay serve --log-level debug`,
	RunE: runServe,
}

// serveFlagKeys maps config keys to the serve flags that override them.
var serveFlagKeys = map[string]string{
	"capture.addr":      "capture",
	"server.addr":       "listen",
	"server.stream_fps": "fps",
	"device.serial":     "serial",
	"device.forward":    "forward",
	"queue.url":         "queue-url",
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("capture", "", "capture daemon address (host:port)")
	flags.String("listen", "", "HTTP listen address (host:port)")
	flags.Int("fps", 0, "poll rate of the live streams")
	flags.String("serial", "", "adb device serial")
	flags.Bool("forward", false, "run adb forward for the capture port before connecting")
	flags.String("queue-url", "", "base URL of the automation queue service")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig(cmd, serveFlagKeys)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	log := logger.WithComponent("app")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("capture", cfg.Capture.Addr).
		Str("listen", cfg.Server.Addr).
		Str("serial", cfg.Device.Serial).
		Bool("queue_relay", cfg.Queue.URL != "").
		Msg("Starting ScreenRelay")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.New(cfg).Run(ctx)
}
