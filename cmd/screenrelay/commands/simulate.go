package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/ScreenRelay/internal/simulator"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated capture daemon",
	Long: `Serve the minicap wire protocol with synthetic frames so the gateway can
be developed and tested without a device. Each client receives a banner and
then a stream of solid-color JPEG frames labelled with their frame number.`,
	Example: `  # Serve 360x640 frames at 10 FPS on the default capture port
  screenrelay simulate

  # In another terminal
  screenrelay serve

  # Larger frames, faster
  screenrelay simulate --width 1080 --height 1920 --fps 30`,
	RunE: runSimulate,
}

var simulateOpts struct {
	listen  string
	width   int
	height  int
	fps     int
	quality int
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	flags := simulateCmd.Flags()
	flags.StringVar(&simulateOpts.listen, "listen", "127.0.0.1:1717", "address to accept capture clients on")
	flags.IntVar(&simulateOpts.width, "width", 360, "frame width in pixels")
	flags.IntVar(&simulateOpts.height, "height", 640, "frame height in pixels")
	flags.IntVar(&simulateOpts.fps, "fps", 10, "frames per second per client")
	flags.IntVar(&simulateOpts.quality, "quality", 75, "JPEG quality (1-100)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := simulator.New(simulator.Config{
		Width:   simulateOpts.width,
		Height:  simulateOpts.height,
		FPS:     simulateOpts.fps,
		Quality: simulateOpts.quality,
	})
	return sim.ListenAndServe(ctx, simulateOpts.listen)
}
