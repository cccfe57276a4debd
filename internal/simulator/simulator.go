// Package simulator serves a fake capture daemon that speaks the minicap
// wire protocol with synthetic JPEG frames.
package simulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
	"github.com/bryanchriswhite/ScreenRelay/internal/minicap"
)

// Config describes the simulated screen.
type Config struct {
	Width   int
	Height  int
	FPS     int
	Quality int
}

// Simulator accepts capture clients and streams frames to each one.
type Simulator struct {
	config Config
	banner minicap.Banner
}

// New returns a Simulator. Zero fields fall back to 360x640 at 10 FPS.
func New(cfg Config) *Simulator {
	if cfg.Width <= 0 {
		cfg.Width = 360
	}
	if cfg.Height <= 0 {
		cfg.Height = 640
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 75
	}
	return &Simulator{
		config: cfg,
		banner: minicap.Banner{
			Version:       1,
			Length:        minicap.BannerSize,
			PID:           uint32(os.Getpid()),
			RealWidth:     uint32(cfg.Width),
			RealHeight:    uint32(cfg.Height),
			VirtualWidth:  uint32(cfg.Width),
			VirtualHeight: uint32(cfg.Height),
		},
	}
}

// Banner returns the banner sent to every client.
func (s *Simulator) Banner() minicap.Banner {
	return s.banner
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Simulator) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. It waits for
// every client stream to end before returning.
func (s *Simulator) Serve(ctx context.Context, ln net.Listener) error {
	log := logger.WithComponent("simulator")
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	log.Info().
		Str("addr", ln.Addr().String()).
		Int("width", s.config.Width).
		Int("height", s.config.Height).
		Int("fps", s.config.FPS).
		Msg("Simulated capture daemon listening")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Simulator) handle(ctx context.Context, conn net.Conn) {
	log := logger.WithComponent("simulator").With().Str("client", conn.RemoteAddr().String()).Logger()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	log.Info().Msg("Client connected")
	sent, err := s.stream(ctx, conn)
	if err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		log.Info().Err(err).Int("frames", sent).Msg("Client disconnected")
		return
	}
	log.Info().Int("frames", sent).Msg("Client stream ended")
}

func (s *Simulator) stream(ctx context.Context, conn net.Conn) (int, error) {
	enc := minicap.NewEncoder(conn)
	if err := enc.WriteBanner(s.banner); err != nil {
		return 0, err
	}

	ticker := time.NewTicker(time.Second / time.Duration(s.config.FPS))
	defer ticker.Stop()

	for n := 1; ; n++ {
		frame, err := Render(n, s.config.Width, s.config.Height, s.config.Quality)
		if err != nil {
			return n - 1, err
		}
		if err := enc.WriteFrame(frame); err != nil {
			return n - 1, err
		}

		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Render draws frame n: a solid color that cycles with n and the frame
// number in the top-left corner, encoded as JPEG.
func Render(n, width, height, quality int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(cycleColor(n)), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, 8+basicfont.Face7x13.Ascent),
	}
	d.DrawString(fmt.Sprintf("frame %d", n))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", n, err)
	}
	return buf.Bytes(), nil
}

// cycleColor walks the hue wheel in 6-degree steps.
func cycleColor(n int) color.RGBA {
	h := (n * 6) % 360
	x := uint8(255 * (60 - abs(h%120-60)) / 60)
	switch h / 60 {
	case 0:
		return color.RGBA{255, x, 0, 255}
	case 1:
		return color.RGBA{x, 255, 0, 255}
	case 2:
		return color.RGBA{0, 255, x, 255}
	case 3:
		return color.RGBA{0, x, 255, 255}
	case 4:
		return color.RGBA{x, 0, 255, 255}
	default:
		return color.RGBA{255, 0, x, 255}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
