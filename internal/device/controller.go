// Package device relays input gestures to an Android device.
package device

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
)

// Controller executes input gestures on the physical device.
type Controller interface {
	Tap(ctx context.Context, x, y int) error
	LongTap(ctx context.Context, x, y, durationMs int) error
	Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error
	KeyEvent(ctx context.Context, key int) error
	Text(ctx context.Context, text string) error
	Forward(ctx context.Context, local, remote string) error
}

var commandContext = exec.CommandContext

// ADB drives a device through the adb command line tool. Commands are
// issued one at a time.
type ADB struct {
	binary string
	serial string
	mu     sync.Mutex
}

// Option configures an ADB controller.
type Option func(*ADB)

// WithBinary overrides the adb executable path.
func WithBinary(path string) Option {
	return func(a *ADB) {
		if strings.TrimSpace(path) != "" {
			a.binary = path
		}
	}
}

// WithSerial targets a specific device; empty means adb's default device.
func WithSerial(serial string) Option {
	return func(a *ADB) { a.serial = serial }
}

// NewADB creates an adb-backed controller.
func NewADB(opts ...Option) *ADB {
	a := &ADB{binary: "adb"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Serial returns the targeted device serial.
func (a *ADB) Serial() string { return a.serial }

func (a *ADB) Tap(ctx context.Context, x, y int) error {
	return a.input(ctx, "tap", itoa(x), itoa(y))
}

// LongTap is a swipe that starts and ends on the same point.
func (a *ADB) LongTap(ctx context.Context, x, y, durationMs int) error {
	return a.input(ctx, "swipe", itoa(x), itoa(y), itoa(x), itoa(y), itoa(durationMs))
}

func (a *ADB) Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error {
	return a.input(ctx, "swipe", itoa(x1), itoa(y1), itoa(x2), itoa(y2), itoa(durationMs))
}

func (a *ADB) KeyEvent(ctx context.Context, key int) error {
	return a.input(ctx, "keyevent", itoa(key))
}

func (a *ADB) Text(ctx context.Context, text string) error {
	if err := CheckText(text); err != nil {
		return err
	}
	return a.input(ctx, "text", EscapeText(text))
}

// Forward maps a local endpoint (e.g. "tcp:1717") to a device endpoint
// (e.g. "localabstract:minicap").
func (a *ADB) Forward(ctx context.Context, local, remote string) error {
	return a.run(ctx, "forward", local, remote)
}

func (a *ADB) input(ctx context.Context, args ...string) error {
	return a.run(ctx, append([]string{"shell", "input"}, args...)...)
}

func (a *ADB) run(ctx context.Context, args ...string) error {
	full := make([]string, 0, len(args)+2)
	if a.serial != "" {
		full = append(full, "-s", a.serial)
	}
	full = append(full, args...)

	a.mu.Lock()
	defer a.mu.Unlock()

	logger.WithComponent("device").Debug().Strs("args", full).Msg("Running adb")
	cmd := commandContext(ctx, a.binary, full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

// ErrUntypableText is returned for text containing a literal "%s", which
// "input text" always types as a space.
var ErrUntypableText = errors.New(`text contains "%s"`)

// CheckText reports whether "input text" can type text verbatim.
func CheckText(text string) error {
	if strings.Contains(text, "%s") {
		return ErrUntypableText
	}
	return nil
}

var textEscaper = strings.NewReplacer(
	" ", "%s",
	`\`, `\\`,
	`"`, `\"`,
	`'`, `\'`,
	"`", "\\`",
	"$", `\$`,
	"&", `\&`,
	"|", `\|`,
	";", `\;`,
	"<", `\<`,
	">", `\>`,
	"(", `\(`,
	")", `\)`,
	"*", `\*`,
	"~", `\~`,
	"#", `\#`,
)

// EscapeText prepares text for "input text", which splits on spaces and
// runs through the device shell.
func EscapeText(text string) string {
	return textEscaper.Replace(text)
}

func itoa(n int) string { return strconv.Itoa(n) }
