// Package input decodes gesture commands posted by viewers and applies
// them to a device controller.
package input

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/ScreenRelay/internal/device"
)

// Action is the tag selecting a command variant.
type Action string

const (
	ActionTap      Action = "tap"
	ActionLongTap  Action = "long_tap"
	ActionSwipe    Action = "swipe"
	ActionKeyEvent Action = "keyevent"
	ActionText     Action = "text"
)

// Command is one of Tap, LongTap, Swipe, KeyEvent or Text.
type Command interface {
	Action() Action
	apply(ctx context.Context, c device.Controller) error
}

type Tap struct {
	X, Y int
}

type LongTap struct {
	X, Y       int
	DurationMs int
}

type Swipe struct {
	X1, Y1, X2, Y2 int
	DurationMs     int
}

type KeyEvent struct {
	Key int
}

type Text struct {
	Text string
}

func (Tap) Action() Action      { return ActionTap }
func (LongTap) Action() Action  { return ActionLongTap }
func (Swipe) Action() Action    { return ActionSwipe }
func (KeyEvent) Action() Action { return ActionKeyEvent }
func (Text) Action() Action     { return ActionText }

func (t Tap) apply(ctx context.Context, c device.Controller) error {
	return c.Tap(ctx, t.X, t.Y)
}

func (t LongTap) apply(ctx context.Context, c device.Controller) error {
	return c.LongTap(ctx, t.X, t.Y, t.DurationMs)
}

func (s Swipe) apply(ctx context.Context, c device.Controller) error {
	return c.Swipe(ctx, s.X1, s.Y1, s.X2, s.Y2, s.DurationMs)
}

func (k KeyEvent) apply(ctx context.Context, c device.Controller) error {
	return c.KeyEvent(ctx, k.Key)
}

func (t Text) apply(ctx context.Context, c device.Controller) error {
	return c.Text(ctx, t.Text)
}

// Execute runs cmd against the controller.
func Execute(ctx context.Context, c device.Controller, cmd Command) error {
	return cmd.apply(ctx, c)
}

// ValidationError reports a malformed or incomplete command body.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

type rawCommand struct {
	Action   *string `json:"action"`
	X        *uint32 `json:"x"`
	Y        *uint32 `json:"y"`
	X1       *uint32 `json:"x1"`
	Y1       *uint32 `json:"y1"`
	X2       *uint32 `json:"x2"`
	Y2       *uint32 `json:"y2"`
	Duration *uint32 `json:"duration"`
	Key      *uint32 `json:"key"`
	Text     *string `json:"text"`
}

// Decode parses a JSON command body. Unknown actions and missing or
// mistyped fields yield a *ValidationError.
func Decode(data []byte) (Command, error) {
	var raw rawCommand
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if typeErr.Field == "" {
				return nil, &ValidationError{Reason: "body must be a JSON object"}
			}
			return nil, &ValidationError{Field: typeErr.Field, Reason: "has the wrong type"}
		}
		return nil, &ValidationError{Reason: "invalid JSON"}
	}
	if raw.Action == nil {
		return nil, &ValidationError{Field: "action", Reason: "missing"}
	}

	switch Action(*raw.Action) {
	case ActionTap:
		if err := requireFields(map[string]*uint32{"x": raw.X, "y": raw.Y}); err != nil {
			return nil, err
		}
		return Tap{X: int(*raw.X), Y: int(*raw.Y)}, nil
	case ActionLongTap:
		if err := requireFields(map[string]*uint32{"x": raw.X, "y": raw.Y, "duration": raw.Duration}); err != nil {
			return nil, err
		}
		return LongTap{X: int(*raw.X), Y: int(*raw.Y), DurationMs: int(*raw.Duration)}, nil
	case ActionSwipe:
		if err := requireFields(map[string]*uint32{
			"x1": raw.X1, "y1": raw.Y1, "x2": raw.X2, "y2": raw.Y2, "duration": raw.Duration,
		}); err != nil {
			return nil, err
		}
		return Swipe{
			X1: int(*raw.X1), Y1: int(*raw.Y1),
			X2: int(*raw.X2), Y2: int(*raw.Y2),
			DurationMs: int(*raw.Duration),
		}, nil
	case ActionKeyEvent:
		if err := requireFields(map[string]*uint32{"key": raw.Key}); err != nil {
			return nil, err
		}
		return KeyEvent{Key: int(*raw.Key)}, nil
	case ActionText:
		if raw.Text == nil || *raw.Text == "" {
			return nil, &ValidationError{Field: "text", Reason: "missing"}
		}
		if err := device.CheckText(*raw.Text); err != nil {
			return nil, &ValidationError{Field: "text", Reason: err.Error()}
		}
		return Text{Text: *raw.Text}, nil
	default:
		return nil, &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", *raw.Action)}
	}
}

// fieldOrder keeps error messages deterministic.
var fieldOrder = []string{"x", "y", "x1", "y1", "x2", "y2", "duration", "key"}

func requireFields(fields map[string]*uint32) error {
	for _, name := range fieldOrder {
		v, ok := fields[name]
		if ok && v == nil {
			return &ValidationError{Field: name, Reason: "missing"}
		}
	}
	return nil
}
