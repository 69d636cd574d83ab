// Package browser provides utilities for browser automation with Rod.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
)

// TypeHuman types text with 50-150ms pauses between keystrokes. Each key
// fires keydown/keyup, so forms that validate on key events react as they
// would for a person.
func TypeHuman(ctx context.Context, el *rod.Element, text string) error {
	el = el.Context(ctx)
	for _, char := range text {
		if err := typeKey(el, char); err != nil {
			return err
		}
		if err := sleep(ctx, time.Duration(50+rand.Intn(100))*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// typeKey turns rod's panic on runes missing from the keyboard layout into
// an error.
func typeKey(el *rod.Element, r rune) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("type %q: %v", r, p)
		}
	}()
	return el.Type(input.Key(r))
}

// TypeFast inserts text in one step and fires a single input event. Unlike
// Type it accepts any rune, which passwords need.
func TypeFast(ctx context.Context, el *rod.Element, text string) error {
	return el.Context(ctx).Input(text)
}

// ClearAndType empties el and types text into it. Human typing falls back to
// a fast insert when the text has characters the keyboard cannot produce.
func ClearAndType(ctx context.Context, el *rod.Element, text string, human bool) error {
	clear := func() error {
		_, err := el.Context(ctx).Eval(`() => { this.value = ''; }`)
		return err
	}
	if err := clear(); err != nil {
		return err
	}
	if human {
		if err := TypeHuman(ctx, el, text); err == nil {
			return nil
		}
		if err := clear(); err != nil {
			return err
		}
	}
	return TypeFast(ctx, el, text)
}
