// Package otp is a headless fixed-length numeric code editor.
//
// An Input models one cell per digit with a focused cell. Typing into a cell
// advances focus, pasting spreads digits across the following cells and
// backspace on an empty cell only moves focus left. When auto-submit is on,
// the completion callback fires once per fill episode: the period during
// which every cell holds a digit since the last time one did not.
package otp

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultLength is the TOTP code length
const DefaultLength = 6

// DefaultSubmitDelay lets the last keystroke render before completion fires
const DefaultSubmitDelay = 100 * time.Millisecond

// ErrInvalidLength is returned by New for a non-positive length
var ErrInvalidLength = errors.New("otp length must be positive")

// Key is a navigation key delivered to KeyDown
type Key int

const (
	KeyBackspace Key = iota
	KeyLeft
	KeyRight
)

// Selection is the selected range inside a focused cell
type Selection struct {
	Start, End int
}

// Input is the OTP editor state. It is safe for concurrent use; callbacks
// run without the lock held.
type Input struct {
	mu         sync.Mutex
	cells      []string
	focus      int
	disabled   bool
	errorMode  bool
	autoSubmit bool
	delay      time.Duration
	onChange   func(string)
	onComplete func(string)

	// completed latches once per fill episode
	completed bool
	timer     *time.Timer
	// episode invalidates timers scheduled for an earlier fill episode
	episode uint64
	closed  bool
}

// Option configures an Input
type Option func(*Input)

// WithOnChange sets the callback invoked with the joined value after every edit
func WithOnChange(fn func(string)) Option {
	return func(in *Input) { in.onChange = fn }
}

// WithOnComplete sets the completion callback and turns auto-submit on
func WithOnComplete(fn func(string)) Option {
	return func(in *Input) {
		in.onComplete = fn
		in.autoSubmit = fn != nil
	}
}

// WithAutoSubmit toggles auto-submit without changing the callback
func WithAutoSubmit(on bool) Option {
	return func(in *Input) { in.autoSubmit = on }
}

// WithSubmitDelay sets the delay before the completion callback runs
func WithSubmitDelay(d time.Duration) Option {
	return func(in *Input) {
		if d >= 0 {
			in.delay = d
		}
	}
}

// WithDisabled starts the input disabled
func WithDisabled(disabled bool) Option {
	return func(in *Input) { in.disabled = disabled }
}

// New creates an empty input with length cells
func New(length int, opts ...Option) (*Input, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	in := &Input{
		cells: make([]string, length),
		delay: DefaultSubmitDelay,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Len returns the number of cells
func (in *Input) Len() int {
	return len(in.cells)
}

// Value returns the joined digits
func (in *Input) Value() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return strings.Join(in.cells, "")
}

// Cells returns a copy of the cell contents
func (in *Input) Cells() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.cells...)
}

// Focused returns the index of the focused cell
func (in *Input) Focused() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.focus
}

// Full reports whether every cell holds a digit
func (in *Input) Full() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.full()
}

// Disabled reports whether edits are ignored
func (in *Input) Disabled() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.disabled
}

// SetDisabled toggles whether edits are accepted
func (in *Input) SetDisabled(disabled bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.disabled = disabled
}

// Error reports whether the input is in error display mode
func (in *Input) Error() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.errorMode
}

// SetError toggles error display mode. It does not affect editing.
func (in *Input) SetError(on bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.errorMode = on
}

// Focus moves focus to cell i and selects its content so typing replaces it
func (in *Input) Focus(i int) Selection {
	in.mu.Lock()
	defer in.mu.Unlock()
	i = in.clamp(i)
	in.focus = i
	return Selection{Start: 0, End: len(in.cells[i])}
}

// Change handles text entered into cell i. Non-digits are stripped. A single
// digit fills the cell and advances focus, several digits are spread over
// the following cells, and empty text clears the cell.
func (in *Input) Change(i int, text string) {
	in.mu.Lock()
	if in.disabled || in.closed || i < 0 || i >= len(in.cells) {
		in.mu.Unlock()
		return
	}

	digits := Digits(text)
	switch {
	case text == "":
		in.cells[i] = ""
		in.focus = i
	case digits == "":
		in.mu.Unlock()
		return
	case len(digits) == 1:
		in.cells[i] = digits
		if i < len(in.cells)-1 {
			in.focus = i + 1
		} else {
			in.focus = i
		}
	default:
		n := min(len(digits), len(in.cells)-i)
		for k := 0; k < n; k++ {
			in.cells[i+k] = digits[k : k+1]
		}
		in.focus = min(i+n-1, len(in.cells)-1)
	}
	in.commit()
}

// Paste is Change with pasted text
func (in *Input) Paste(i int, text string) {
	in.Change(i, text)
}

// KeyDown handles navigation keys on cell i
func (in *Input) KeyDown(i int, key Key) {
	in.mu.Lock()
	if in.disabled || in.closed || i < 0 || i >= len(in.cells) {
		in.mu.Unlock()
		return
	}
	in.focus = i

	switch key {
	case KeyBackspace:
		if in.cells[i] != "" {
			in.cells[i] = ""
			in.commit()
			return
		}
		if i > 0 {
			in.focus = i - 1
		}
	case KeyLeft:
		if i > 0 {
			in.focus = i - 1
		}
	case KeyRight:
		if i < len(in.cells)-1 {
			in.focus = i + 1
		}
	}
	in.mu.Unlock()
}

// SetValue replaces the content from outside, as a parent resetting the
// input after a failed submission does. Non-digits are stripped and overflow
// is truncated. OnChange is not called.
func (in *Input) SetValue(value string) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	digits := Digits(value)
	for k := range in.cells {
		if k < len(digits) {
			in.cells[k] = digits[k : k+1]
		} else {
			in.cells[k] = ""
		}
	}
	if len(digits) < len(in.cells) {
		in.focus = len(digits)
	} else {
		in.focus = len(in.cells) - 1
	}
	complete := in.evaluate()
	in.mu.Unlock()

	if complete != nil {
		complete()
	}
}

// Reset clears every cell and focuses the first one
func (in *Input) Reset() {
	in.SetValue("")
}

// Close cancels a pending completion. A callback that was already due does
// not run after Close.
func (in *Input) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	in.cancelTimer()
}

// commit publishes an edit. Must be called with in.mu held; it unlocks.
func (in *Input) commit() {
	value := strings.Join(in.cells, "")
	onChange := in.onChange
	complete := in.evaluate()
	in.mu.Unlock()

	if onChange != nil {
		onChange(value)
	}
	if complete != nil {
		complete()
	}
}

// evaluate updates the fill-episode latch. It returns a function to run
// immediately when there is no submit delay. Must be called with in.mu held.
func (in *Input) evaluate() func() {
	if !in.full() {
		if in.completed {
			in.completed = false
			in.episode++
			in.cancelTimer()
		}
		return nil
	}
	if in.completed || !in.autoSubmit || in.onComplete == nil {
		return nil
	}

	in.completed = true
	episode := in.episode
	if in.delay == 0 {
		value := strings.Join(in.cells, "")
		fn := in.onComplete
		return func() { fn(value) }
	}
	in.timer = time.AfterFunc(in.delay, func() { in.fire(episode) })
	return nil
}

func (in *Input) fire(episode uint64) {
	in.mu.Lock()
	if in.closed || episode != in.episode || !in.full() {
		in.mu.Unlock()
		return
	}
	in.timer = nil
	value := strings.Join(in.cells, "")
	fn := in.onComplete
	in.mu.Unlock()

	fn(value)
}

func (in *Input) cancelTimer() {
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
}

func (in *Input) full() bool {
	for _, c := range in.cells {
		if c == "" {
			return false
		}
	}
	return true
}

func (in *Input) clamp(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(in.cells) {
		return len(in.cells) - 1
	}
	return i
}

// Digits strips every non-digit character from s
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
