package otp

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInput(t *testing.T, length int, opts ...Option) *Input {
	t.Helper()
	in, err := New(length, opts...)
	require.NoError(t, err)
	t.Cleanup(in.Close)
	return in
}

func TestNew_InvalidLength(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestChange_SingleDigitAdvancesFocus(t *testing.T) {
	var changes []string
	in := newInput(t, 6, WithOnChange(func(v string) { changes = append(changes, v) }))

	in.Change(0, "4")
	assert.Equal(t, "4", in.Value())
	assert.Equal(t, 1, in.Focused())

	in.Change(5, "9")
	assert.Equal(t, 5, in.Focused(), "focus stays on the last cell")
	assert.Equal(t, []string{"4", "49"}, changes)
}

func TestChange_StripsNonDigits(t *testing.T) {
	in := newInput(t, 6)
	in.Change(0, "a")
	assert.Equal(t, "", in.Value())
	assert.Equal(t, 0, in.Focused())

	in.Change(0, "1-2 3")
	assert.Equal(t, []string{"1", "2", "3", "", "", ""}, in.Cells())
}

func TestPaste_Placement(t *testing.T) {
	const length = 6
	for i := 0; i < length; i++ {
		for n := 1; n <= length; n++ {
			s := "987654"[:n]
			in := newInput(t, length)
			in.Paste(i, s)

			placed := s
			if len(placed) > length-i {
				placed = placed[:length-i]
			}
			cells := in.Cells()
			for k := 0; k < length; k++ {
				switch {
				case k < i || k >= i+len(placed):
					assert.Equal(t, "", cells[k], "i=%d s=%q cell %d", i, s, k)
				default:
					assert.Equal(t, placed[k-i:k-i+1], cells[k], "i=%d s=%q cell %d", i, s, k)
				}
			}
			if len(placed) > 1 {
				assert.Equal(t, min(i+len(placed)-1, length-1), in.Focused(), "i=%d s=%q", i, s)
			}
		}
	}
}

func TestPaste_KeepsOtherCells(t *testing.T) {
	in := newInput(t, 6)
	in.Change(0, "1")
	in.Paste(3, "4567")
	assert.Equal(t, []string{"1", "", "", "4", "5", "6"}, in.Cells())
	assert.Equal(t, 5, in.Focused())
}

func TestBackspace(t *testing.T) {
	in := newInput(t, 6)
	in.SetValue("123")

	// filled cell: cleared, focus stays
	in.KeyDown(2, KeyBackspace)
	assert.Equal(t, []string{"1", "2", "", "", "", ""}, in.Cells())
	assert.Equal(t, 2, in.Focused())

	// empty cell: never mutates, only moves left
	for i := 5; i >= 2; i-- {
		before := in.Cells()
		in.KeyDown(i, KeyBackspace)
		assert.Equal(t, before, in.Cells())
		assert.Equal(t, i-1, in.Focused())
	}

	in.Focus(0)
	in.KeyDown(0, KeyBackspace)
	in.KeyDown(0, KeyBackspace)
	assert.Equal(t, 0, in.Focused())
}

func TestArrowKeys(t *testing.T) {
	in := newInput(t, 4)
	in.SetValue("12")
	before := in.Cells()

	in.KeyDown(1, KeyRight)
	assert.Equal(t, 2, in.Focused())
	in.KeyDown(3, KeyRight)
	assert.Equal(t, 3, in.Focused())
	in.KeyDown(0, KeyLeft)
	assert.Equal(t, 0, in.Focused())
	in.KeyDown(2, KeyLeft)
	assert.Equal(t, 1, in.Focused())

	assert.Equal(t, before, in.Cells())
}

func TestKeyDown_EdgesFocusPressedCell(t *testing.T) {
	in := newInput(t, 4)
	in.Focus(1)

	in.KeyDown(3, KeyRight)
	assert.Equal(t, 3, in.Focused())

	in.Focus(2)
	in.KeyDown(0, KeyLeft)
	assert.Equal(t, 0, in.Focused())

	in.Focus(2)
	in.KeyDown(0, KeyBackspace)
	assert.Equal(t, 0, in.Focused())
}

func TestFocus_SelectsContent(t *testing.T) {
	in := newInput(t, 6)
	in.SetValue("12")
	assert.Equal(t, Selection{0, 1}, in.Focus(1))
	assert.Equal(t, Selection{0, 0}, in.Focus(4))
	assert.Equal(t, 4, in.Focused())
}

func TestAutoSubmit_OncePerFillEpisode(t *testing.T) {
	var fired []string
	in := newInput(t, 6, WithSubmitDelay(0), WithOnComplete(func(v string) { fired = append(fired, v) }))

	in.Paste(0, "123456")
	require.Equal(t, []string{"123456"}, fired)

	// refilling a full input without dropping below full does not refire
	in.Paste(0, "654321")
	in.Change(5, "9")
	assert.Len(t, fired, 1)

	// an external reset starts a new episode
	in.SetValue("")
	in.Paste(0, "000000")
	assert.Equal(t, []string{"123456", "000000"}, fired)
}

func TestAutoSubmit_BackspaceStartsNewEpisode(t *testing.T) {
	var count int
	in := newInput(t, 4, WithSubmitDelay(0), WithOnComplete(func(string) { count++ }))

	in.Paste(0, "1234")
	in.KeyDown(3, KeyBackspace)
	in.Change(3, "5")
	assert.Equal(t, 2, count)
}

func TestAutoSubmit_Delayed(t *testing.T) {
	var fired atomic.Int32
	in := newInput(t, 6, WithSubmitDelay(20*time.Millisecond), WithOnComplete(func(string) { fired.Add(1) }))

	in.Paste(0, "123456")
	assert.Equal(t, int32(0), fired.Load(), "fires after the delay")
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestAutoSubmit_CancelledWhenValueDrops(t *testing.T) {
	var fired atomic.Int32
	in := newInput(t, 6, WithSubmitDelay(30*time.Millisecond), WithOnComplete(func(string) { fired.Add(1) }))

	in.Paste(0, "123456")
	in.KeyDown(5, KeyBackspace)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestClose_CancelsPendingSubmit(t *testing.T) {
	var fired atomic.Int32
	in, err := New(6, WithSubmitDelay(30*time.Millisecond), WithOnComplete(func(string) { fired.Add(1) }))
	require.NoError(t, err)

	in.Paste(0, "123456")
	in.Close()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	in.Change(0, "1")
	assert.Equal(t, "123456", in.Value(), "closed input ignores edits")
}

func TestAutoSubmitOff(t *testing.T) {
	var count int
	in := newInput(t, 6, WithSubmitDelay(0), WithOnComplete(func(string) { count++ }), WithAutoSubmit(false))
	in.Paste(0, "123456")
	assert.Equal(t, 0, count)
	assert.True(t, in.Full())
}

func TestDisabledIgnoresEdits(t *testing.T) {
	in := newInput(t, 6, WithDisabled(true))
	in.Change(0, "1")
	in.Paste(0, "123")
	assert.Equal(t, "", in.Value())

	in.SetDisabled(false)
	in.Change(0, "1")
	assert.Equal(t, "1", in.Value())
}

func TestErrorModeIsDisplayOnly(t *testing.T) {
	in := newInput(t, 6)
	in.SetError(true)
	in.Change(0, "7")
	assert.True(t, in.Error())
	assert.Equal(t, "7", in.Value())
}

func TestSetValue(t *testing.T) {
	in := newInput(t, 6)
	in.SetValue("12a34567890")
	assert.Equal(t, "123456", in.Value())
	assert.Equal(t, 5, in.Focused())

	in.SetValue("12")
	assert.Equal(t, 2, in.Focused())
	assert.Equal(t, []string{"1", "2", "", "", "", ""}, in.Cells())
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "123", Digits("a1-2 3"))
	assert.Equal(t, "", Digits("abc"))
}
