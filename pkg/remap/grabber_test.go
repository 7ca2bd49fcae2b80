package remap

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/johnw42/remapd/pkg/keys"
	"github.com/johnw42/remapd/pkg/x11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDisplay records every server call in order and can be told to
// refuse specific ones.
type fakeDisplay struct {
	calls      []string
	sent       []x11.InputEvent
	failSend   map[x11.InputEvent]bool
	failGrab   map[string]bool
	failUngrab map[string]bool
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{
		failSend:   make(map[x11.InputEvent]bool),
		failGrab:   make(map[string]bool),
		failUngrab: make(map[string]bool),
	}
}

func site(win x11.Window, code keys.Keycode, mods keys.ModSet) string {
	return fmt.Sprintf("%d %d %s", win, code, mods)
}

func (f *fakeDisplay) RootWindow() x11.Window { return 1 }

func (f *fakeDisplay) GrabKey(win x11.Window, code keys.Keycode, mods keys.ModSet) error {
	f.calls = append(f.calls, "grab "+site(win, code, mods))
	if f.failGrab[site(win, code, mods)] {
		return errors.New("grab refused")
	}
	return nil
}

func (f *fakeDisplay) UngrabKey(win x11.Window, code keys.Keycode, mods keys.ModSet) error {
	f.calls = append(f.calls, "ungrab "+site(win, code, mods))
	if f.failUngrab[site(win, code, mods)] {
		return errors.New("ungrab refused")
	}
	return nil
}

func (f *fakeDisplay) SendInput(ev x11.InputEvent) error {
	f.calls = append(f.calls, "send "+ev.String())
	if f.failSend[ev] {
		return errors.New("send refused")
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeDisplay) Sync() {
	f.calls = append(f.calls, "sync")
}

func (f *fakeDisplay) countCalls(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func newTestGrabber(t *testing.T) (*Grabber, *fakeDisplay) {
	t.Helper()
	display := newFakeDisplay()
	return NewGrabber(display, zap.NewNop().Sugar()), display
}

func TestGrabIdempotent(t *testing.T) {
	g, display := newTestGrabber(t)
	mods := keys.NewModSet(keys.Shift)

	require.NoError(t, g.Grab(1, 38, mods))
	require.NoError(t, g.Grab(1, 38, mods))

	assert.Equal(t, 1, display.countCalls("grab"))
	assert.True(t, g.active[grabSite{win: 1, code: 38}][mods])
	assert.Len(t, g.active[grabSite{win: 1, code: 38}], 1)
}

func TestUngrabReleasesEveryCombination(t *testing.T) {
	g, display := newTestGrabber(t)

	require.NoError(t, g.Grab(1, 38, keys.NewModSet(keys.Shift)))
	require.NoError(t, g.Grab(1, 38, keys.NewModSet(keys.Shift, keys.NumLock)))
	require.NoError(t, g.Grab(1, 40, keys.NewModSet(keys.Ctrl)))

	require.NoError(t, g.Ungrab(1, 38))

	assert.Equal(t, 2, display.countCalls("ungrab"))
	assert.NotContains(t, g.active, grabSite{win: 1, code: 38})
	assert.Contains(t, g.active, grabSite{win: 1, code: 40})

	// nothing left to release
	require.NoError(t, g.Ungrab(1, 38))
	assert.Equal(t, 2, display.countCalls("ungrab"))
}

func TestPushPopRoundTrip(t *testing.T) {
	g, _ := newTestGrabber(t)

	require.NoError(t, g.Grab(1, 38, keys.NewModSet(keys.Shift)))
	require.NoError(t, g.Grab(1, 40, keys.NewModSet(keys.Ctrl)))
	before := g.snapshot()

	g.PushState()
	require.NoError(t, g.Ungrab(1, 38))
	require.NoError(t, g.Grab(1, 50, keys.ModSet(0)))
	require.NoError(t, g.Grab(1, 40, keys.NewModSet(keys.Ctrl))) // already held, no-op
	require.NoError(t, g.Ungrab(1, 50))                          // undo our own grab
	require.NoError(t, g.PopState())

	assert.Equal(t, before, g.snapshot())
	assert.Empty(t, g.undo)
}

func TestNestedFrames(t *testing.T) {
	g, _ := newTestGrabber(t)

	require.NoError(t, g.Grab(1, 38, keys.NewModSet(keys.Shift)))
	outer := g.snapshot()

	g.PushState()
	require.NoError(t, g.Ungrab(1, 38))
	mid := g.snapshot()

	g.PushState()
	require.NoError(t, g.Grab(1, 50, keys.ModSet(0)))
	require.NoError(t, g.PopState())
	assert.Equal(t, mid, g.snapshot())

	require.NoError(t, g.PopState())
	assert.Equal(t, outer, g.snapshot())
}

func TestPopWithoutPushPanics(t *testing.T) {
	g, _ := newTestGrabber(t)
	require.Panics(t, func() { _ = g.PopState() })
}

func TestPopContinuesPastServerErrors(t *testing.T) {
	g, display := newTestGrabber(t)

	g.PushState()
	require.NoError(t, g.Grab(1, 38, keys.NewModSet(keys.Shift)))
	require.NoError(t, g.Grab(1, 40, keys.NewModSet(keys.Ctrl)))

	display.failUngrab[site(1, 38, keys.NewModSet(keys.Shift))] = true
	err := g.PopState()
	require.Error(t, err)

	// the failed site stays in the table, the rest was unwound
	assert.Contains(t, g.active, grabSite{win: 1, code: 38})
	assert.NotContains(t, g.active, grabSite{win: 1, code: 40})
	assert.Empty(t, g.undo)
}
