package remap

import (
	"github.com/johnw42/remapd/pkg/keys"
	"github.com/johnw42/remapd/pkg/x11"
)

// Display is the slice of server operations the grab machinery and the
// dispatch path call. *x11.Display satisfies it; tests substitute a
// scripted fake.
type Display interface {
	RootWindow() x11.Window
	GrabKey(win x11.Window, code keys.Keycode, mods keys.ModSet) error
	UngrabKey(win x11.Window, code keys.Keycode, mods keys.ModSet) error
	SendInput(ev x11.InputEvent) error
	Sync()
}
