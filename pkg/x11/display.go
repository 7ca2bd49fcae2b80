package x11

import (
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgb/xtest"
	"github.com/johnw42/remapd/pkg/keys"
	"go.uber.org/zap"
)

// Window identifies a server-side window.
type Window uint32

// Display owns the primary server connection: layout queries, grabs,
// synthetic input, and window-tree notifications all go through it.
// Close it exactly once, after the event loop has stopped.
type Display struct {
	conn    *xgb.Conn
	setup   *xproto.SetupInfo
	root    xproto.Window
	created chan Window
	log     *zap.SugaredLogger
}

// Open connects to the named display, the default one when name is
// empty.
func Open(name string, log *zap.SugaredLogger) (*Display, error) {
	conn, err := xgb.NewConnDisplay(name)
	if err != nil {
		return nil, fmt.Errorf("connect to display: %w", err)
	}

	if err := xtest.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init xtest extension: %w", err)
	}

	setup := xproto.Setup(conn)
	d := &Display{
		conn:    conn,
		setup:   setup,
		root:    setup.DefaultScreen(conn).Root,
		created: make(chan Window, 16),
		log:     log,
	}
	go d.pumpEvents()

	return d, nil
}

func (d *Display) Close() {
	d.conn.Close()
}

func (d *Display) RootWindow() Window {
	return Window(d.root)
}

// Layout queries the keyboard and modifier mappings and builds the
// lookup tables.
func (d *Display) Layout() (*keys.Layout, error) {
	min := d.setup.MinKeycode
	count := byte(d.setup.MaxKeycode - min + 1)

	kb, err := xproto.GetKeyboardMapping(d.conn, min, count).Reply()
	if err != nil {
		return nil, fmt.Errorf("get keyboard mapping: %w", err)
	}

	mod, err := xproto.GetModifierMapping(d.conn).Reply()
	if err != nil {
		return nil, fmt.Errorf("get modifier mapping: %w", err)
	}

	syms := make([]keys.Keysym, len(kb.Keysyms))
	for i, sym := range kb.Keysyms {
		syms[i] = keys.Keysym(sym)
	}
	modCodes := make([]keys.Keycode, len(mod.Keycodes))
	for i, code := range mod.Keycodes {
		modCodes[i] = keys.Keycode(code)
	}

	return keys.NewLayout(keys.Keycode(min), int(kb.KeysymsPerKeycode), syms, int(mod.KeycodesPerModifier), modCodes), nil
}

// GrabKey registers an exclusive async grab for the key under exactly
// the given modifier combination.
func (d *Display) GrabKey(win Window, code keys.Keycode, mods keys.ModSet) error {
	err := xproto.GrabKeyChecked(d.conn, false, xproto.Window(win), uint16(mods), xproto.Keycode(code),
		xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
	if err != nil {
		return fmt.Errorf("grab key %d mods %s: %w", code, mods, err)
	}
	return nil
}

// UngrabKey releases a grab registered with GrabKey.
func (d *Display) UngrabKey(win Window, code keys.Keycode, mods keys.ModSet) error {
	err := xproto.UngrabKeyChecked(d.conn, xproto.Keycode(code), xproto.Window(win), uint16(mods)).Check()
	if err != nil {
		return fmt.Errorf("ungrab key %d mods %s: %w", code, mods, err)
	}
	return nil
}

// SendInput synthesizes one key or button transition.
func (d *Display) SendInput(ev InputEvent) error {
	var typ byte
	switch {
	case ev.Button.IsKey() && ev.Dir == Down:
		typ = evKeyPress
	case ev.Button.IsKey():
		typ = evKeyRelease
	case ev.Dir == Down:
		typ = evButtonPress
	default:
		typ = evButtonRelease
	}

	err := xtest.FakeInputChecked(d.conn, typ, ev.Button.Detail(), xproto.TimeCurrentTime, d.root, 0, 0, 0).Check()
	if err != nil {
		return fmt.Errorf("send %s: %w", ev, err)
	}
	return nil
}

// Sync flushes buffered requests and waits until the server has
// processed them, pinning the order of grabs relative to input.
func (d *Display) Sync() {
	d.conn.Sync()
}

// WalkTree visits the window and every descendant, depth first.
// Subtrees that vanish mid-walk are skipped.
func (d *Display) WalkTree(win Window, visit func(Window)) error {
	visit(win)

	tree, err := xproto.QueryTree(d.conn, xproto.Window(win)).Reply()
	if err != nil {
		return fmt.Errorf("query tree: %w", err)
	}
	for _, child := range tree.Children {
		if err := d.WalkTree(Window(child), visit); err != nil {
			d.log.Debugw("skipping window subtree", "window", child, "error", err)
		}
	}
	return nil
}

// SelectCreateNotify subscribes to child-creation events under the
// window; new windows arrive on Created.
func (d *Display) SelectCreateNotify(win Window) error {
	err := xproto.ChangeWindowAttributesChecked(d.conn, xproto.Window(win), xproto.CwEventMask,
		[]uint32{xproto.EventMaskSubstructureNotify}).Check()
	if err != nil {
		return fmt.Errorf("select substructure events: %w", err)
	}
	return nil
}

// Created delivers newly created windows. Nothing arrives unless
// SelectCreateNotify was called.
func (d *Display) Created() <-chan Window {
	return d.created
}

func (d *Display) pumpEvents() {
	defer close(d.created)
	for {
		ev, err := d.conn.WaitForEvent()
		if ev == nil && err == nil {
			return
		}
		if err != nil {
			d.log.Debugw("server error event", "error", err)
			continue
		}
		if create, ok := ev.(xproto.CreateNotifyEvent); ok {
			d.created <- Window(create.Window)
		}
	}
}
