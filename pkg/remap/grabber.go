package remap

import (
	"sort"

	"github.com/johnw42/remapd/pkg/keys"
	"github.com/johnw42/remapd/pkg/x11"
	"go.uber.org/zap"
)

// grabSite is one grabbable location: a key at a window.
type grabSite struct {
	win  x11.Window
	code keys.Keycode
}

// action is one applied grab-table change, recorded so an undo frame
// can be unwound.
type action struct {
	site    grabSite
	mods    keys.ModSet
	grabbed bool
}

// Grabber mirrors the server's grab registrations for this client. The
// table is the single source of truth: re-grabbing an active
// combination or ungrabbing an absent one touches neither the server
// nor the table. PushState/PopState bracket temporary changes so a
// dispatch can release keys and restore the exact prior state.
//
// Not safe for concurrent use; only the event loop calls it.
type Grabber struct {
	display Display
	log     *zap.SugaredLogger
	active  map[grabSite]map[keys.ModSet]bool
	undo    [][]action
}

func NewGrabber(display Display, log *zap.SugaredLogger) *Grabber {
	return &Grabber{
		display: display,
		log:     log,
		active:  make(map[grabSite]map[keys.ModSet]bool),
	}
}

// Grab registers the key at the window for exactly the given modifier
// combination. No-op if already registered.
func (g *Grabber) Grab(win x11.Window, code keys.Keycode, mods keys.ModSet) error {
	return g.setState(grabSite{win: win, code: code}, mods, true, true)
}

// Ungrab releases every combination currently registered for the key
// at the window.
func (g *Grabber) Ungrab(win x11.Window, code keys.Keycode) error {
	site := grabSite{win: win, code: code}

	combos := make([]keys.ModSet, 0, len(g.active[site]))
	for mods := range g.active[site] {
		combos = append(combos, mods)
	}
	sort.Slice(combos, func(i, j int) bool { return combos[i] < combos[j] })

	var firstErr error
	for _, mods := range combos {
		if err := g.setState(site, mods, false, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PushState opens an undo frame; every change Grab and Ungrab apply
// until the matching PopState is recorded in it.
func (g *Grabber) PushState() {
	g.undo = append(g.undo, nil)
}

// PopState unwinds the most recent frame, leaving the table exactly as
// it was at the matching PushState. Server errors during the unwind
// are collected but do not stop it. Popping with no open frame is a
// bug in the caller.
func (g *Grabber) PopState() error {
	if len(g.undo) == 0 {
		panic("remap: PopState without matching PushState")
	}

	frame := g.undo[len(g.undo)-1]
	g.undo = g.undo[:len(g.undo)-1]

	var firstErr error
	for i := len(frame) - 1; i >= 0; i-- {
		a := frame[i]
		if err := g.setState(a.site, a.mods, !a.grabbed, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Sites lists every window where the keycode currently holds grabs, in
// window order.
func (g *Grabber) Sites(code keys.Keycode) []x11.Window {
	var wins []x11.Window
	for site := range g.active {
		if site.code == code {
			wins = append(wins, site.win)
		}
	}
	sort.Slice(wins, func(i, j int) bool { return wins[i] < wins[j] })
	return wins
}

// setState moves one (site, combination) between grabbed and ungrabbed.
// The table is consulted first, which is what makes every public
// operation idempotent. Unwinding passes record=false so restoration
// is invisible to the frame below.
func (g *Grabber) setState(site grabSite, mods keys.ModSet, grabbed bool, record bool) error {
	if grabbed == g.active[site][mods] {
		return nil
	}

	var err error
	if grabbed {
		err = g.display.GrabKey(site.win, site.code, mods)
	} else {
		err = g.display.UngrabKey(site.win, site.code, mods)
	}
	if err != nil {
		return err
	}

	if grabbed {
		combos := g.active[site]
		if combos == nil {
			combos = make(map[keys.ModSet]bool)
			g.active[site] = combos
		}
		combos[mods] = true
	} else {
		delete(g.active[site], mods)
		if len(g.active[site]) == 0 {
			delete(g.active, site)
		}
	}

	if record && len(g.undo) > 0 {
		g.undo[len(g.undo)-1] = append(g.undo[len(g.undo)-1], action{site: site, mods: mods, grabbed: grabbed})
	}

	g.log.Debugw("grab state changed", "window", site.win, "key", site.code, "mods", mods, "grabbed", grabbed)
	return nil
}

// snapshot copies the active-grab table, for tests and diagnostics.
func (g *Grabber) snapshot() map[grabSite]map[keys.ModSet]bool {
	out := make(map[grabSite]map[keys.ModSet]bool, len(g.active))
	for site, combos := range g.active {
		cp := make(map[keys.ModSet]bool, len(combos))
		for mods := range combos {
			cp[mods] = true
		}
		out[site] = cp
	}
	return out
}
