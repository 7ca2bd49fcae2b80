package remap

import (
	"fmt"
	"time"

	"github.com/johnw42/remapd/pkg/journal"
	"github.com/johnw42/remapd/pkg/keys"
	"github.com/johnw42/remapd/pkg/rules"
	"github.com/johnw42/remapd/pkg/x11"
	"go.uber.org/zap"
)

// Engine applies the compiled mappings to the captured input stream.
// All state is owned by the event loop goroutine; a dispatch runs to
// completion before the next captured event is looked at.
type Engine struct {
	display  Display
	grabber  *Grabber
	layout   *keys.Layout
	mappings []rules.Mapping
	journal  journal.Recorder
	log      *zap.SugaredLogger

	// keysDown preserves press order so modifier reconciliation
	// releases keys in a stable order.
	keysDown []keys.Keycode

	// ignore holds the events we synthesized and expect to see echoed
	// back on the capture stream, in send order.
	ignore []x11.InputEvent
}

func NewEngine(display Display, grabber *Grabber, layout *keys.Layout, mappings []rules.Mapping, rec journal.Recorder, log *zap.SugaredLogger) *Engine {
	return &Engine{
		display:  display,
		grabber:  grabber,
		layout:   layout,
		mappings: mappings,
		journal:  rec,
		log:      log,
	}
}

// InstallGrabs registers every mapping's trigger at the given windows,
// one grab per concrete modifier combination of its spec. Failures
// (typically another client holding the grab) are logged and skipped
// so one contested key does not take the rest down.
func (e *Engine) InstallGrabs(wins ...x11.Window) {
	for i := range e.mappings {
		m := &e.mappings[i]
		for _, win := range wins {
			for _, mods := range m.Mods.Sets() {
				if err := e.grabber.Grab(win, m.Input, mods); err != nil {
					e.log.Errorw("install grab", "rule", m.Name, "key", e.layout.KeyName(m.Input), "mods", mods, "error", err)
				}
			}
		}
	}
}

// HandleEvent runs one captured event through state tracking, feedback
// suppression, and rule matching.
func (e *Engine) HandleEvent(ev x11.RecordedEvent) {
	if ev.Input.Button.IsKey() {
		if ev.Input.Dir == x11.Down {
			e.pressKey(ev.Input.Button.Key)
		} else {
			e.releaseKey(ev.Input.Button.Key)
		}
	}

	if len(e.ignore) > 0 && e.ignore[0] == ev.Input {
		e.ignore = e.ignore[1:]
		e.log.Debugw("suppressed own event", "event", ev.Input)
		return
	}

	// Matching fires on release only: a full press+release gesture is
	// required, and the press has already been swallowed by the grab.
	if ev.Input.Dir != x11.Up {
		return
	}

	for i := range e.mappings {
		m := &e.mappings[i]
		if x11.KeyButton(m.Input) != ev.Input.Button {
			continue
		}
		// The wire state snapshot predates this release, so modifiers
		// held at release time govern matching.
		if !m.Mods.Matches(ev.State) {
			continue
		}
		e.dispatch(m, ev)
		e.record(m, ev)
		return
	}
}

func (e *Engine) dispatch(m *rules.Mapping, ev x11.RecordedEvent) {
	e.log.Debugw("dispatching", "rule", m.Name, "trigger", ev.Input, "state", ev.State)

	if !m.Mods.Required().SubsetOf(ev.State) || !ev.State.Intersect(m.Mods.Forbidden()).Empty() {
		e.log.Errorw("matched rule violates its own modifier constraints",
			"rule", m.Name, "spec", m.Mods, "state", ev.State)
	}

	burst := e.buildBurst(m, ev.State)

	e.grabber.PushState()
	defer func() {
		if err := e.grabber.PopState(); err != nil {
			e.log.Errorw("restore grabs", "error", err)
		}
		e.display.Sync()
	}()

	// Release our own grabs on every key about to be synthesized, at
	// every window holding one, or the injected events would be
	// swallowed and loop straight back through the capture stream.
	seen := make(map[keys.Keycode]bool)
	for _, out := range burst {
		code := out.Button.Key
		if seen[code] {
			continue
		}
		seen[code] = true
		for _, win := range e.grabber.Sites(code) {
			if err := e.grabber.Ungrab(win, code); err != nil {
				e.log.Errorw("ungrab for dispatch", "key", e.layout.KeyName(code), "error", err)
			}
		}
	}
	e.display.Sync()

	for _, out := range burst {
		if err := e.display.SendInput(out); err != nil {
			// Dropped events are never queued for suppression.
			e.log.Errorw("send input", "event", out, "error", err)
			continue
		}
		e.ignore = append(e.ignore, out)
	}
	e.display.Sync()
}

// buildBurst flattens a mapping into the synthetic event list:
// modifier reconciliation, the output chords, then the mirror-image
// reconciliation undo.
func (e *Engine) buildBurst(m *rules.Mapping, active keys.ModSet) []x11.InputEvent {
	// Modifiers the output should be typed under: whatever allowed
	// modifiers the user holds. Required ones were consumed by the
	// match and must not color the output.
	desired := active.Intersect(m.Mods.Allowed())

	var toRelease []keys.Keycode
	for _, code := range e.keysDown {
		if mod, ok := e.layout.ModifierForKeycode(code); ok && !desired.Has(mod) {
			toRelease = append(toRelease, code)
		}
	}

	var toPress []keys.Keycode
	for _, mod := range desired.Subtract(e.modsDown()).Modifiers() {
		codes := e.layout.KeycodesForModifier(mod)
		if len(codes) == 0 {
			e.log.Errorw("no key drives modifier", "modifier", mod)
			continue
		}
		toPress = append(toPress, codes[0])
	}

	var burst []x11.InputEvent
	for _, code := range toRelease {
		burst = append(burst, x11.KeyUp(code))
	}
	for _, code := range toPress {
		burst = append(burst, x11.KeyDown(code))
	}

	for _, chord := range m.Output {
		for _, code := range chord {
			burst = append(burst, x11.KeyDown(code))
		}
		for i := len(chord) - 1; i >= 0; i-- {
			burst = append(burst, x11.KeyUp(chord[i]))
		}
	}

	for i := len(toPress) - 1; i >= 0; i-- {
		burst = append(burst, x11.KeyUp(toPress[i]))
	}
	for i := len(toRelease) - 1; i >= 0; i-- {
		burst = append(burst, x11.KeyDown(toRelease[i]))
	}

	return burst
}

func (e *Engine) record(m *rules.Mapping, ev x11.RecordedEvent) {
	if e.journal == nil {
		return
	}
	err := e.journal.Append(journal.Entry{
		Time:   time.Now(),
		Kind:   journal.KindDispatch,
		Rule:   m.Name,
		Detail: fmt.Sprintf("%s (%s)", e.layout.KeyName(m.Input), ev.State),
	})
	if err != nil {
		e.log.Warnw("journal append", "error", err)
	}
}

func (e *Engine) pressKey(code keys.Keycode) {
	for _, c := range e.keysDown {
		if c == code {
			return
		}
	}
	e.keysDown = append(e.keysDown, code)
}

func (e *Engine) releaseKey(code keys.Keycode) {
	for i, c := range e.keysDown {
		if c == code {
			e.keysDown = append(e.keysDown[:i], e.keysDown[i+1:]...)
			return
		}
	}
}

// modsDown derives the active modifier set from the keys physically
// held, per the layout's key-to-modifier assignment.
func (e *Engine) modsDown() keys.ModSet {
	var set keys.ModSet
	for _, code := range e.keysDown {
		if mod, ok := e.layout.ModifierForKeycode(code); ok {
			set = set.With(mod)
		}
	}
	return set
}
