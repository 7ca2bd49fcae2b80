package x11

import (
	"fmt"

	"github.com/jezek/xgb"
	"github.com/johnw42/remapd/pkg/keys"
)

// Core event codes observed on the capture stream.
const (
	evKeyPress      = 2
	evKeyRelease    = 3
	evButtonPress   = 4
	evButtonRelease = 5
)

// Direction says whether an input transitions down or up.
type Direction uint8

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// Button is the physical source of an input event: a keyboard key or a
// pointer button. Exactly one field is set; values compare with ==.
type Button struct {
	Key   keys.Keycode
	Mouse uint8
}

func KeyButton(code keys.Keycode) Button { return Button{Key: code} }
func MouseButton(n uint8) Button         { return Button{Mouse: n} }

func (b Button) IsKey() bool { return b.Key != 0 }

// Detail is the wire detail byte: the keycode or button number.
func (b Button) Detail() uint8 {
	if b.IsKey() {
		return uint8(b.Key)
	}
	return b.Mouse
}

func (b Button) String() string {
	if b.IsKey() {
		return fmt.Sprintf("key %d", b.Key)
	}
	return fmt.Sprintf("button %d", b.Mouse)
}

// InputEvent is one key or pointer-button transition.
type InputEvent struct {
	Dir    Direction
	Button Button
}

func KeyDown(code keys.Keycode) InputEvent { return InputEvent{Dir: Down, Button: KeyButton(code)} }
func KeyUp(code keys.Keycode) InputEvent   { return InputEvent{Dir: Up, Button: KeyButton(code)} }

func (e InputEvent) String() string {
	return fmt.Sprintf("%s %s", e.Button, e.Dir)
}

// RecordedEvent is an InputEvent as observed by the capture stream,
// tagged with the modifier state in effect when it fired.
type RecordedEvent struct {
	Input InputEvent
	State keys.ModSet
}

// eventSize is the fixed length of a core wire event.
const eventSize = 32

// decodeEvent decodes one raw core event record. ok is false for types
// outside the press/release range and for truncated buffers.
func decodeEvent(buf []byte) (RecordedEvent, bool) {
	if len(buf) < eventSize {
		return RecordedEvent{}, false
	}

	// Send-event records set the high bit of the type.
	code := buf[0] &^ 0x80
	detail := buf[1]
	if detail == 0 {
		return RecordedEvent{}, false
	}
	state := keys.ModSet(uint8(xgb.Get16(buf[28:])))

	var input InputEvent
	switch code {
	case evKeyPress:
		input = KeyDown(keys.Keycode(detail))
	case evKeyRelease:
		input = KeyUp(keys.Keycode(detail))
	case evButtonPress:
		input = InputEvent{Dir: Down, Button: MouseButton(detail)}
	case evButtonRelease:
		input = InputEvent{Dir: Up, Button: MouseButton(detail)}
	default:
		return RecordedEvent{}, false
	}

	return RecordedEvent{Input: input, State: state}, true
}
