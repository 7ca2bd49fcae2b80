package keys

import (
	"math/bits"
	"strings"
)

// Keycode identifies a physical key as reported by the server. Zero is
// reserved and never names a real key.
type Keycode uint8

// Keysym identifies the symbolic meaning of a key ("a", "F1", ...).
type Keysym uint32

// Modifier is one of the eight modifier slots, in wire bit order.
type Modifier uint8

const (
	Shift Modifier = iota
	CapsLock
	Ctrl
	Alt
	NumLock
	Mod3
	Super
	Mod5

	ModifierCount = 8
)

var modifierNames = [ModifierCount]string{
	"Shift", "CapsLock", "Ctrl", "Alt", "NumLock", "Mod3", "Super", "Mod5",
}

func (m Modifier) String() string {
	if int(m) < len(modifierNames) {
		return modifierNames[m]
	}
	return "Mod?"
}

// ModifierByName resolves a lowercase modifier name ("shift", "super", ...).
func ModifierByName(name string) (Modifier, bool) {
	for i, n := range modifierNames {
		if strings.EqualFold(n, name) {
			return Modifier(i), true
		}
	}
	return 0, false
}

// ModSet is a set of Modifiers, packed the way the modifier-state field
// of wire events packs them.
type ModSet uint8

func NewModSet(mods ...Modifier) ModSet {
	var s ModSet
	for _, m := range mods {
		s = s.With(m)
	}
	return s
}

func (s ModSet) Has(m Modifier) bool     { return s&(1<<m) != 0 }
func (s ModSet) With(m Modifier) ModSet  { return s | 1<<m }
func (s ModSet) Union(o ModSet) ModSet   { return s | o }
func (s ModSet) Intersect(o ModSet) ModSet { return s & o }
func (s ModSet) Subtract(o ModSet) ModSet  { return s &^ o }
func (s ModSet) Empty() bool             { return s == 0 }
func (s ModSet) Count() int              { return bits.OnesCount8(uint8(s)) }

// SubsetOf reports whether every modifier in s is also in o.
func (s ModSet) SubsetOf(o ModSet) bool { return s&^o == 0 }

// Modifiers lists the members in bit order.
func (s ModSet) Modifiers() []Modifier {
	mods := make([]Modifier, 0, s.Count())
	for m := Modifier(0); m < ModifierCount; m++ {
		if s.Has(m) {
			mods = append(mods, m)
		}
	}
	return mods
}

func (s ModSet) String() string {
	if s == 0 {
		return "none"
	}
	names := make([]string, 0, s.Count())
	for _, m := range s.Modifiers() {
		names = append(names, m.String())
	}
	return strings.Join(names, "+")
}
