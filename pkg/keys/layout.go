package keys

import "fmt"

// Layout holds the lookup tables derived from the server's current
// keyboard and modifier mappings. Built once per worker and read-only
// afterwards.
type Layout struct {
	minKeycode     Keycode
	symsPerKeycode int
	syms           []Keysym

	symToCode  map[Keysym]Keycode
	codeToMod  map[Keycode]Modifier
	modToCodes [ModifierCount][]Keycode
}

// NewLayout builds a Layout from raw mapping data. syms holds
// symsPerKeycode entries per keycode starting at minKeycode, in column
// order; modCodes holds codesPerMod keycodes per modifier slot, in slot
// order, zero meaning an empty cell.
func NewLayout(minKeycode Keycode, symsPerKeycode int, syms []Keysym, codesPerMod int, modCodes []Keycode) *Layout {
	l := &Layout{
		minKeycode:     minKeycode,
		symsPerKeycode: symsPerKeycode,
		syms:           syms,
		symToCode:      make(map[Keysym]Keycode),
		codeToMod:      make(map[Keycode]Modifier),
	}

	// Earlier keycodes win sym lookups, so walk in keycode order.
	for i, sym := range syms {
		if sym == 0 {
			continue
		}
		if _, ok := l.symToCode[sym]; !ok {
			l.symToCode[sym] = minKeycode + Keycode(i/symsPerKeycode)
		}
	}

	for mod := 0; mod < ModifierCount; mod++ {
		for i := 0; i < codesPerMod; i++ {
			code := modCodes[mod*codesPerMod+i]
			if code == 0 {
				continue
			}
			l.codeToMod[code] = Modifier(mod)
			l.modToCodes[mod] = append(l.modToCodes[mod], code)
		}
	}

	return l
}

// KeycodeForSym returns the first keycode producing the sym.
func (l *Layout) KeycodeForSym(sym Keysym) (Keycode, bool) {
	code, ok := l.symToCode[sym]
	return code, ok
}

// SymsForKeycode returns the sym column for a keycode, trailing blanks
// trimmed. The first entry is the primary sym.
func (l *Layout) SymsForKeycode(code Keycode) []Keysym {
	if code < l.minKeycode {
		return nil
	}
	start := int(code-l.minKeycode) * l.symsPerKeycode
	if start >= len(l.syms) {
		return nil
	}
	column := l.syms[start : start+l.symsPerKeycode]
	end := len(column)
	for end > 0 && column[end-1] == 0 {
		end--
	}
	return column[:end]
}

// PrimarySym returns the first sym for a keycode, zero if it has none.
func (l *Layout) PrimarySym(code Keycode) Keysym {
	syms := l.SymsForKeycode(code)
	if len(syms) == 0 {
		return 0
	}
	return syms[0]
}

// ModifierForKeycode returns the modifier a key drives, if any. A key
// drives at most one modifier.
func (l *Layout) ModifierForKeycode(code Keycode) (Modifier, bool) {
	mod, ok := l.codeToMod[code]
	return mod, ok
}

// KeycodesForModifier lists the keys driving a modifier.
func (l *Layout) KeycodesForModifier(mod Modifier) []Keycode {
	return l.modToCodes[mod]
}

// KeyName renders a keycode for diagnostics.
func (l *Layout) KeyName(code Keycode) string {
	if sym := l.PrimarySym(code); sym != 0 {
		return Name(sym)
	}
	return fmt.Sprintf("keycode %d", code)
}
