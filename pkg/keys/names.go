package keys

import (
	"fmt"
	"unicode/utf8"
)

// Named keysyms, keysymdef order. The first entry for a sym is its
// canonical name; later entries are accepted aliases.
var namedSyms = []struct {
	name string
	sym  Keysym
}{
	{"BackSpace", 0xff08},
	{"Tab", 0xff09},
	{"Linefeed", 0xff0a},
	{"Clear", 0xff0b},
	{"Return", 0xff0d},
	{"Pause", 0xff13},
	{"Scroll_Lock", 0xff14},
	{"Sys_Req", 0xff15},
	{"Escape", 0xff1b},

	{"Home", 0xff50},
	{"Left", 0xff51},
	{"Up", 0xff52},
	{"Right", 0xff53},
	{"Down", 0xff54},
	{"Page_Up", 0xff55},
	{"Prior", 0xff55},
	{"Page_Down", 0xff56},
	{"Next", 0xff56},
	{"End", 0xff57},
	{"Begin", 0xff58},

	{"Select", 0xff60},
	{"Print", 0xff61},
	{"Execute", 0xff62},
	{"Insert", 0xff63},
	{"Undo", 0xff65},
	{"Redo", 0xff66},
	{"Menu", 0xff67},
	{"Find", 0xff68},
	{"Cancel", 0xff69},
	{"Help", 0xff6a},
	{"Break", 0xff6b},
	{"Num_Lock", 0xff7f},

	{"KP_Space", 0xff80},
	{"KP_Tab", 0xff89},
	{"KP_Enter", 0xff8d},
	{"KP_Home", 0xff95},
	{"KP_Left", 0xff96},
	{"KP_Up", 0xff97},
	{"KP_Right", 0xff98},
	{"KP_Down", 0xff99},
	{"KP_Page_Up", 0xff9a},
	{"KP_Page_Down", 0xff9b},
	{"KP_End", 0xff9c},
	{"KP_Begin", 0xff9d},
	{"KP_Insert", 0xff9e},
	{"KP_Delete", 0xff9f},
	{"KP_Equal", 0xffbd},
	{"KP_Multiply", 0xffaa},
	{"KP_Add", 0xffab},
	{"KP_Separator", 0xffac},
	{"KP_Subtract", 0xffad},
	{"KP_Decimal", 0xffae},
	{"KP_Divide", 0xffaf},
	{"KP_0", 0xffb0},
	{"KP_1", 0xffb1},
	{"KP_2", 0xffb2},
	{"KP_3", 0xffb3},
	{"KP_4", 0xffb4},
	{"KP_5", 0xffb5},
	{"KP_6", 0xffb6},
	{"KP_7", 0xffb7},
	{"KP_8", 0xffb8},
	{"KP_9", 0xffb9},

	{"F1", 0xffbe},
	{"F2", 0xffbf},
	{"F3", 0xffc0},
	{"F4", 0xffc1},
	{"F5", 0xffc2},
	{"F6", 0xffc3},
	{"F7", 0xffc4},
	{"F8", 0xffc5},
	{"F9", 0xffc6},
	{"F10", 0xffc7},
	{"F11", 0xffc8},
	{"F12", 0xffc9},

	{"Shift_L", 0xffe1},
	{"Shift_R", 0xffe2},
	{"Control_L", 0xffe3},
	{"Control_R", 0xffe4},
	{"Caps_Lock", 0xffe5},
	{"Shift_Lock", 0xffe6},
	{"Meta_L", 0xffe7},
	{"Meta_R", 0xffe8},
	{"Alt_L", 0xffe9},
	{"Alt_R", 0xffea},
	{"Super_L", 0xffeb},
	{"Super_R", 0xffec},
	{"Hyper_L", 0xffed},
	{"Hyper_R", 0xffee},
	{"Delete", 0xffff},

	{"space", 0x20},

	{"XF86AudioLowerVolume", 0x1008ff11},
	{"XF86AudioMute", 0x1008ff12},
	{"XF86AudioRaiseVolume", 0x1008ff13},
	{"XF86AudioPlay", 0x1008ff14},
	{"XF86AudioStop", 0x1008ff15},
	{"XF86AudioPrev", 0x1008ff16},
	{"XF86AudioNext", 0x1008ff17},
	{"XF86Calculator", 0x1008ff1d},
	{"XF86MonBrightnessUp", 0x1008ff02},
	{"XF86MonBrightnessDown", 0x1008ff03},
}

var (
	symsByName = make(map[string]Keysym, len(namedSyms))
	namesBySym = make(map[Keysym]string, len(namedSyms))
)

func init() {
	for _, e := range namedSyms {
		if _, ok := symsByName[e.name]; !ok {
			symsByName[e.name] = e.sym
		}
		if _, ok := namesBySym[e.sym]; !ok {
			namesBySym[e.sym] = e.name
		}
	}
}

// LookupName resolves a keysym name. Single-character names map per the
// Latin-1 convention; other characters use the Unicode keysym range.
func LookupName(name string) (Keysym, bool) {
	if sym, ok := symsByName[name]; ok {
		return sym, true
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		switch {
		case r >= 0x20 && r <= 0x7e, r >= 0xa0 && r <= 0xff:
			return Keysym(r), true
		case r > 0xff:
			return Keysym(0x01000000 + r), true
		}
	}
	return 0, false
}

// Name renders a keysym readably, falling back to hex for syms with no
// known name.
func Name(sym Keysym) string {
	if name, ok := namesBySym[sym]; ok {
		return name
	}
	switch {
	case sym >= 0x20 && sym <= 0x7e, sym >= 0xa0 && sym <= 0xff:
		return string(rune(sym))
	case sym >= 0x01000100 && sym <= 0x0110ffff:
		return string(rune(sym - 0x01000000))
	}
	return fmt.Sprintf("0x%x", uint32(sym))
}
