// Package keytable maps the closed set of key names used by
// Session.SendKeys/SelectMenuOption to the literal byte sequences a
// terminal emits for them (spec §6 "Key escape sequences"). The table
// covers Ctrl/Alt/Shift modifier combinations across letters, arrows and
// function keys F5-F12; home/end take Shift, Alt or Ctrl alone, and page
// up/down and F1-F4 have only their unmodified forms.
package keytable

import "fmt"

// xterm modifier codes (spec §6): 2=Shift, 3=Alt, 4=Shift+Alt, 5=Ctrl,
// 6=Ctrl+Shift.
const (
	modShift     = 2
	modAlt       = 3
	modShiftAlt  = 4
	modCtrl      = 5
	modCtrlShift = 6
)

var table = buildTable()

// Lookup resolves a key name to its literal byte sequence. ok is false for
// names not in the closed table; callers are expected to send the name's
// bytes literally and log a warning (spec §4.1 sendKeys).
func Lookup(name string) (string, bool) {
	seq, ok := table[name]
	return seq, ok
}

// Size reports how many entries the table carries, mainly for tests
// asserting the "≥130 entries" invariant from spec §4.1.
func Size() int {
	return len(table)
}

func csi(params string, final byte) string {
	return "\x1b[" + params + string(final)
}

func csiMod(base byte, mod int) string {
	return fmt.Sprintf("\x1b[1;%d%c", mod, base)
}

func buildTable() map[string]string {
	t := make(map[string]string, 200)

	// Plain named keys.
	t["enter"] = "\r"
	t["return"] = "\r"
	t["tab"] = "\t"
	t["escape"] = "\x1b"
	t["esc"] = "\x1b"
	t["space"] = " "
	t["backspace"] = "\x7f"
	t["delete"] = "\x1b[3~"

	// Arrows, home/end/page — unmodified use the letter final byte after
	// CSI; xterm also accepts the O-prefixed application-mode form, but CSI
	// is what every adapter in this corpus expects.
	arrows := map[string]byte{"up": 'A', "down": 'B', "right": 'C', "left": 'D'}
	for name, final := range arrows {
		t[name] = csi("", final)
		t["shift+"+name] = csiMod(final, modShift)
		t["alt+"+name] = csiMod(final, modAlt)
		t["shift+alt+"+name] = csiMod(final, modShiftAlt)
		t["ctrl+"+name] = csiMod(final, modCtrl)
		t["ctrl+shift+"+name] = csiMod(final, modCtrlShift)
	}

	t["home"] = csi("", 'H')
	t["end"] = csi("", 'F')
	t["pageup"] = csi("5", '~')
	t["pagedown"] = csi("6", '~')
	for _, name := range []string{"home", "end"} {
		final := byte('H')
		if name == "end" {
			final = 'F'
		}
		t["shift+"+name] = csiMod(final, modShift)
		t["alt+"+name] = csiMod(final, modAlt)
		t["ctrl+"+name] = csiMod(final, modCtrl)
	}

	// Ctrl+letter -> 0x01..0x1A for a..z ('a'=0x01 .. 'z'=0x1A).
	for c := byte('a'); c <= 'z'; c++ {
		t["ctrl+"+string(c)] = string(c - 'a' + 1)
	}
	// A few extra Ctrl+punctuation entries used by shells/editors.
	t["ctrl+["] = "\x1b"
	t["ctrl+\\"] = "\x1c"
	t["ctrl+]"] = "\x1d"
	t["ctrl+^"] = "\x1e"
	t["ctrl+_"] = "\x1f"
	t["ctrl+@"] = "\x00"

	// Alt+letter -> ESC <letter>.
	for c := byte('a'); c <= 'z'; c++ {
		t["alt+"+string(c)] = "\x1b" + string(c)
	}
	for c := byte('A'); c <= 'Z'; c++ {
		t["alt+shift+"+string(c+32)] = "\x1b" + string(c)
	}

	// Shift+letter is just the uppercase literal.
	for c := byte('a'); c <= 'z'; c++ {
		t["shift+"+string(c)] = string(c - 32)
	}

	// F1-F4: ESC O P/Q/R/S (classic); F5-F12: CSI n~.
	f1to4 := map[string]byte{"f1": 'P', "f2": 'Q', "f3": 'R', "f4": 'S'}
	for name, final := range f1to4 {
		t[name] = "\x1bO" + string(final)
	}
	fnCodes := map[string]string{
		"f5": "15", "f6": "17", "f7": "18", "f8": "19",
		"f9": "20", "f10": "21", "f11": "23", "f12": "24",
	}
	for name, code := range fnCodes {
		t[name] = csi(code, '~')
		t["shift+"+name] = csi(code+";"+fmt.Sprint(modShift), '~')
		t["ctrl+"+name] = csi(code+";"+fmt.Sprint(modCtrl), '~')
		t["alt+"+name] = csi(code+";"+fmt.Sprint(modAlt), '~')
	}

	return t
}
