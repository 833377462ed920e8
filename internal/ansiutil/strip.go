// Package ansiutil normalizes raw PTY bytes for content matching and
// hashing (spec §4.1.2). It never interprets escape sequences into a screen
// buffer — only bytes are inspected — and it is deliberately the only place
// in the engine allowed to look at raw terminal bytes for these purposes.
package ansiutil

import (
	"regexp"
	"strings"
)

var (
	// Cursor-motion CSI sequences: C/D/A/B/G/d/E/F, and H/f with optional
	// params. Replaced with a single space to preserve word boundaries.
	cursorMotion = regexp.MustCompile(`\x1b\[[0-9;]*[ABCDGdEF]|\x1b\[[0-9;]*[Hf]`)

	// CSI erase-display/erase-line sequences.
	eraseSeq = regexp.MustCompile(`\x1b\[[0-9;]*[JK]`)

	// OSC: ESC ] ... (BEL | ESC \\)
	oscSeq = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)

	// DCS: ESC P ... ESC \\
	dcsSeq = regexp.MustCompile(`\x1bP[^\x1b]*\x1b\\`)

	// Any remaining CSI sequence: ESC [ params... final-byte.
	anyCSI = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z@]`)

	// ESC followed by one character other than '[', ']' or 'P' (e.g. ESC 7,
	// ESC M), or a charset designation ESC ( X / ESC ) X.
	escSingle = regexp.MustCompile(`\x1b[()][0-9A-Za-z]|\x1b[^\[\]P]`)

	// Non-printable control bytes other than TAB (0x09) and LF (0x0a).
	controlBytes = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)

	// Duration tokens like "3s", "12m", "1h", "90s", possibly chained
	// ("1m30s"); rewritten to the literal "0s" so live countdowns don't
	// perturb the content hash.
	durationToken = regexp.MustCompile(`(?:\d+[hms]){1,3}`)

	spaceRuns = regexp.MustCompile(` {2,}`)

	// TUI box-drawing, spinner glyphs, arrows, and other decorative
	// symbols commonly emitted by full-screen CLIs. Normalized to SPACE
	// for stripForMatching; left untouched for stripForClassifier.
	decorativeGlyphs = regexp.MustCompile(
		"[─-╿" + // box drawing
			"▀-▟" + // block elements
			"■-◿" + // geometric shapes
			"←-⇿" + // arrows
			"⠀-⣿" + // braille patterns (spinners)
			"•●○✓✗✔✖]",
	)
)

const nbsp = " "

// stripCommon applies the escape/OSC/DCS/control stripping shared by both
// variants, in the order that matters: OSC/DCS payloads first (they can
// contain bytes that would otherwise look like other escapes), then CSI
// families, then bare ESC-prefixed singles, then raw control bytes.
func stripCommon(s string, replaceMotionWithSpace bool) string {
	s = oscSeq.ReplaceAllString(s, "")
	s = dcsSeq.ReplaceAllString(s, "")

	if replaceMotionWithSpace {
		s = cursorMotion.ReplaceAllString(s, " ")
		s = eraseSeq.ReplaceAllString(s, " ")
	}
	s = anyCSI.ReplaceAllString(s, "")
	s = escSingle.ReplaceAllString(s, "")
	s = controlBytes.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, nbsp, " ")
	return s
}

// StripForMatching is the aggressive normalizer used for stall hashing and
// auto-response pattern matching. It collapses everything that would make
// two renders of the same visible content hash or match differently:
// cursor motion, OSC/DCS/CSI escapes, control bytes, NBSP, decorative TUI
// glyphs, and live duration counters (normalized to "0s").
func StripForMatching(s string) string {
	s = stripCommon(s, true)
	s = decorativeGlyphs.ReplaceAllString(s, " ")
	s = durationToken.ReplaceAllString(s, "0s")
	s = spaceRuns.ReplaceAllString(s, " ")
	return s
}

// StripForClassifier is the less aggressive normalizer handed to a stall
// classifier hook: escapes/control bytes are still stripped, but TUI
// glyphs and duration text are preserved since the classifier benefits
// from seeing spinners and elapsed-time signals.
func StripForClassifier(s string) string {
	s = stripCommon(s, true)
	s = spaceRuns.ReplaceAllString(s, " ")
	return s
}
