package keytable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_PlainNamedKeys(t *testing.T) {
	cases := map[string]string{
		"enter":     "\r",
		"return":    "\r",
		"tab":       "\t",
		"escape":    "\x1b",
		"esc":       "\x1b",
		"space":     " ",
		"backspace": "\x7f",
		"delete":    "\x1b[3~",
	}
	for name, want := range cases {
		got, ok := Lookup(name)
		require.True(t, ok, "expected %q to be present", name)
		assert.Equal(t, want, got)
	}
}

func TestLookup_Arrows(t *testing.T) {
	up, ok := Lookup("up")
	require.True(t, ok)
	assert.Equal(t, "\x1b[A", up)

	ctrlRight, ok := Lookup("ctrl+right")
	require.True(t, ok)
	assert.Equal(t, "\x1b[1;5C", ctrlRight)

	shiftAltLeft, ok := Lookup("shift+alt+left")
	require.True(t, ok)
	assert.Equal(t, "\x1b[1;4D", shiftAltLeft)
}

func TestLookup_CtrlLetters(t *testing.T) {
	a, ok := Lookup("ctrl+a")
	require.True(t, ok)
	assert.Equal(t, "\x01", a)

	z, ok := Lookup("ctrl+z")
	require.True(t, ok)
	assert.Equal(t, "\x1a", z)
}

func TestLookup_AltAndShiftLetters(t *testing.T) {
	altA, ok := Lookup("alt+a")
	require.True(t, ok)
	assert.Equal(t, "\x1ba", altA)

	shiftB, ok := Lookup("shift+b")
	require.True(t, ok)
	assert.Equal(t, "B", shiftB)
}

func TestLookup_FunctionKeys(t *testing.T) {
	f1, ok := Lookup("f1")
	require.True(t, ok)
	assert.Equal(t, "\x1bOP", f1)

	f5, ok := Lookup("f5")
	require.True(t, ok)
	assert.Equal(t, "\x1b[15~", f5)

	ctrlF5, ok := Lookup("ctrl+f5")
	require.True(t, ok)
	assert.Equal(t, "\x1b[15;5~", ctrlF5)
}

func TestLookup_UnknownNameNotOK(t *testing.T) {
	_, ok := Lookup("not-a-real-key")
	assert.False(t, ok)
}

// TestSize_MeetsClosedTableInvariant covers the spec's key-table
// completeness property: at least 130 distinct key names are resolvable.
func TestSize_MeetsClosedTableInvariant(t *testing.T) {
	assert.GreaterOrEqual(t, Size(), 130)
}

// TestAllEntriesNonEmpty covers "every entry in the key table maps to a
// non-empty byte sequence".
func TestAllEntriesNonEmpty(t *testing.T) {
	for name, seq := range table {
		assert.NotEmpty(t, seq, "key %q has an empty sequence", name)
	}
}
