package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModSetAlgebra(t *testing.T) {
	s := NewModSet(Shift, Ctrl)

	assert.True(t, s.Has(Shift))
	assert.True(t, s.Has(Ctrl))
	assert.False(t, s.Has(Alt))
	assert.Equal(t, 2, s.Count())

	s = s.With(Alt)
	assert.True(t, s.Has(Alt))
	assert.Equal(t, 3, s.Count())

	assert.Equal(t, NewModSet(Shift), s.Intersect(NewModSet(Shift, NumLock)))
	assert.Equal(t, NewModSet(Ctrl, Alt), s.Subtract(NewModSet(Shift)))
	assert.Equal(t, NewModSet(Shift, Ctrl, Alt, Super), s.Union(NewModSet(Super)))

	assert.True(t, NewModSet(Shift).SubsetOf(s))
	assert.True(t, NewModSet().SubsetOf(s))
	assert.False(t, NewModSet(Shift, Super).SubsetOf(s))

	assert.True(t, ModSet(0).Empty())
	assert.False(t, s.Empty())
}

func TestModSetModifiersInBitOrder(t *testing.T) {
	s := NewModSet(Mod5, Shift, NumLock)
	assert.Equal(t, []Modifier{Shift, NumLock, Mod5}, s.Modifiers())
}

func TestModSetString(t *testing.T) {
	assert.Equal(t, "none", ModSet(0).String())
	assert.Equal(t, "Shift+Ctrl", NewModSet(Ctrl, Shift).String())
	assert.Equal(t, "CapsLock+Super", NewModSet(Super, CapsLock).String())
}

func TestModifierByName(t *testing.T) {
	mod, ok := ModifierByName("shift")
	require.True(t, ok)
	assert.Equal(t, Shift, mod)

	mod, ok = ModifierByName("NumLock")
	require.True(t, ok)
	assert.Equal(t, NumLock, mod)

	_, ok = ModifierByName("hyper")
	assert.False(t, ok)
}
