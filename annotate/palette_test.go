package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaletteIsStable(t *testing.T) {
	p := NewPalette()

	first := p.Color("person")
	assert.Equal(t, first, p.Color("person"))
	assert.Equal(t, first, NewPalette().Color("person"))
	assert.Equal(t, uint8(0xff), first.A)
	assert.NotEqual(t, first, p.Color("bicycle"))
	assert.Equal(t, 2, p.Len())
}

func TestPaletteNeverEvicts(t *testing.T) {
	p := NewPalette()
	labels := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, l := range labels {
		p.Color(l)
	}
	for _, l := range labels {
		p.Color(l)
	}
	assert.Equal(t, len(labels), p.Len())
}
