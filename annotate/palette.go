package annotate

import (
	"hash/fnv"
	"image/color"
	"sync"
)

// Palette maps labels to outline colors. A color is derived from the FNV-1a
// hash of the label on first sight and cached. Entries are never evicted;
// the size is bounded by the number of labels in the label table.
type Palette struct {
	mu     sync.Mutex
	colors map[string]color.RGBA
}

func NewPalette() *Palette {
	return &Palette{colors: make(map[string]color.RGBA)}
}

func (p *Palette) Color(label string) color.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.colors[label]; ok {
		return c
	}
	c := labelColor(label)
	p.colors[label] = c
	return c
}

// Len is the number of cached labels.
func (p *Palette) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.colors)
}

func labelColor(label string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(label))
	v := h.Sum32()
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
