package ushow

import (
	"math"

	"github.com/samber/lo"
)

// N_COLORMAP_ENTRIES is fixed; every palette is expanded to this size.
const N_COLORMAP_ENTRIES = 256

// Colormap is a named 256-entry RGB lookup table.
type Colormap struct {
	Name string
	Rgb  [N_COLORMAP_ENTRIES][3]uint8
}

// Lookup maps t in [0, 1] to an RGB triple. Out of range inputs clamp
// to the palette ends.
func (c *Colormap) Lookup(t float64) (r, g, b uint8) {
	idx := int(math.Floor(t * 255.0))
	if idx < 0 {
		idx = 0
	} else if idx > 255 {
		idx = 255
	}
	return c.Rgb[idx][0], c.Rgb[idx][1], c.Rgb[idx][2]
}

// FillColor is the colour used for missing samples when colouring
// point data: the fixed dark gray background (MISSING_R/G/B), the same
// for every palette.
func (c *Colormap) FillColor() (r, g, b uint8) {
	return MISSING_R, MISSING_G, MISSING_B
}

// expandAnchors linearly interpolates evenly spaced RGB anchor points
// out to the full 256 entries.
func expandAnchors(name string, anchors [][3]uint8) *Colormap {
	cmap := &Colormap{Name: name}
	n_seg := len(anchors) - 1

	for i := 0; i < N_COLORMAP_ENTRIES; i++ {
		pos := float64(i) / float64(N_COLORMAP_ENTRIES-1) * float64(n_seg)
		seg := int(pos)
		if seg >= n_seg {
			seg = n_seg - 1
		}
		frac := pos - float64(seg)

		for ch := 0; ch < 3; ch++ {
			lo_v := float64(anchors[seg][ch])
			hi_v := float64(anchors[seg+1][ch])
			cmap.Rgb[i][ch] = uint8(lo_v + (hi_v-lo_v)*frac + 0.5)
		}
	}

	return cmap
}

// Built-in palettes. Anchor points only; the registry expands them.
var builtinAnchors = []struct {
	name    string
	anchors [][3]uint8
}{
	{"viridis", [][3]uint8{
		{68, 1, 84}, {72, 40, 120}, {62, 74, 137}, {49, 104, 142},
		{38, 130, 142}, {31, 158, 137}, {53, 183, 121}, {109, 205, 89},
		{180, 222, 44}, {253, 231, 37},
	}},
	{"hot", [][3]uint8{
		{10, 0, 0}, {178, 0, 0}, {255, 76, 0}, {255, 178, 0},
		{255, 255, 64}, {255, 255, 255},
	}},
	{"grayscale", [][3]uint8{
		{0, 0, 0}, {255, 255, 255},
	}},
	{"jet", [][3]uint8{
		{0, 0, 131}, {0, 60, 170}, {5, 255, 255}, {255, 255, 0},
		{250, 0, 0}, {128, 0, 0},
	}},
	{"coolwarm", [][3]uint8{
		{59, 76, 192}, {145, 168, 233}, {221, 221, 221}, {229, 138, 104},
		{180, 4, 38},
	}},
	{"seismic", [][3]uint8{
		{0, 0, 76}, {0, 0, 255}, {255, 255, 255}, {255, 0, 0},
		{128, 0, 0},
	}},
}

// ColormapRegistry is an ordered palette collection with a circular
// cursor. The process-wide instance lives in DefaultColormaps; the UI
// event loop is single threaded so the cursor is a plain integer.
type ColormapRegistry struct {
	maps   []*Colormap
	cursor int
}

// NewColormapRegistry expands the built-in palette set and places the
// cursor on viridis when present, index 0 otherwise.
func NewColormapRegistry() *ColormapRegistry {
	reg := &ColormapRegistry{
		maps: make([]*Colormap, 0, len(builtinAnchors)),
	}

	for _, spec := range builtinAnchors {
		reg.maps = append(reg.maps, expandAnchors(spec.name, spec.anchors))
	}

	_, idx, found := lo.FindIndexOf(reg.maps, func(c *Colormap) bool {
		return c.Name == "viridis"
	})
	if found {
		reg.cursor = idx
	}

	return reg
}

// DefaultColormaps is the process-wide registry.
var DefaultColormaps = NewColormapRegistry()

// Current returns the palette under the cursor.
func (r *ColormapRegistry) Current() *Colormap {
	return r.maps[r.cursor]
}

// Next advances the cursor circularly and returns the new palette.
func (r *ColormapRegistry) Next() *Colormap {
	r.cursor = (r.cursor + 1) % len(r.maps)
	return r.maps[r.cursor]
}

// Prev retreats the cursor circularly and returns the new palette.
func (r *ColormapRegistry) Prev() *Colormap {
	r.cursor = (r.cursor - 1 + len(r.maps)) % len(r.maps)
	return r.maps[r.cursor]
}

// ByName returns the named palette, or nil when absent.
func (r *ColormapRegistry) ByName(name string) *Colormap {
	cmap, found := lo.Find(r.maps, func(c *Colormap) bool {
		return c.Name == name
	})
	if !found {
		return nil
	}
	return cmap
}

// Names lists the palettes in registry order.
func (r *ColormapRegistry) Names() []string {
	return lo.Map(r.maps, func(c *Colormap, _ int) string { return c.Name })
}

// Len reports the palette count.
func (r *ColormapRegistry) Len() int {
	return len(r.maps)
}
