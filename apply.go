package ushow

import (
	"errors"
	"fmt"
	"math"
)

// ValueMissing applies the general fill convention: a value is missing
// when its magnitude reaches the invalid-data threshold, when it is
// NaN, or when it matches the declared fill value within relative
// epsilon.
func ValueMissing(v, fill_value float64) bool {
	if v != v {
		return true
	}
	if math.Abs(v) >= INVALID_DATA_THRESHOLD {
		return true
	}
	return math.Abs(v-fill_value) <= FILL_MATCH_EPSILON*math.Abs(fill_value)
}

// renderMissing is the per-snapshot variant used while rasterising,
// with the tighter magnitude threshold the display path applies.
func renderMissing(v, fill_value float64) bool {
	if v != v {
		return true
	}
	if math.Abs(v) > RENDER_MISSING_THRESHOLD {
		return true
	}
	return math.Abs(v-fill_value) < FILL_MATCH_EPSILON*math.Abs(fill_value)
}

// ApplyColormap colours an (nx, ny) raster of values into RGB bytes.
// Missing cells become the dark background. Source row 0 is south, so
// the output is flipped to read north-up. pixels must hold 3*nx*ny
// bytes.
func ApplyColormap(data []float64, nx, ny int, vmin, vmax, fill_value float64, cmap *Colormap, pixels []uint8) error {
	return ApplyColormapScaled(data, nx, ny, vmin, vmax, fill_value, cmap, 1, pixels)
}

// ApplyColormapScaled is ApplyColormap with integer upscaling: each
// source cell is replicated into a scale*scale block. pixels must hold
// 3*scale*scale*nx*ny bytes.
func ApplyColormapScaled(data []float64, nx, ny int, vmin, vmax, fill_value float64, cmap *Colormap, scale int, pixels []uint8) error {
	if len(data) < nx*ny {
		return errors.Join(ErrOutOfRange,
			fmt.Errorf("raster %dx%d but %d values", nx, ny, len(data)))
	}
	if scale < 1 {
		scale = 1
	}

	out_nx := nx * scale
	need := 3 * out_nx * ny * scale
	if len(pixels) < need {
		return errors.Join(ErrOutOfRange,
			fmt.Errorf("pixel buffer %d but need %d", len(pixels), need))
	}

	span := vmax - vmin

	for y := 0; y < ny; y++ {
		// flip about the y axis; source row 0 lands on the last rows
		out_y0 := (ny - 1 - y) * scale

		for x := 0; x < nx; x++ {
			var r, g, b uint8

			v := data[y*nx+x]
			if renderMissing(v, fill_value) {
				r, g, b = MISSING_R, MISSING_G, MISSING_B
			} else {
				t := 0.0
				if span != 0 {
					t = (v - vmin) / span
				}
				if t < 0 {
					t = 0
				} else if t > 1 {
					t = 1
				}
				r, g, b = cmap.Lookup(t)
			}

			for sy := 0; sy < scale; sy++ {
				row := (out_y0 + sy) * out_nx
				for sx := 0; sx < scale; sx++ {
					off := 3 * (row + x*scale + sx)
					pixels[off] = r
					pixels[off+1] = g
					pixels[off+2] = b
				}
			}
		}
	}

	return nil
}
