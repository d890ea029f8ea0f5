package ushow

import (
	"errors"
	"fmt"
	"math"
)

// RenderElements rasterises mesh elements coloured by the mean of
// their non-missing vertex values. The raster background is black and
// only pixels covered by an element are written. Elements wrapping the
// antimeridian (maximum pairwise vertex longitude delta above 180) are
// skipped; rendering them through the flat equirectangular projection
// would smear a band across the full raster width.
func RenderElements(mesh *Mesh, values []float64, vmin, vmax, fill_value float64, cmap *Colormap, width, height int, pixels []uint8) error {
	if !mesh.PolygonAvailable() {
		return ErrPolygonUnavailable
	}
	if len(pixels) < 3*width*height {
		return errors.Join(ErrOutOfRange,
			fmt.Errorf("pixel buffer %d but raster is %dx%d", len(pixels), width, height))
	}

	// black background
	for i := range pixels[:3*width*height] {
		pixels[i] = 0
	}

	span := vmax - vmin

	nv := mesh.N_vertices
	vx := make([]float64, nv)
	vy := make([]float64, nv)
	vlon := make([]float64, nv)

	for e := 0; e < mesh.N_elements; e++ {
		verts := mesh.Elements[e*nv : (e+1)*nv]

		// gather, skipping degenerate connectivity outright
		ok := true
		for _, node := range verts {
			if node < 0 || int(node) >= mesh.N {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		sum := 0.0
		n_valid := 0
		for _, node := range verts {
			v := values[node]
			if renderMissing(v, fill_value) {
				continue
			}
			sum += v
			n_valid++
		}
		if n_valid == 0 {
			continue
		}

		// dateline crossing check on raw vertex longitudes
		for k, node := range verts {
			vlon[k] = mesh.Lon[node]
		}
		max_delta := 0.0
		for a := 0; a < nv; a++ {
			for b := a + 1; b < nv; b++ {
				delta := math.Abs(vlon[a] - vlon[b])
				if delta > max_delta {
					max_delta = delta
				}
			}
		}
		if max_delta > 180.0 {
			continue
		}

		mean := sum / float64(n_valid)
		t := 0.0
		if span != 0 {
			t = (mean - vmin) / span
		}
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		r, g, b := cmap.Lookup(t)

		// equirectangular projection into raster space
		for k, node := range verts {
			vx[k] = (mesh.Lon[node] + 180.0) / 360.0 * float64(width)
			vy[k] = (90.0 - mesh.Lat[node]) / 180.0 * float64(height)
		}

		fillTriangle(vx[0], vy[0], vx[1], vy[1], vx[2], vy[2], r, g, b, width, height, pixels)
		if nv == 4 {
			fillTriangle(vx[0], vy[0], vx[2], vy[2], vx[3], vy[3], r, g, b, width, height, pixels)
		}
	}

	return nil
}

// fillTriangle scanline-fills one screen-space triangle. Vertices are
// sorted on y; each scanline interpolates x along the long edge and
// whichever short edge is active, clamped to the raster.
func fillTriangle(x0, y0, x1, y1, x2, y2 float64, r, g, b uint8, width, height int, pixels []uint8) {
	// sort so y0 <= y1 <= y2
	if y0 > y1 {
		x0, y0, x1, y1 = x1, y1, x0, y0
	}
	if y0 > y2 {
		x0, y0, x2, y2 = x2, y2, x0, y0
	}
	if y1 > y2 {
		x1, y1, x2, y2 = x2, y2, x1, y1
	}

	if y2 == y0 {
		return
	}

	y_start := int(math.Ceil(y0))
	y_end := int(math.Floor(y2))
	if y_start < 0 {
		y_start = 0
	}
	if y_end >= height {
		y_end = height - 1
	}

	for y := y_start; y <= y_end; y++ {
		fy := float64(y)

		// x along the long edge v0 -> v2
		xa := x0 + (x2-x0)*(fy-y0)/(y2-y0)

		// x along the active short edge
		var xb float64
		if fy < y1 && y1 != y0 {
			xb = x0 + (x1-x0)*(fy-y0)/(y1-y0)
		} else if y2 != y1 {
			xb = x1 + (x2-x1)*(fy-y1)/(y2-y1)
		} else {
			xb = x1
		}

		if xa > xb {
			xa, xb = xb, xa
		}

		x_start := int(math.Ceil(xa))
		x_end := int(math.Floor(xb))
		if x_start < 0 {
			x_start = 0
		}
		if x_end >= width {
			x_end = width - 1
		}

		for x := x_start; x <= x_end; x++ {
			off := 3 * (y*width + x)
			pixels[off] = r
			pixels[off+1] = g
			pixels[off+2] = b
		}
	}
}
