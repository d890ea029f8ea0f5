package ushow

import (
	"errors"
	"fmt"
	"math"
)

// Regridder holds the precomputed mapping from a regular global
// lon/lat raster to mesh point indices. Once built it is immutable and
// may be shared by any number of views.
type Regridder struct {
	Nx int
	Ny int

	Resolution_deg   float64
	Influence_metres float64
	Influence_chord  float64

	Nn_index []int     // nearest source point per target cell
	Nn_dist  []float64 // chord distance to it
	Valid    []bool    // chord within the influence radius
}

// TargetDims computes the raster dimensions for a resolution in
// degrees: nx = floor(360/res), ny = floor(180/res).
func TargetDims(resolution_deg float64) (nx, ny int) {
	nx = int(math.Floor(360.0 / resolution_deg))
	ny = int(math.Floor(180.0 / resolution_deg))
	return nx, ny
}

// CellCenter returns the lon/lat of target cell (i, j). Cell centres
// sit half a cell in from the raster edges.
func (rg *Regridder) CellCenter(i, j int) (lon, lat float64) {
	dlon := 360.0 / float64(rg.Nx)
	dlat := 180.0 / float64(rg.Ny)
	lon = -180.0 + (float64(i)+0.5)*dlon
	lat = -90.0 + (float64(j)+0.5)*dlat
	return lon, lat
}

// NewRegridder builds the nearest-neighbour table for the given mesh.
// A k-d tree over the mesh's Cartesian embedding answers one query per
// target cell; cells whose nearest source point lies further than the
// influence radius are masked invalid.
func NewRegridder(mesh *Mesh, resolution_deg, influence_metres float64) (*Regridder, error) {
	if mesh == nil || mesh.N == 0 {
		return nil, errors.Join(ErrInvalidMesh, fmt.Errorf("regrid over empty mesh"))
	}
	if resolution_deg <= 0 {
		resolution_deg = DEFAULT_RESOLUTION_DEG
	}
	if influence_metres <= 0 {
		influence_metres = DEFAULT_INFLUENCE_METRES
	}

	nx, ny := TargetDims(resolution_deg)

	rg := &Regridder{
		Nx:               nx,
		Ny:               ny,
		Resolution_deg:   resolution_deg,
		Influence_metres: influence_metres,
		Influence_chord:  MetresToChord(influence_metres),
		Nn_index:         make([]int, nx*ny),
		Nn_dist:          make([]float64, nx*ny),
		Valid:            make([]bool, nx*ny),
	}

	tree := NewKdTree(mesh.Xyz, mesh.N)

	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			lon, lat := rg.CellCenter(i, j)
			x, y, z := ToCartesian(lon, lat)

			idx, dist := tree.Nearest(x, y, z)

			cell := j*nx + i
			rg.Nn_index[cell] = idx
			rg.Nn_dist[cell] = dist
			rg.Valid[cell] = dist <= rg.Influence_chord
		}
	}

	return rg, nil
}

// Apply resamples one source snapshot onto the target raster. Cells
// outside every point's influence, and cells whose source value is
// itself missing, receive the fill value. out must hold Nx*Ny values.
func (rg *Regridder) Apply(source []float64, out []float64, fill_value float64) error {
	if len(out) < rg.Nx*rg.Ny {
		return errors.Join(ErrOutOfRange,
			fmt.Errorf("target buffer %d but raster is %dx%d", len(out), rg.Nx, rg.Ny))
	}

	for cell := 0; cell < rg.Nx*rg.Ny; cell++ {
		if !rg.Valid[cell] {
			out[cell] = fill_value
			continue
		}

		src := rg.Nn_index[cell]
		if src < 0 || src >= len(source) {
			out[cell] = fill_value
			continue
		}

		v := source[src]
		if v != v || math.Abs(v) >= RENDER_MISSING_THRESHOLD {
			out[cell] = fill_value
			continue
		}

		out[cell] = v
	}

	return nil
}
