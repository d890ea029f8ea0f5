package ushow

import (
	"errors"
	"fmt"
)

type CoordType int

const (
	COORD_STRUCTURED_1D CoordType = 1 + iota
	COORD_CURVILINEAR_2D
	COORD_UNSTRUCTURED_1D
)

var CoordTypeNames = map[CoordType]string{
	COORD_STRUCTURED_1D:   "STRUCTURED_1D",
	COORD_CURVILINEAR_2D:  "CURVILINEAR_2D",
	COORD_UNSTRUCTURED_1D: "UNSTRUCTURED_1D",
}

// Mesh owns the source point coordinates, their unit-sphere embedding
// and, when the store supplies one, the element connectivity table.
// A Mesh is immutable once constructed; views and regridders borrow it
// for their lifetime.
type Mesh struct {
	Lon []float64
	Lat []float64
	Xyz []float64 // 3*N, unit sphere
	N   int

	Coord_type CoordType
	Orig_nx    int // valid for structured / curvilinear meshes
	Orig_ny    int

	// element connectivity; empty disables polygon mode
	Elements   []int32 // flattened, N_vertices entries per element
	N_elements int
	N_vertices int
}

// NewMesh constructs a mesh from parallel lon/lat arrays, taking
// ownership of both. Longitudes are wrapped into (-180, 180] in place
// and the Cartesian embedding is derived immediately.
func NewMesh(lon, lat []float64, coord_type CoordType) (*Mesh, error) {
	if len(lon) == 0 || len(lon) != len(lat) {
		return nil, errors.Join(ErrInvalidMesh,
			fmt.Errorf("coordinate lengths lon=%d lat=%d", len(lon), len(lat)))
	}

	for i, v := range lon {
		lon[i] = WrapLongitude(v)
	}

	mesh := &Mesh{
		Lon:        lon,
		Lat:        lat,
		Xyz:        ToCartesianBatch(lon, lat),
		N:          len(lon),
		Coord_type: coord_type,
	}

	return mesh, nil
}

// NewStructuredMesh expands separate 1-D lon/lat axes into the full
// nx*ny point set with node_index = row*nx + col.
func NewStructuredMesh(lon_axis, lat_axis []float64) (*Mesh, error) {
	nx := len(lon_axis)
	ny := len(lat_axis)
	if nx == 0 || ny == 0 {
		return nil, errors.Join(ErrInvalidMesh,
			fmt.Errorf("empty structured axes nx=%d ny=%d", nx, ny))
	}

	lon := make([]float64, nx*ny)
	lat := make([]float64, nx*ny)

	for row := 0; row < ny; row++ {
		for col := 0; col < nx; col++ {
			lon[row*nx+col] = lon_axis[col]
			lat[row*nx+col] = lat_axis[row]
		}
	}

	mesh, err := NewMesh(lon, lat, COORD_STRUCTURED_1D)
	if err != nil {
		return nil, err
	}
	mesh.Orig_nx = nx
	mesh.Orig_ny = ny

	return mesh, nil
}

// NewCurvilinearMesh flattens 2-D coordinate arrays of shape (ny, nx).
func NewCurvilinearMesh(lon, lat []float64, nx, ny int) (*Mesh, error) {
	if nx*ny != len(lon) || len(lon) != len(lat) {
		return nil, errors.Join(ErrInvalidMesh,
			fmt.Errorf("curvilinear shape (%d, %d) vs %d coordinates", ny, nx, len(lon)))
	}

	mesh, err := NewMesh(lon, lat, COORD_CURVILINEAR_2D)
	if err != nil {
		return nil, err
	}
	mesh.Orig_nx = nx
	mesh.Orig_ny = ny

	return mesh, nil
}

// SetElements attaches an element connectivity table; n_vertices is 3
// for triangles or 4 for quads. Only the vertex count and the table
// length are checked; node indices are not compared with the point set,
// and RenderElements skips elements whose indices fall outside it.
func (m *Mesh) SetElements(elements []int32, n_vertices int) error {
	if n_vertices != 3 && n_vertices != 4 {
		return errors.Join(ErrInvalidMesh,
			fmt.Errorf("unsupported vertex count %d", n_vertices))
	}
	if len(elements)%n_vertices != 0 {
		return errors.Join(ErrInvalidMesh,
			fmt.Errorf("element table length %d not divisible by %d", len(elements), n_vertices))
	}

	m.Elements = elements
	m.N_vertices = n_vertices
	m.N_elements = len(elements) / n_vertices

	return nil
}

// PolygonAvailable reports whether the mesh can drive polygon mode.
func (m *Mesh) PolygonAvailable() bool {
	return m != nil && m.N_elements > 0
}

// NodeRowCol decomposes a structured node index into its (row, col)
// position, node_index = row*nx + col.
func (m *Mesh) NodeRowCol(node int) (row, col int) {
	if m.Orig_nx <= 0 {
		return 0, node
	}
	return node / m.Orig_nx, node % m.Orig_nx
}
