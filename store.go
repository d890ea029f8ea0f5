package ushow

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

type StoreKind int

const (
	STORE_NETCDF StoreKind = 1 + iota
	STORE_ZARR
	STORE_GRIB
)

var StoreKindNames = map[StoreKind]string{
	STORE_NETCDF: "NETCDF",
	STORE_ZARR:   "ZARR",
	STORE_GRIB:   "GRIB",
}

// Store is the tagged union over the three backends. The format set
// is closed, and every call site dispatches on the file type anyway,
// so a kind switch beats virtual dispatch here.
type Store struct {
	Kind StoreKind
	Uri  string

	nc   *NetcdfStore
	zarr *ZarrStore
	grib *GribStore
}

// DetectStoreKind classifies a path by shape: directories holding
// Zarr metadata are Zarr, *.grib/*.grib2/*.grb files are GRIB,
// everything else is treated as NetCDF.
func DetectStoreKind(uri string) (StoreKind, error) {
	info, err := os.Stat(uri)
	if err != nil {
		return 0, errors.Join(ErrOpenStore, err)
	}

	if info.IsDir() {
		for _, marker := range []string{".zgroup", ".zarray", ".zmetadata"} {
			if _, err := os.Stat(filepath.Join(uri, marker)); err == nil {
				return STORE_ZARR, nil
			}
		}
		return 0, errors.Join(ErrOpenStore,
			fmt.Errorf("directory %s carries no zarr metadata", uri))
	}

	switch strings.ToLower(filepath.Ext(uri)) {
	case ".grib", ".grib2", ".grb", ".grb2":
		return STORE_GRIB, nil
	}

	return STORE_NETCDF, nil
}

// OpenStore opens a single store of the detected kind.
func OpenStore(uri string) (*Store, error) {
	kind, err := DetectStoreKind(uri)
	if err != nil {
		return nil, err
	}
	return OpenStoreKind(uri, kind)
}

// OpenStoreKind opens a single store of an explicit kind.
func OpenStoreKind(uri string, kind StoreKind) (*Store, error) {
	store := &Store{Kind: kind, Uri: uri}

	var err error
	switch kind {
	case STORE_NETCDF:
		store.nc, err = OpenNetcdf(uri)
	case STORE_ZARR:
		store.zarr, err = OpenZarr(uri)
	case STORE_GRIB:
		store.grib, err = OpenGrib(uri)
	default:
		return nil, errors.Join(ErrStoreKind, fmt.Errorf("kind %d", kind))
	}
	if err != nil {
		return nil, err
	}

	return store, nil
}

// Close releases whichever backend is open.
func (s *Store) Close() {
	switch s.Kind {
	case STORE_NETCDF:
		if s.nc != nil {
			s.nc.Close()
		}
	case STORE_ZARR:
		if s.zarr != nil {
			s.zarr.Close()
		}
	case STORE_GRIB:
		if s.grib != nil {
			s.grib.Close()
		}
	}
}

// Grib exposes the GRIB backend for union-time reads, nil for other
// kinds.
func (s *Store) Grib() *GribStore {
	return s.grib
}

// CreateMesh builds the mesh from the store's coordinates. The
// separate mesh URI only applies to NetCDF stores and may be empty.
func (s *Store) CreateMesh(sep_mesh_uri string) (*Mesh, error) {
	switch s.Kind {
	case STORE_NETCDF:
		return s.nc.CreateMesh(sep_mesh_uri)
	case STORE_ZARR:
		return s.zarr.CreateMesh()
	case STORE_GRIB:
		return s.grib.CreateMesh()
	}
	return nil, ErrStoreKind
}

// ScanVariables enumerates the displayable variables.
func (s *Store) ScanVariables(mesh *Mesh) (*VariableSet, error) {
	switch s.Kind {
	case STORE_NETCDF:
		return s.nc.ScanVariables(mesh, s)
	case STORE_ZARR:
		return s.zarr.ScanVariables(mesh, s)
	case STORE_GRIB:
		return s.grib.ScanVariables(mesh, s)
	}
	return nil, ErrStoreKind
}

// ReadSlice reads one (t, d) snapshot of a variable scanned from this
// store.
func (s *Store) ReadSlice(v *Variable, t, d int, out []float64) error {
	switch s.Kind {
	case STORE_NETCDF:
		return s.nc.ReadSlice(v, t, d, out)
	case STORE_ZARR:
		return s.zarr.ReadSlice(v, t, d, out)
	case STORE_GRIB:
		return s.grib.ReadSlice(v, t, d, out)
	}
	return ErrStoreKind
}

// EstimateRange samples the variable for a plausible display range.
func (s *Store) EstimateRange(v *Variable) (float64, float64, error) {
	switch s.Kind {
	case STORE_NETCDF:
		return s.nc.EstimateRange(v)
	case STORE_ZARR:
		return s.zarr.EstimateRange(v)
	case STORE_GRIB:
		return s.grib.EstimateRange(v)
	}
	return 0, 1, ErrStoreKind
}

// DimInfo lists the scannable dimensions of a variable.
func (s *Store) DimInfo(v *Variable) []DimInfo {
	switch s.Kind {
	case STORE_NETCDF:
		return s.nc.DimInfo(v)
	case STORE_ZARR:
		return s.zarr.DimInfo(v)
	case STORE_GRIB:
		return s.grib.DimInfo(v)
	}
	return nil
}

// ReadTimeseries reads one node across all of the variable's times.
func (s *Store) ReadTimeseries(v *Variable, node, d int) (*TimeseriesResult, error) {
	switch s.Kind {
	case STORE_NETCDF:
		return s.nc.ReadTimeseries(v, node, d)
	case STORE_ZARR:
		return s.zarr.ReadTimeseries(v, node, d)
	case STORE_GRIB:
		return s.grib.ReadTimeseries(v, node, d)
	}
	return nil, ErrStoreKind
}

// estimateRangeSampled is the shared range estimator: up to three
// evenly spaced times at depth 0, min/max over the valid values, and
// the default [0, 1] with ErrRangeEmpty when nothing valid turned up.
func estimateRangeSampled(v *Variable, read func(t, d int, out []float64) error) (float64, float64, error) {
	n := v.SpatialSize()
	buffer := make([]float64, n)

	n_times := v.NTimes()
	samples := RANGE_ESTIMATE_TIME_SAMPLES
	if n_times < samples {
		samples = n_times
	}

	vmin := math.Inf(1)
	vmax := math.Inf(-1)
	n_valid := 0

	for s := 0; s < samples; s++ {
		t := 0
		if samples > 1 {
			t = s * (n_times - 1) / (samples - 1)
		}

		if err := read(t, 0, buffer); err != nil {
			continue
		}

		for _, val := range buffer {
			if ValueMissing(val, v.Fill_value) {
				continue
			}
			if val < vmin {
				vmin = val
			}
			if val > vmax {
				vmax = val
			}
			n_valid++
		}
	}

	if n_valid == 0 {
		return 0.0, 1.0, ErrRangeEmpty
	}

	return vmin, vmax, nil
}
