package ushow

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
)

// writeTestNetcdf writes a small structured dataset: an 18 x 36 grid
// with value(t, lat, lon) = 273 + 0.5*lat + 0.1*t. The variable is
// omitted entirely when with_temp is false, which filesets must
// tolerate.
func writeTestNetcdf(t *testing.T, path, time_units string, times []float64, with_temp bool) {
	t.Helper()

	const nx, ny = 36, 18
	nt := len(times)

	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{nt, ny, nx})

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", time_units)

	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")

	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")

	if with_temp {
		h.AddVariable("temp", []string{"time", "lat", "lon"}, []float32{0})
		h.AddAttribute("temp", "units", "K")
		h.AddAttribute("temp", "long_name", "sea surface temperature")
		h.AddAttribute("temp", "_FillValue", []float32{float32(DEFAULT_FILL_VALUE)})
	}

	h.Define()

	ff, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()

	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}

	lat := make([]float64, ny)
	for j := range lat {
		lat[j] = -85.0 + 10.0*float64(j)
	}
	lon := make([]float64, nx)
	for i := range lon {
		lon[i] = -175.0 + 10.0*float64(i)
	}

	write := func(name string, begin, end []int, data any) {
		w := f.Writer(name, begin, end)
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}

	write("time", []int{0}, []int{nt}, times)
	write("lat", []int{0}, []int{ny}, lat)
	write("lon", []int{0}, []int{nx}, lon)

	if with_temp {
		temp := make([]float32, nt*ny*nx)
		for ti := 0; ti < nt; ti++ {
			for j := 0; j < ny; j++ {
				for i := 0; i < nx; i++ {
					temp[ti*ny*nx+j*nx+i] = float32(273.0 + 0.5*lat[j] + 0.1*float64(ti))
				}
			}
		}
		write("temp", []int{0, 0, 0}, []int{nt, 0, 0}, temp)
	}
}

func openTestStore(t *testing.T, path string) (*Store, *Mesh, *VariableSet) {
	t.Helper()

	store, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)

	mesh, err := store.CreateMesh("")
	if err != nil {
		t.Fatal(err)
	}

	vars, err := store.ScanVariables(mesh)
	if err != nil {
		t.Fatal(err)
	}

	return store, mesh, vars
}

func TestNetcdfMeshAndScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	writeTestNetcdf(t, path, "days since 1950-01-01", []float64{0, 1, 2, 3, 4}, true)

	_, mesh, vars := openTestStore(t, path)

	if mesh.Coord_type != COORD_STRUCTURED_1D {
		t.Fatalf("coord type %v, want structured", mesh.Coord_type)
	}
	if mesh.N != 648 || mesh.Orig_nx != 36 || mesh.Orig_ny != 18 {
		t.Fatalf("mesh n=%d nx=%d ny=%d", mesh.N, mesh.Orig_nx, mesh.Orig_ny)
	}

	// coordinates themselves are not discoverable
	for _, name := range []string{"time", "lat", "lon"} {
		if vars.ByName(name) != nil {
			t.Errorf("coordinate %q listed as a variable", name)
		}
	}

	v := vars.ByName("temp")
	if v == nil {
		t.Fatalf("temp not discovered; have %v", vars.Names())
	}
	if v.NTimes() != 5 || v.NDepths() != 1 || v.SpatialSize() != 648 {
		t.Fatalf("temp extents times=%d depths=%d nodes=%d", v.NTimes(), v.NDepths(), v.SpatialSize())
	}
	if !v.Spatial_2d {
		t.Error("temp did not classify with a lat/lon spatial pair")
	}
	if v.Long_name != "sea surface temperature" || v.Units != "K" {
		t.Errorf("attrs long_name=%q units=%q", v.Long_name, v.Units)
	}
	if v.Fill_value != float64(float32(DEFAULT_FILL_VALUE)) {
		t.Errorf("fill value %v", v.Fill_value)
	}
}

func TestNetcdfSliceAndRegrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	writeTestNetcdf(t, path, "days since 1950-01-01", []float64{0, 1, 2, 3, 4}, true)

	store, mesh, vars := openTestStore(t, path)
	v := vars.ByName("temp")

	raw := make([]float64, mesh.N)
	if err := store.ReadSlice(v, 0, 0, raw); err != nil {
		t.Fatal(err)
	}

	// node ordering: row*nx + col against the expected field
	for j := 0; j < 18; j++ {
		lat := -85.0 + 10.0*float64(j)
		want := 273.0 + 0.5*lat
		got := raw[j*36]
		if math.Abs(got-want) > 1e-3 {
			t.Fatalf("row %d value %v, want %v", j, got, want)
		}
	}

	rg, err := NewRegridder(mesh, 10.0, 1_600_000)
	if err != nil {
		t.Fatal(err)
	}

	out := make([]float64, rg.Nx*rg.Ny)
	if err := rg.Apply(raw, out, v.Fill_value); err != nil {
		t.Fatal(err)
	}

	n_valid := 0
	for cell, val := range out {
		if !rg.Valid[cell] {
			continue
		}
		n_valid++
		if val <= 200.0 || val >= 400.0 {
			t.Fatalf("cell %d regridded to %v, outside (200, 400)", cell, val)
		}
	}
	if n_valid == 0 {
		t.Fatal("no valid cells after regridding")
	}
}

func TestNetcdfTimeStepping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	writeTestNetcdf(t, path, "days since 1950-01-01", []float64{0, 1, 2, 3, 4}, true)

	store, mesh, vars := openTestStore(t, path)
	v := vars.ByName("temp")

	s0 := make([]float64, mesh.N)
	s4 := make([]float64, mesh.N)
	if err := store.ReadSlice(v, 0, 0, s0); err != nil {
		t.Fatal(err)
	}
	if err := store.ReadSlice(v, 4, 0, s4); err != nil {
		t.Fatal(err)
	}

	differs := false
	for i := range s0 {
		if s0[i] != s4[i] {
			differs = true
			break
		}
	}
	if !differs {
		t.Error("slices at t=0 and t=4 are identical")
	}
}

func TestNetcdfEstimateRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	writeTestNetcdf(t, path, "days since 1950-01-01", []float64{0, 1, 2, 3, 4}, true)

	store, _, vars := openTestStore(t, path)
	v := vars.ByName("temp")

	vmin, vmax, err := store.EstimateRange(v)
	if err != nil {
		t.Fatal(err)
	}

	// field spans 273 +- 42.5 plus the small time term
	if vmin < 230.0 || vmin > 231.0 {
		t.Errorf("estimated min %v", vmin)
	}
	if vmax < 315.0 || vmax > 317.0 {
		t.Errorf("estimated max %v", vmax)
	}
}

func TestNetcdfDimInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	writeTestNetcdf(t, path, "days since 1950-01-01", []float64{0, 1, 2, 3, 4}, true)

	store, _, vars := openTestStore(t, path)
	v := vars.ByName("temp")

	infos := store.DimInfo(v)
	if len(infos) != 1 {
		t.Fatalf("%d scannable dims, want 1 (time)", len(infos))
	}

	info := infos[0]
	if info.Name != "time" || info.Size != 5 {
		t.Errorf("dim %q size %d", info.Name, info.Size)
	}
	if info.Units != "days since 1950-01-01" {
		t.Errorf("units %q", info.Units)
	}
	if len(info.Values) != 5 || info.Min != 0 || info.Max != 4 {
		t.Errorf("coordinate vector %v min %v max %v", info.Values, info.Min, info.Max)
	}
}

func TestNetcdfTimeseries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	writeTestNetcdf(t, path, "days since 1950-01-01", []float64{0, 1, 2, 3, 4}, true)

	store, _, vars := openTestStore(t, path)
	v := vars.ByName("temp")

	// node 100 decomposes as row 2, col 28: lat = -65
	series, err := store.ReadTimeseries(v, 100, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(series.Values) != 5 {
		t.Fatalf("series length %d", len(series.Values))
	}

	for ti := 0; ti < 5; ti++ {
		want := 273.0 + 0.5*(-65.0) + 0.1*float64(ti)
		if math.Abs(series.Values[ti]-want) > 1e-3 {
			t.Fatalf("step %d value %v, want %v", ti, series.Values[ti], want)
		}
		if !series.Valid[ti] {
			t.Fatalf("step %d flagged invalid", ti)
		}
		if series.Times[ti] != float64(ti) {
			t.Fatalf("step %d time %v", ti, series.Times[ti])
		}
	}
}

func TestNetcdfOpenMissing(t *testing.T) {
	_, err := OpenNetcdf(filepath.Join(t.TempDir(), "absent.nc"))
	if !errors.Is(err, ErrOpenStore) {
		t.Errorf("missing file open returned %v", err)
	}
}
