package ushow

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testView(t *testing.T) (*View, *Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "grid.nc")
	writeTestNetcdf(t, path, "days since 1950-01-01", []float64{0, 1, 2, 3, 4}, true)

	store, mesh, vars := openTestStore(t, path)

	rg, err := NewRegridder(mesh, 10.0, 1_600_000)
	if err != nil {
		t.Fatal(err)
	}

	view := NewView()
	view.Vars = vars
	if err := view.SetVariable(vars.ByName("temp"), mesh, rg); err != nil {
		t.Fatal(err)
	}

	return view, store
}

func TestViewSetVariableSeedsState(t *testing.T) {
	view, _ := testView(t)

	if view.N_times != 5 || view.N_depths != 1 {
		t.Fatalf("extents times=%d depths=%d", view.N_times, view.N_depths)
	}
	if view.Time_index != 0 || view.Depth_index != 0 {
		t.Error("indices did not reset")
	}

	vmin, vmax := view.Range()
	if vmin >= vmax {
		t.Errorf("seeded range [%v, %v]", vmin, vmax)
	}
	if vmin < 230.0 || vmax > 317.0 {
		t.Errorf("range [%v, %v] implausible for the test field", vmin, vmax)
	}
}

func TestViewUpdateRendersPixels(t *testing.T) {
	view, _ := testView(t)

	if err := view.Update(); err != nil {
		t.Fatal(err)
	}

	pixels, width, height := view.Pixels()
	if width != 36 || height != 18 {
		t.Fatalf("frame %dx%d", width, height)
	}

	n_colored := 0
	for i := 0; i < len(pixels); i += 3 {
		if pixels[i] != MISSING_R || pixels[i+1] != MISSING_G || pixels[i+2] != MISSING_B {
			n_colored++
		}
	}
	if n_colored == 0 {
		t.Error("no cells rendered through the palette")
	}
}

func TestViewTimeNavigation(t *testing.T) {
	view, _ := testView(t)
	_ = view.Update()

	view.SetTime(3)
	if view.Time_index != 3 {
		t.Fatalf("time index %d", view.Time_index)
	}
	if view.data_valid {
		t.Error("SetTime did not invalidate the frame")
	}

	view.SetTime(99)
	if view.Time_index != 4 {
		t.Errorf("clamped index %d, want 4", view.Time_index)
	}
	view.SetTime(-3)
	if view.Time_index != 0 {
		t.Errorf("clamped index %d, want 0", view.Time_index)
	}

	idx, err := view.StepTime(2)
	if idx != 2 || err != nil {
		t.Errorf("StepTime(2) = (%d, %v)", idx, err)
	}
	idx, err = view.StepTime(10)
	if idx != 4 || !errors.Is(err, ErrTimeBoundary) {
		t.Errorf("boundary step = (%d, %v)", idx, err)
	}
	idx, err = view.StepTime(-10)
	if idx != 0 || !errors.Is(err, ErrTimeBoundary) {
		t.Errorf("boundary step = (%d, %v)", idx, err)
	}
}

func TestViewAnimationBounce(t *testing.T) {
	view, _ := testView(t)

	view.SetAnimationDirection(2)
	seen := []int{view.Time_index}
	for i := 0; i < 6; i++ {
		seen = append(seen, view.Tick())
	}

	// forward to the end, bounce on the clamped step, back to the
	// start, bounce again
	want := []int{0, 2, 4, 4, 2, 0, 0}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("tick sequence %v, want %v", seen, want)
		}
	}
}

func TestViewPolygonUnavailable(t *testing.T) {
	view, _ := testView(t)

	// the structured test mesh has no element table
	if err := view.ToggleRenderMode(); !errors.Is(err, ErrPolygonUnavailable) {
		t.Errorf("toggle returned %v, want ErrPolygonUnavailable", err)
	}
	if view.Mode != RENDER_INTERPOLATE {
		t.Error("mode changed despite the failure")
	}
}

func TestViewZoomReallocates(t *testing.T) {
	view, _ := testView(t)

	view.ZoomDelta(1)
	if view.Scale_factor != 2 {
		t.Fatalf("scale %d", view.Scale_factor)
	}
	if err := view.Update(); err != nil {
		t.Fatal(err)
	}

	pixels, width, height := view.Pixels()
	if width != 72 || height != 36 {
		t.Fatalf("scaled frame %dx%d", width, height)
	}
	if len(pixels) != 3*72*36 {
		t.Fatalf("pixel buffer %d", len(pixels))
	}

	view.ZoomDelta(100)
	if view.Scale_factor != MAX_SCALE_FACTOR {
		t.Errorf("scale clamped to %d", view.Scale_factor)
	}
	view.ZoomDelta(-100)
	if view.Scale_factor != MIN_SCALE_FACTOR {
		t.Errorf("scale clamped to %d", view.Scale_factor)
	}
}

func TestViewRangeAdjust(t *testing.T) {
	view, _ := testView(t)

	view.SetRange(0, 100)
	view.AdjustRange(RANGE_MIN_UP)
	view.AdjustRange(RANGE_MAX_DOWN)

	vmin, vmax := view.Range()
	if vmin != 5.0 || vmax != 95.25 {
		t.Errorf("adjusted range [%v, %v], want [5, 95.25]", vmin, vmax)
	}

	// the range is remembered per variable
	if stored := view.ranges["temp"]; stored[0] != 5.0 || stored[1] != 95.25 {
		t.Errorf("stored range %v", stored)
	}
}

func TestViewTimeseries(t *testing.T) {
	view, _ := testView(t)

	series, err := view.ReadTimeseries(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Values) != 5 {
		t.Fatalf("series length %d", len(series.Values))
	}
}

func TestWritePpmLayout(t *testing.T) {
	// scenario: a 4x3 all-red buffer
	pixels := make([]uint8, 3*4*3)
	for i := 0; i < len(pixels); i += 3 {
		pixels[i] = 255
	}

	path := filepath.Join(t.TempDir(), "red.ppm")
	if err := WritePpm(path, pixels, 4, 3); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	header := []byte("P6\n4 3\n255\n")
	if !bytes.HasPrefix(data, header) {
		t.Fatalf("header %q", data[:len(header)])
	}

	body := data[len(header):]
	if len(body) != 36 {
		t.Fatalf("body %d bytes, want 36", len(body))
	}
	for i := 0; i < len(body); i += 3 {
		if body[i] != 255 || body[i+1] != 0 || body[i+2] != 0 {
			t.Fatalf("pixel %d = (%d, %d, %d)", i/3, body[i], body[i+1], body[i+2])
		}
	}
}

func TestViewSavePpm(t *testing.T) {
	view, _ := testView(t)

	path := filepath.Join(t.TempDir(), "frame.ppm")
	if err := view.SavePpm(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("P6\n36 18\n255\n")) {
		t.Fatalf("unexpected header in %q", data[:16])
	}
}

func TestDetectStoreKind(t *testing.T) {
	dir := t.TempDir()

	nc := filepath.Join(dir, "data.nc")
	writeTestNetcdf(t, nc, "days since 1950-01-01", []float64{0}, true)
	if kind, err := DetectStoreKind(nc); err != nil || kind != STORE_NETCDF {
		t.Errorf("nc detected as (%v, %v)", kind, err)
	}

	grb := filepath.Join(dir, "data.grib2")
	if err := os.WriteFile(grb, []byte("GRIB"), 0o644); err != nil {
		t.Fatal(err)
	}
	if kind, err := DetectStoreKind(grb); err != nil || kind != STORE_GRIB {
		t.Errorf("grib detected as (%v, %v)", kind, err)
	}

	zarr := filepath.Join(dir, "store.zarr")
	writeTestZarr(t, zarr)
	if kind, err := DetectStoreKind(zarr); err != nil || kind != STORE_ZARR {
		t.Errorf("zarr detected as (%v, %v)", kind, err)
	}

	if _, err := DetectStoreKind(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing path detected without error")
	}
}
