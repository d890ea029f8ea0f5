package ushow

import (
	"errors"
	"fmt"
	"testing"
)

// gribDay converts (yyyymmdd, hhmm) to absolute days.
func gribDay(date, hhmm int) float64 {
	y := date / 10000
	m := (date / 100) % 100
	d := date % 100
	seconds := float64(hhmm/100)*3600.0 + float64(hhmm%100)*60.0
	return float64(CivilToDays(y, m, d)) + seconds/86400.0
}

// makeGribStore synthesises a store with one TMP@mb group holding the
// cross product of the given (date, time) pairs and levels.
func makeGribStore(uri string, stamps [][2]int, levels []float64) *GribStore {
	const n_points = 8

	lon := make([]float64, n_points)
	lat := make([]float64, n_points)
	for i := range lon {
		lon[i] = float64(i) * 45.0
		lat[i] = float64(i)*10.0 - 35.0
	}

	messages := make([]GribMessage, 0, len(stamps)*len(levels))
	for _, stamp := range stamps {
		for _, level := range levels {
			values := make([]float32, n_points)
			for i := range values {
				values[i] = float32(level) + float32(stamp[1])/100.0 + float32(i)
			}
			messages = append(messages, GribMessage{
				Short_name:    "TMP",
				Type_of_level: "mb",
				Level:         level,
				Abs_time:      gribDay(stamp[0], stamp[1]),
				Values:        values,
				N_points:      n_points,
			})
		}
	}

	return NewGribStoreFromMessages(uri, messages, lon, lat)
}

// gribFileset assembles a fileset over synthetic stores, mirroring
// what OpenFileset builds for on-disk GRIB files.
func gribFileset(t *testing.T, stores ...*GribStore) (*Fileset, *Mesh, *VariableSet) {
	t.Helper()

	fs := &Fileset{
		Kind:    STORE_GRIB,
		Offsets: []int{0},
		scanned: make([]bool, len(stores)),
		varsets: make([]*VariableSet, len(stores)),
	}

	union := make([]float64, 0)
	for _, gs := range stores {
		fs.Uris = append(fs.Uris, gs.Uri)
		fs.Stores = append(fs.Stores, &Store{Kind: STORE_GRIB, Uri: gs.Uri, grib: gs})
		fs.Offsets = append(fs.Offsets, fs.Offsets[len(fs.Offsets)-1]+len(gs.AllTimes()))
		union = append(union, gs.AllTimes()...)
	}

	fs.Grib_times = sortedUnion(union)

	mesh, err := fs.Stores[0].CreateMesh("")
	if err != nil {
		t.Fatal(err)
	}

	vars, err := fs.ScanVariables(mesh)
	if err != nil {
		t.Fatal(err)
	}

	return fs, mesh, vars
}

func sortedUnion(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		dup := false
		for _, seen := range out {
			if seen == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func TestGribGroupingAndLevels(t *testing.T) {
	gs := makeGribStore("a.grib2",
		[][2]int{{20250101, 0}, {20250101, 600}},
		[]float64{1000, 500})

	if len(gs.Groups) != 1 {
		t.Fatalf("%d groups, want 1", len(gs.Groups))
	}

	grp := gs.Groups["TMP|mb"]
	if grp == nil {
		t.Fatal("group TMP|mb missing")
	}

	if len(grp.Levels) != 2 || grp.Levels[0] != 500 || grp.Levels[1] != 1000 {
		t.Errorf("levels %v, want sorted [500, 1000]", grp.Levels)
	}
	if len(grp.Times) != 2 || grp.Times[0] >= grp.Times[1] {
		t.Errorf("times %v not sorted dedup", grp.Times)
	}

	// every (level, time) cell resolves to a message
	for li := range grp.Levels {
		for ti := range grp.Times {
			if grp.MessageAt(li, ti) < 0 {
				t.Errorf("no message at level %d time %d", li, ti)
			}
		}
	}
}

func TestGribSingleLevelNaming(t *testing.T) {
	gs := makeGribStore("a.grib2", [][2]int{{20250101, 0}}, []float64{500})

	mesh, err := gs.CreateMesh()
	if err != nil {
		t.Fatal(err)
	}

	vars, err := gs.ScanVariables(mesh, &Store{Kind: STORE_GRIB, grib: gs})
	if err != nil {
		t.Fatal(err)
	}

	// single-level groups expose the composite name verbatim
	if vars.ByName("TMP@mb=500") == nil {
		t.Fatalf("single-level name missing; have %v", vars.Names())
	}
}

func TestGribMultiLevelVariable(t *testing.T) {
	gs := makeGribStore("a.grib2",
		[][2]int{{20250101, 0}, {20250101, 600}},
		[]float64{1000, 500})

	mesh, _ := gs.CreateMesh()
	vars, err := gs.ScanVariables(mesh, &Store{Kind: STORE_GRIB, grib: gs})
	if err != nil {
		t.Fatal(err)
	}

	v := vars.ByName("TMP")
	if v == nil {
		t.Fatalf("multi-level group not named TMP; have %v", vars.Names())
	}
	if v.NTimes() != 2 || v.NDepths() != 2 {
		t.Fatalf("extents times=%d depths=%d", v.NTimes(), v.NDepths())
	}

	out := make([]float64, v.SpatialSize())
	if err := gs.ReadSlice(v, 1, 0, out); err != nil {
		t.Fatal(err)
	}
	// level index 0 is 500 mb; time index 1 is 06:00
	want := 500.0 + 6.0 + 0.0
	if out[0] != want {
		t.Errorf("slice value %v, want %v", out[0], want)
	}
}

func TestGribFilesetTotalTimes(t *testing.T) {
	tests := []struct {
		name    string
		stamps2 [][2]int
		want    int
	}{
		{"disjoint", [][2]int{{20250102, 0}, {20250102, 600}}, 4},
		{"overlapping", [][2]int{{20250101, 600}, {20250102, 0}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := makeGribStore("a.grib2",
				[][2]int{{20250101, 0}, {20250101, 600}},
				[]float64{1000, 500})
			b := makeGribStore("b.grib2", tt.stamps2, []float64{1000, 500})

			fs, _, _ := gribFileset(t, a, b)

			if got := fs.GribFilesetTotalTimes(); got != tt.want {
				t.Errorf("union total %d, want %d", got, tt.want)
			}
			if fs.NTimes() != tt.want {
				t.Errorf("NTimes %d, want %d (union supersedes offsets)", fs.NTimes(), tt.want)
			}
		})
	}
}

func TestGribUnionSliceAndHoles(t *testing.T) {
	// store a lacks the second day entirely
	a := makeGribStore("a.grib2", [][2]int{{20250101, 0}}, []float64{500})
	b := makeGribStore("b.grib2", [][2]int{{20250102, 0}}, []float64{500})

	fs, mesh, vars := gribFileset(t, a, b)
	v := vars.ByName("TMP@mb=500")
	if v == nil {
		t.Fatalf("variable missing; have %v", vars.Names())
	}

	out := make([]float64, mesh.N)

	// union index 1 resolves in store b
	if err := fs.ReadSlice(v, 1, 0, out); err != nil {
		t.Fatal(err)
	}
	if out[0] != 500.0 {
		t.Errorf("union slice value %v, want 500", out[0])
	}

	series, err := fs.ReadTimeseries(v, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Values) != 2 {
		t.Fatalf("union series length %d", len(series.Values))
	}
	for ti := range series.Values {
		if !series.Valid[ti] {
			t.Fatalf("union step %d invalid", ti)
		}
		if series.Values[ti] != 500.0+3.0 {
			t.Fatalf("union step %d = %v", ti, series.Values[ti])
		}
	}
}

func TestGribUnionAllFillWhenNoMessage(t *testing.T) {
	// two variables with disjoint time coverage: reading PRES at a
	// TMP-only union time yields fill
	const n_points = 4
	lon := []float64{0, 90, 180, -90}
	lat := []float64{0, 10, 20, 30}

	tmp := GribMessage{
		Short_name: "TMP", Type_of_level: "mb", Level: 500,
		Abs_time: gribDay(20250101, 0),
		Values:   []float32{1, 2, 3, 4}, N_points: n_points,
	}
	pres := GribMessage{
		Short_name: "PRES", Type_of_level: "surface", Level: 0,
		Abs_time: gribDay(20250102, 0),
		Values:   []float32{5, 6, 7, 8}, N_points: n_points,
	}

	a := NewGribStoreFromMessages("a.grib2", []GribMessage{tmp}, lon, lat)
	b := NewGribStoreFromMessages("b.grib2", []GribMessage{pres}, lon, lat)

	fs, mesh, vars := gribFileset(t, a, b)

	v := vars.ByName("TMP@mb=500")
	if v == nil {
		t.Fatalf("have %v", vars.Names())
	}

	out := make([]float64, mesh.N)
	// union time 1 (the PRES day) has no TMP message anywhere
	if err := fs.ReadSlice(v, 1, 0, out); err != nil {
		t.Fatal(err)
	}
	for i := range out {
		if out[i] != v.Fill_value {
			t.Fatalf("cell %d = %v, want fill", i, out[i])
		}
	}

	series, err := fs.ReadTimeseries(v, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !series.Valid[0] || series.Valid[1] {
		t.Errorf("union series validity %v, want [true, false]", series.Valid)
	}
	if series.Values[1] != v.Fill_value {
		t.Errorf("hole value %v, want fill", series.Values[1])
	}
}

func TestEstimateRangeEmpty(t *testing.T) {
	nan := float32(0)
	nan = nan / nan

	msg := GribMessage{
		Short_name: "TMP", Type_of_level: "mb", Level: 500,
		Abs_time: gribDay(20250101, 0),
		Values:   []float32{nan, nan, nan}, N_points: 3,
	}
	gs := NewGribStoreFromMessages("a.grib2", []GribMessage{msg},
		[]float64{0, 10, 20}, []float64{0, 10, 20})

	mesh, _ := gs.CreateMesh()
	vars, _ := gs.ScanVariables(mesh, &Store{Kind: STORE_GRIB, grib: gs})
	v := vars.Vars[0]

	vmin, vmax, err := gs.EstimateRange(v)
	if !errors.Is(err, ErrRangeEmpty) {
		t.Fatalf("all-missing estimate returned %v", err)
	}
	if vmin != 0.0 || vmax != 1.0 {
		t.Errorf("default range [%v, %v], want [0, 1]", vmin, vmax)
	}
}

func TestGribEstimateRange(t *testing.T) {
	gs := makeGribStore("a.grib2",
		[][2]int{{20250101, 0}, {20250101, 600}, {20250102, 0}},
		[]float64{500, 1000})

	mesh, _ := gs.CreateMesh()
	vars, _ := gs.ScanVariables(mesh, &Store{Kind: STORE_GRIB, grib: gs})
	v := vars.ByName("TMP")

	vmin, vmax, err := gs.EstimateRange(v)
	if err != nil {
		t.Fatal(err)
	}
	// depth 0 is the 500 mb level: values level + hhmm/100 + node
	if vmin != 500.0 {
		t.Errorf("min %v, want 500", vmin)
	}
	if vmax != 500.0+6.0+7.0 {
		t.Errorf("max %v, want 513", vmax)
	}
}

func TestGribParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		level float64
		tol   string
	}{
		{"500 mb", 500, "mb"},
		{"surface", 0, "surface"},
		{"2 m above ground", 2, "m_above_ground"},
		{"", 0, "surface"},
		{"mean sea level", 0, "mean_sea_level"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			level, tol := parseGribLevel(tt.in)
			if level != tt.level || tol != tt.tol {
				t.Errorf("parseGribLevel(%q) = (%v, %q), want (%v, %q)",
					tt.in, level, tol, tt.level, tt.tol)
			}
		})
	}
}
