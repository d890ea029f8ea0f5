package ushow

import (
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"

	"github.com/ctessum/cdf"
	stgpsr "github.com/yuin/stagparser"
)

// NetcdfStore wraps one open classic-format NetCDF file.
type NetcdfStore struct {
	Uri string
	fid *os.File
	f   *cdf.File
}

// OpenNetcdf opens a NetCDF file for reading.
func OpenNetcdf(uri string) (*NetcdfStore, error) {
	fid, err := os.Open(uri)
	if err != nil {
		return nil, errors.Join(ErrOpenStore, err)
	}

	f, err := cdf.Open(fid)
	if err != nil {
		_ = fid.Close()
		return nil, errors.Join(ErrOpenStore, err)
	}

	return &NetcdfStore{Uri: uri, fid: fid, f: f}, nil
}

// Close releases the file handle.
func (nc *NetcdfStore) Close() {
	if nc.fid != nil {
		_ = nc.fid.Close()
		nc.fid = nil
	}
}

// hasVariable reports whether the header carries the named variable.
func (nc *NetcdfStore) hasVariable(name string) bool {
	for _, v := range nc.f.Header.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

// attrString fetches a string attribute, empty when absent.
func (nc *NetcdfStore) attrString(v, name string) string {
	defer func() { _ = recover() }()

	val := nc.f.Header.GetAttribute(v, name)
	if val == nil {
		return ""
	}

	switch a := val.(type) {
	case string:
		return a
	case []byte:
		return string(a)
	}
	return ""
}

// attrFloat fetches a numeric attribute, returning ok=false when the
// attribute is absent or not numeric.
func (nc *NetcdfStore) attrFloat(v, name string) (float64, bool) {
	defer func() { _ = recover() }()

	val := nc.f.Header.GetAttribute(v, name)
	if val == nil {
		return 0, false
	}

	switch a := val.(type) {
	case []float64:
		if len(a) > 0 {
			return a[0], true
		}
	case []float32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int16:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int8:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	}
	return 0, false
}

// ncVarAttrs is the CF attribute harvest for a variable descriptor.
// The cf tags drive the lookup: attr names the attribute, alt an
// alternative spelling tried when the first is absent.
type ncVarAttrs struct {
	Long_name    string  `cf:"attr=long_name"`
	Units        string  `cf:"attr=units"`
	Fill_value   float64 `cf:"attr=_FillValue,alt=missing_value"`
	Scale_factor float64 `cf:"attr=scale_factor"`
	Add_offset   float64 `cf:"attr=add_offset"`
}

// harvestAttrs fills an ncVarAttrs from the store using the struct's
// cf tags, the same tag-driven walk the array schema builders use.
func (nc *NetcdfStore) harvestAttrs(v string) ncVarAttrs {
	attrs := ncVarAttrs{
		Fill_value:   DEFAULT_FILL_VALUE,
		Scale_factor: 1.0,
		Add_offset:   0.0,
	}

	defs, err := stgpsr.ParseStruct(&attrs, "cf")
	if err != nil {
		return attrs
	}

	values := reflect.ValueOf(&attrs).Elem()
	types := values.Type()

	for i := 0; i < values.NumField(); i++ {
		field_defs := make(map[string]stgpsr.Definition)
		for _, def := range defs[types.Field(i).Name] {
			field_defs[def.Name()] = def
		}

		names := make([]string, 0, 2)
		if def, ok := field_defs["attr"]; ok {
			if name, ok := def.Attribute("attr"); ok {
				names = append(names, fmt.Sprint(name))
			}
		}
		if def, ok := field_defs["alt"]; ok {
			if name, ok := def.Attribute("alt"); ok {
				names = append(names, fmt.Sprint(name))
			}
		}

		field := values.Field(i)
		for _, name := range names {
			if field.Kind() == reflect.String {
				if s := nc.attrString(v, name); s != "" {
					field.SetString(s)
					break
				}
			} else {
				if f, ok := nc.attrFloat(v, name); ok {
					field.SetFloat(f)
					break
				}
			}
		}
	}

	return attrs
}

// dimRole classifies a dimension as time, depth or neither. Name match
// wins; otherwise the attributes of a same-named coordinate variable
// are inspected: axis starting T/Z, standard_name, units containing
// "since", positive up/down. The fallback order is deliberate and
// matches the original viewer; ambiguous names like a bare "lev"
// classify as depth.
func (nc *NetcdfStore) dimRole(dim string) (is_time, is_depth bool) {
	lowered := strings.ToLower(dim)

	if TimeDimNames[lowered] {
		return true, false
	}
	if DepthDimNames[lowered] {
		return false, true
	}

	if !nc.hasVariable(dim) {
		return false, false
	}

	axis := strings.ToUpper(nc.attrString(dim, "axis"))
	if strings.HasPrefix(axis, "T") {
		return true, false
	}
	if strings.HasPrefix(axis, "Z") {
		return false, true
	}

	std := strings.ToLower(nc.attrString(dim, "standard_name"))
	if std == "time" {
		return true, false
	}
	if std == "depth" || std == "height" || std == "air_pressure" {
		return false, true
	}

	if strings.Contains(strings.ToLower(nc.attrString(dim, "units")), "since") {
		return true, false
	}

	positive := strings.ToLower(nc.attrString(dim, "positive"))
	if positive == "up" || positive == "down" {
		return false, true
	}

	return false, false
}

// readAll reads a whole variable into float64.
func (nc *NetcdfStore) readAll(v string) ([]float64, error) {
	return nc.readRange(v, nil, nil, -1)
}

// readRange reads a linear range of a variable as float64. begin and
// end are index coordinates marking the flattened range [begin, end);
// nil reads the whole variable. n is the expected element count, or
// -1 to take whatever arrives.
func (nc *NetcdfStore) readRange(v string, begin, end []int, n int) ([]float64, error) {
	if !nc.hasVariable(v) {
		return nil, errors.Join(ErrNoVariable, fmt.Errorf("variable %q in %s", v, nc.Uri))
	}

	r := nc.f.Reader(v, begin, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, errors.Join(ErrDecodeStore, err)
	}

	return numericToFloat64(buf)
}

// numericToFloat64 widens whichever numeric slice the reader produced.
func numericToFloat64(buf any) ([]float64, error) {
	switch data := buf.(type) {
	case []float64:
		return data, nil
	case []float32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []int8:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	}
	return nil, errors.Join(ErrDtype, fmt.Errorf("buffer type %T", buf))
}

// coordinate variable candidates in probe order
var ncLonNames = []string{"lon", "longitude", "nav_lon", "x"}
var ncLatNames = []string{"lat", "latitude", "nav_lat", "y"}
var ncElementNames = []string{"elem", "elements", "face_nodes", "tri"}

func (nc *NetcdfStore) findCoordVar(candidates []string) (string, []int) {
	for _, name := range candidates {
		if nc.hasVariable(name) {
			return name, nc.f.Header.Lengths(name)
		}
	}
	return "", nil
}

// CreateMesh builds a Mesh from the store's coordinate variables.
// 1-D lat/lon with distinct sizes give a structured mesh, 2-D arrays a
// curvilinear one, and same-sized 1-D arrays an unstructured point
// cloud. For unstructured data a separate mesh file may supply the
// coordinates instead; pass an empty string otherwise.
func (nc *NetcdfStore) CreateMesh(sep_mesh_uri string) (*Mesh, error) {
	src := nc
	if sep_mesh_uri != "" {
		sep, err := OpenNetcdf(sep_mesh_uri)
		if err != nil {
			return nil, err
		}
		defer sep.Close()
		src = sep
	}

	lon_name, lon_dims := src.findCoordVar(ncLonNames)
	lat_name, lat_dims := src.findCoordVar(ncLatNames)
	if lon_name == "" || lat_name == "" {
		return nil, errors.Join(ErrInvalidMesh,
			fmt.Errorf("no lon/lat coordinates in %s", src.Uri))
	}

	lon, err := src.readAll(lon_name)
	if err != nil {
		return nil, errors.Join(ErrInvalidMesh, err)
	}
	lat, err := src.readAll(lat_name)
	if err != nil {
		return nil, errors.Join(ErrInvalidMesh, err)
	}

	var mesh *Mesh

	switch {
	case len(lon_dims) == 2 && len(lat_dims) == 2:
		ny := lon_dims[0]
		nx := lon_dims[1]
		mesh, err = NewCurvilinearMesh(lon, lat, nx, ny)
	case len(lon_dims) == 1 && len(lat_dims) == 1 && len(lon) != len(lat):
		mesh, err = NewStructuredMesh(lon, lat)
	case len(lon_dims) == 1 && len(lat_dims) == 1:
		mesh, err = NewMesh(lon, lat, COORD_UNSTRUCTURED_1D)
	default:
		return nil, errors.Join(ErrInvalidMesh,
			fmt.Errorf("coordinate ranks lon=%d lat=%d", len(lon_dims), len(lat_dims)))
	}
	if err != nil {
		return nil, err
	}

	src.attachElements(mesh)

	return mesh, nil
}

// attachElements pulls an element connectivity table when one exists.
// Tables arrive either (n_elements, n_vertices) or transposed, and may
// be one-based; both are normalised here. Absence is not an error,
// polygon mode is simply unavailable.
func (nc *NetcdfStore) attachElements(mesh *Mesh) {
	for _, name := range ncElementNames {
		if !nc.hasVariable(name) {
			continue
		}

		dims := nc.f.Header.Lengths(name)
		if len(dims) != 2 {
			continue
		}

		data, err := nc.readAll(name)
		if err != nil {
			continue
		}

		var n_elem, n_vert int
		transposed := false
		if dims[1] == 3 || dims[1] == 4 {
			n_elem, n_vert = dims[0], dims[1]
		} else if dims[0] == 3 || dims[0] == 4 {
			n_elem, n_vert = dims[1], dims[0]
			transposed = true
		} else {
			continue
		}

		elements := make([]int32, n_elem*n_vert)
		min_idx := int32(math.MaxInt32)
		max_idx := int32(0)
		for e := 0; e < n_elem; e++ {
			for k := 0; k < n_vert; k++ {
				var raw float64
				if transposed {
					raw = data[k*n_elem+e]
				} else {
					raw = data[e*n_vert+k]
				}
				idx := int32(raw)
				elements[e*n_vert+k] = idx
				if idx < min_idx {
					min_idx = idx
				}
				if idx > max_idx {
					max_idx = idx
				}
			}
		}

		// one-based tables index [1, n]
		if min_idx == 1 && int(max_idx) == mesh.N {
			for i := range elements {
				elements[i]--
			}
		}

		if err := mesh.SetElements(elements, n_vert); err == nil {
			return
		}
	}
}

// spatialDims locates the spatial role for a candidate variable:
// a nod*-style dimension name, a dimension sized like the mesh, or for
// structured meshes the lat/lon dimension pair whose product matches.
func spatialDims(dims []DimSpec, mesh *Mesh) (spatial, lat_dim, lon_dim int, spatial_2d bool) {
	spatial, lat_dim, lon_dim = -1, -1, -1

	for i, d := range dims {
		if NodeDimNames[strings.ToLower(d.Name)] {
			return i, -1, -1, false
		}
	}

	for i, d := range dims {
		if d.Size == mesh.N {
			return i, -1, -1, false
		}
	}

	if mesh.Orig_nx > 0 && mesh.Orig_ny > 0 {
		for i, d := range dims {
			if d.Size == mesh.Orig_ny && lat_dim < 0 {
				lat_dim = i
			} else if d.Size == mesh.Orig_nx && lon_dim < 0 {
				lon_dim = i
			}
		}
		if lat_dim >= 0 && lon_dim >= 0 &&
			dims[lat_dim].Size*dims[lon_dim].Size == mesh.N {
			return -1, lat_dim, lon_dim, true
		}
	}

	return -1, -1, -1, false
}

// ScanVariables enumerates the displayable variables: at least one
// dimension, not itself a coordinate, and a locatable spatial extent.
func (nc *NetcdfStore) ScanVariables(mesh *Mesh, store *Store) (*VariableSet, error) {
	set := NewVariableSet()

	for _, name := range nc.f.Header.Variables() {
		if CoordinateNames[strings.ToLower(name)] {
			continue
		}

		dim_names := nc.f.Header.Dimensions(name)
		lengths := nc.f.Header.Lengths(name)
		if len(dim_names) == 0 || len(dim_names) != len(lengths) {
			continue
		}

		dims := make([]DimSpec, len(dim_names))
		for i := range dim_names {
			dims[i] = DimSpec{Name: dim_names[i], Size: lengths[i]}
		}

		spatial, lat_dim, lon_dim, spatial_2d := spatialDims(dims, mesh)
		if spatial < 0 && !spatial_2d {
			continue
		}

		time_dim := -1
		depth_dim := -1
		for i, d := range dims {
			if i == spatial || i == lat_dim || i == lon_dim {
				continue
			}
			is_time, is_depth := nc.dimRole(d.Name)
			if is_time && time_dim < 0 {
				time_dim = i
			} else if is_depth && depth_dim < 0 {
				depth_dim = i
			}
		}

		attrs := nc.harvestAttrs(name)

		set.Add(&Variable{
			Name:         name,
			Long_name:    attrs.Long_name,
			Units:        attrs.Units,
			Fill_value:   attrs.Fill_value,
			Scale_factor: attrs.Scale_factor,
			Add_offset:   attrs.Add_offset,
			Dims:         dims,
			Time_dim:     time_dim,
			Depth_dim:    depth_dim,
			Spatial_dim:  spatial,
			Spatial_2d:   spatial_2d,
			Lat_dim:      lat_dim,
			Lon_dim:      lon_dim,
			Store:        store,
		})
	}

	return set, nil
}

// sliceContiguous reports whether the (t, d) snapshot occupies one
// linear range, ie every scanned dimension precedes every spatial one
// in the file's dimension order. CF writers lay data out this way.
func sliceContiguous(v *Variable) bool {
	last_scanned := -1
	if v.Time_dim > last_scanned {
		last_scanned = v.Time_dim
	}
	if v.Depth_dim > last_scanned {
		last_scanned = v.Depth_dim
	}

	first_spatial := len(v.Dims)
	for _, dim := range []int{v.Spatial_dim, v.Lat_dim, v.Lon_dim} {
		if dim >= 0 && dim < first_spatial {
			first_spatial = dim
		}
	}

	return last_scanned < first_spatial
}

// sliceBounds assembles the coordinate pair marking the linear range
// of one contiguous (time, depth) snapshot.
func sliceBounds(v *Variable, t, d int) (begin, end []int) {
	begin = make([]int, len(v.Dims))
	for i := range begin {
		switch i {
		case v.Time_dim:
			begin[i] = t
		case v.Depth_dim:
			begin[i] = d
		}
	}

	end = make([]int, len(begin))
	copy(end, begin)

	last_scanned := -1
	if v.Time_dim > last_scanned {
		last_scanned = v.Time_dim
	}
	if v.Depth_dim > last_scanned {
		last_scanned = v.Depth_dim
	}

	if last_scanned < 0 {
		// no scanned dims at all: the whole variable is the slice
		return nil, nil
	}

	end[last_scanned]++

	return begin, end
}

// dimStrides computes row-major strides over a variable's dimensions.
func dimStrides(dims []DimSpec) []int {
	strides := make([]int, len(dims))
	stride := 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= dims[i].Size
	}
	return strides
}

// ReadSlice reads one 2-D spatial snapshot at (t, d) into out, which
// must hold SpatialSize values. scale_factor and add_offset apply to
// every value that is not the fill value.
func (nc *NetcdfStore) ReadSlice(v *Variable, t, d int, out []float64) error {
	if t < 0 || t >= v.NTimes() || d < 0 || d >= v.NDepths() {
		return errors.Join(ErrOutOfRange,
			fmt.Errorf("slice (%d, %d) of %s", t, d, v.Name))
	}

	n := v.SpatialSize()
	if len(out) < n {
		return errors.Join(ErrOutOfRange,
			fmt.Errorf("slice buffer %d but spatial size %d", len(out), n))
	}

	if !sliceContiguous(v) {
		// unusual layouts (spatial dims not trailing) read the whole
		// variable and stride out the snapshot in node order
		data, err := nc.extractSlice(v, t, d)
		if err != nil {
			return err
		}
		copy(out, data[:n])
		unpackValues(out[:n], v)
		return nil
	}

	begin, end := sliceBounds(v, t, d)
	data, err := nc.readRange(v.Name, begin, end, n)
	if err != nil {
		return err
	}
	if len(data) < n {
		return errors.Join(ErrDecodeStore,
			fmt.Errorf("short slice read %d of %d", len(data), n))
	}

	// structured files that order the slab (lon, lat) need a transpose
	// so that node_index = row*nx + col holds
	if v.Spatial_2d && v.Lon_dim < v.Lat_dim {
		ny := v.Dims[v.Lat_dim].Size
		nx := v.Dims[v.Lon_dim].Size
		for col := 0; col < nx; col++ {
			for row := 0; row < ny; row++ {
				out[row*nx+col] = data[col*ny+row]
			}
		}
	} else {
		copy(out, data[:n])
	}

	unpackValues(out[:n], v)

	return nil
}

// extractSlice reads the whole variable and strides out one snapshot.
// Only layouts whose spatial dimensions are not the fastest varying
// land here.
func (nc *NetcdfStore) extractSlice(v *Variable, t, d int) ([]float64, error) {
	all, err := nc.readAll(v.Name)
	if err != nil {
		return nil, err
	}

	strides := dimStrides(v.Dims)
	base := 0
	if v.Time_dim >= 0 {
		base += t * strides[v.Time_dim]
	}
	if v.Depth_dim >= 0 {
		base += d * strides[v.Depth_dim]
	}

	out := make([]float64, v.SpatialSize())

	if v.Spatial_2d {
		nx := v.Dims[v.Lon_dim].Size
		ny := v.Dims[v.Lat_dim].Size
		for row := 0; row < ny; row++ {
			for col := 0; col < nx; col++ {
				off := base + row*strides[v.Lat_dim] + col*strides[v.Lon_dim]
				if off < len(all) {
					out[row*nx+col] = all[off]
				}
			}
		}
		return out, nil
	}

	for node := range out {
		off := base + node*strides[v.Spatial_dim]
		if off < len(all) {
			out[node] = all[off]
		}
	}

	return out, nil
}

// unpackValues applies scale_factor / add_offset in place, leaving
// fill values untouched.
func unpackValues(data []float64, v *Variable) {
	if v.Scale_factor == 1.0 && v.Add_offset == 0.0 {
		return
	}
	for i, val := range data {
		if ValueMissing(val, v.Fill_value) {
			continue
		}
		data[i] = val*v.Scale_factor + v.Add_offset
	}
}

// EstimateRange samples up to three evenly spaced times at depth 0 and
// returns the observed min/max. With no valid samples the default
// [0, 1] comes back along with ErrRangeEmpty.
func (nc *NetcdfStore) EstimateRange(v *Variable) (float64, float64, error) {
	return estimateRangeSampled(v, func(t, d int, out []float64) error {
		return nc.ReadSlice(v, t, d, out)
	})
}

// DimInfo lists the scannable dimensions (time, depth) with their
// coordinate vectors when a same-named coordinate variable exists.
func (nc *NetcdfStore) DimInfo(v *Variable) []DimInfo {
	infos := make([]DimInfo, 0, 2)

	for _, role := range []int{v.Time_dim, v.Depth_dim} {
		if role < 0 {
			continue
		}
		dim := v.Dims[role]

		info := DimInfo{
			Name: dim.Name,
			Size: dim.Size,
		}

		if nc.hasVariable(dim.Name) {
			info.Units = nc.attrString(dim.Name, "units")
			if values, err := nc.readAll(dim.Name); err == nil && len(values) > 0 {
				info.Values = values
				info.Min = values[0]
				info.Max = values[0]
				for _, val := range values {
					if val < info.Min {
						info.Min = val
					}
					if val > info.Max {
						info.Max = val
					}
				}
			}
		}

		infos = append(infos, info)
	}

	return infos
}

// ReadTimeseries reads one node across all times at a fixed depth.
// Every non-time dimension is pinned; structured meshes decompose the
// node index into its lat/lon grid position.
func (nc *NetcdfStore) ReadTimeseries(v *Variable, node, d int) (*TimeseriesResult, error) {
	if node < 0 || node >= v.SpatialSize() {
		return nil, errors.Join(ErrOutOfRange, fmt.Errorf("node %d", node))
	}

	n_times := v.NTimes()

	result := &TimeseriesResult{
		Times:  make([]float64, n_times),
		Values: make([]float64, n_times),
		Valid:  make([]bool, n_times),
	}

	// coordinate vector, defaulting to the step index
	for t := 0; t < n_times; t++ {
		result.Times[t] = float64(t)
	}
	if v.Time_dim >= 0 {
		time_name := v.Dims[v.Time_dim].Name
		if nc.hasVariable(time_name) {
			if values, err := nc.readAll(time_name); err == nil && len(values) >= n_times {
				copy(result.Times, values[:n_times])
			}
		}
	}

	rank := len(v.Dims)
	begin := make([]int, rank)
	end := make([]int, rank)

	var row, col int
	if v.Spatial_2d {
		nx := v.Dims[v.Lon_dim].Size
		row = node / nx
		col = node % nx
	}

	for t := 0; t < n_times; t++ {
		// pin every dimension to one coordinate, then advance the last
		// axis by one: a single-element linear range
		for i := range v.Dims {
			switch i {
			case v.Time_dim:
				begin[i] = t
			case v.Depth_dim:
				begin[i] = d
			case v.Spatial_dim:
				begin[i] = node
			case v.Lat_dim:
				begin[i] = row
			case v.Lon_dim:
				begin[i] = col
			default:
				begin[i] = 0
			}
		}
		copy(end, begin)
		end[rank-1]++

		data, err := nc.readRange(v.Name, begin, end, 1)
		if err != nil || len(data) == 0 {
			result.Values[t] = v.Fill_value
			continue
		}

		val := data[0]
		if !ValueMissing(val, v.Fill_value) {
			val = val*v.Scale_factor + v.Add_offset
			result.Values[t] = val
			result.Valid[t] = true
		} else {
			result.Values[t] = v.Fill_value
		}
	}

	return result, nil
}
