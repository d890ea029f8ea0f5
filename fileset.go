package ushow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Fileset composes K stores of one kind into a single virtual
// variable whose time axis is the concatenation of the per-store
// axes. Stores are ordered by filename ascending; a prefix sum over
// the local time counts maps virtual time indices back to
// (store, local_time). GRIB filesets additionally carry the sorted
// deduplicated union of message times, which supersedes the offsets
// as the public time axis.
type Fileset struct {
	Kind    StoreKind
	Uris    []string
	Stores  []*Store
	Offsets []int // len K+1

	Grib_times []float64 // union axis, GRIB only

	// lazy per-store variable scans; store 0 is scanned eagerly by the
	// caller, the rest on first demand. Scan failures are tolerated,
	// the affected steps read as fill.
	mesh    *Mesh
	scanned []bool
	varsets []*VariableSet
}

// OpenFileset opens every path and assembles the virtual time axis.
// All paths must be of one kind; the kind is detected from the first.
func OpenFileset(uris []string) (*Fileset, error) {
	if len(uris) == 0 {
		return nil, errors.Join(ErrOpenStore, errors.New("empty fileset"))
	}

	sorted := make([]string, len(uris))
	copy(sorted, uris)
	sort.Strings(sorted)

	kind, err := DetectStoreKind(sorted[0])
	if err != nil {
		return nil, err
	}

	fs := &Fileset{
		Kind:    kind,
		Uris:    sorted,
		Stores:  make([]*Store, 0, len(sorted)),
		Offsets: make([]int, 1, len(sorted)+1),
	}

	for _, uri := range sorted {
		store, err := OpenStoreKind(uri, kind)
		if err != nil {
			fs.Close()
			return nil, err
		}
		fs.Stores = append(fs.Stores, store)
		fs.Offsets = append(fs.Offsets, fs.Offsets[len(fs.Offsets)-1]+localTimeCount(store))
	}

	fs.scanned = make([]bool, len(fs.Stores))
	fs.varsets = make([]*VariableSet, len(fs.Stores))

	if kind == STORE_GRIB {
		union := make([]float64, 0)
		for _, store := range fs.Stores {
			union = append(union, store.Grib().AllTimes()...)
		}
		union = lo.Uniq(union)
		sort.Float64s(union)
		fs.Grib_times = union
	}

	return fs, nil
}

// Close closes every constituent store.
func (fs *Fileset) Close() {
	for _, store := range fs.Stores {
		store.Close()
	}
}

// localTimeCount is the store-level time extent used for the offsets
// prefix sum. Stores without a recognisable time axis count as one.
func localTimeCount(store *Store) int {
	switch store.Kind {
	case STORE_NETCDF:
		for name := range TimeDimNames {
			if store.nc.hasVariable(name) {
				lengths := store.nc.f.Header.Lengths(name)
				if len(lengths) == 1 && lengths[0] > 0 {
					return lengths[0]
				}
			}
		}
	case STORE_ZARR:
		for name := range TimeDimNames {
			if arr, ok := store.zarr.Arrays[name]; ok && len(arr.Shape) == 1 {
				return arr.Shape[0]
			}
		}
	case STORE_GRIB:
		return len(store.grib.AllTimes())
	}
	return 1
}

// NTimes is the public virtual time count: the GRIB union length when
// present, the offsets total otherwise.
func (fs *Fileset) NTimes() int {
	if fs.Grib_times != nil {
		return len(fs.Grib_times)
	}
	return fs.Offsets[len(fs.Offsets)-1]
}

// GribFilesetTotalTimes is the union axis length, 0 for non-GRIB
// filesets.
func (fs *Fileset) GribFilesetTotalTimes() int {
	return len(fs.Grib_times)
}

// VirtualToLocal maps a virtual time index to (store, local_time) by
// binary search on the offsets.
func (fs *Fileset) VirtualToLocal(virtual int) (store_idx, local_time int, err error) {
	total := fs.Offsets[len(fs.Offsets)-1]
	if virtual < 0 || virtual >= total {
		return 0, 0, errors.Join(ErrOutOfRange,
			fmt.Errorf("virtual time %d of %d", virtual, total))
	}

	// first k with offsets[k+1] > virtual
	store_idx = sort.Search(len(fs.Stores), func(k int) bool {
		return fs.Offsets[k+1] > virtual
	})

	return store_idx, virtual - fs.Offsets[store_idx], nil
}

// AttachMesh supplies the mesh used by the lazy per-store scans.
// Scans of the non-first stores need it to classify variables.
func (fs *Fileset) AttachMesh(mesh *Mesh) {
	fs.mesh = mesh
}

// varInStore locates a variable by name in store k, lazily scanning
// the store on first demand. The scan's varid is only valid for the
// store it came from, so each store resolves the name itself. A nil
// return means the store lacks the variable or its scan failed.
func (fs *Fileset) varInStore(k int, name string) *Variable {
	if !fs.scanned[k] {
		fs.scanned[k] = true
		if fs.mesh != nil {
			set, err := fs.Stores[k].ScanVariables(fs.mesh)
			if err == nil {
				fs.varsets[k] = set
			}
		}
	}

	if fs.varsets[k] == nil {
		return nil
	}
	return fs.varsets[k].ByName(name)
}

// ScanVariables scans store 0 eagerly; its variable set is the
// fileset's public one.
func (fs *Fileset) ScanVariables(mesh *Mesh) (*VariableSet, error) {
	fs.AttachMesh(mesh)

	set, err := fs.Stores[0].ScanVariables(mesh)
	if err != nil {
		return nil, err
	}

	fs.scanned[0] = true
	fs.varsets[0] = set

	return set, nil
}

// ReadSlice reads the snapshot at a virtual time. Stores missing the
// variable contribute a fill slice rather than failing.
func (fs *Fileset) ReadSlice(v *Variable, virtual_time, d int, out []float64) error {
	if fs.Grib_times != nil {
		return fs.readGribUnionSlice(v, virtual_time, d, out)
	}

	store_idx, local_time, err := fs.VirtualToLocal(virtual_time)
	if err != nil {
		return err
	}

	local := fs.varInStore(store_idx, v.Name)
	if local == nil {
		fillSlice(out[:v.SpatialSize()], v.Fill_value)
		return nil
	}

	return fs.Stores[store_idx].ReadSlice(local, local_time, d, out)
}

// readGribUnionSlice resolves the union time against each store in
// order; the first store holding a matching message serves the read.
// No match anywhere leaves the slice all fill.
func (fs *Fileset) readGribUnionSlice(v *Variable, virtual_time, d int, out []float64) error {
	if virtual_time < 0 || virtual_time >= len(fs.Grib_times) {
		return errors.Join(ErrOutOfRange,
			fmt.Errorf("virtual time %d of %d", virtual_time, len(fs.Grib_times)))
	}

	abs_time := fs.Grib_times[virtual_time]

	for k := range fs.Stores {
		local := fs.varInStore(k, v.Name)
		if local == nil {
			continue
		}

		matched, err := fs.Stores[k].Grib().ReadSliceAtTime(local, abs_time, d, out)
		if err != nil {
			return err
		}
		if matched {
			return nil
		}
	}

	fillSlice(out[:v.SpatialSize()], v.Fill_value)
	return nil
}

// EstimateRange delegates to store 0.
func (fs *Fileset) EstimateRange(v *Variable) (float64, float64, error) {
	return fs.Stores[0].EstimateRange(v)
}

// refTimeUnits is the time units string read from store 0, the
// reference every other store's coordinates normalise to.
func (fs *Fileset) refTimeUnits(v *Variable) string {
	for _, info := range fs.Stores[0].DimInfo(v) {
		if fs.isTimeDim(v, info.Name) {
			return info.Units
		}
	}
	return ""
}

func (fs *Fileset) isTimeDim(v *Variable, dim_name string) bool {
	return v.Time_dim >= 0 && v.Dims[v.Time_dim].Name == dim_name
}

// DimInfo merges the per-store dimension info: the time dimension
// grows to the virtual total and its coordinate vector becomes the
// concatenation of the per-store vectors, each normalised to store-0
// units. Depth comes from store 0 alone. GRIB union filesets report
// the union vector in absolute days instead.
func (fs *Fileset) DimInfo(v *Variable) []DimInfo {
	infos := fs.Stores[0].DimInfo(v)

	for i := range infos {
		if !fs.isTimeDim(v, infos[i].Name) {
			continue
		}

		if fs.Grib_times != nil {
			infos[i].Size = len(fs.Grib_times)
			infos[i].Units = GribTimeUnits
			infos[i].Values = fs.Grib_times
			if len(fs.Grib_times) > 0 {
				infos[i].Min = fs.Grib_times[0]
				infos[i].Max = fs.Grib_times[len(fs.Grib_times)-1]
			}
			continue
		}

		infos[i].Size = fs.NTimes()
		infos[i].Values = fs.unifiedTimeValues(v)
		if len(infos[i].Values) > 0 {
			infos[i].Min = infos[i].Values[0]
			infos[i].Max = infos[i].Values[0]
			for _, val := range infos[i].Values {
				if val < infos[i].Min {
					infos[i].Min = val
				}
				if val > infos[i].Max {
					infos[i].Max = val
				}
			}
		}
	}

	return infos
}

// unifiedTimeValues concatenates the per-store time coordinates in
// store order, converting each store's values into store-0 units. A
// store without a coordinate vector contributes its local step
// indices unconverted; the normalisation is best effort throughout.
func (fs *Fileset) unifiedTimeValues(v *Variable) []float64 {
	ref_units := fs.refTimeUnits(v)
	unified := make([]float64, 0, fs.NTimes())

	for k := range fs.Stores {
		count := fs.Offsets[k+1] - fs.Offsets[k]

		local := fs.varInStore(k, v.Name)
		if local == nil {
			for i := 0; i < count; i++ {
				unified = append(unified, float64(i))
			}
			continue
		}

		var values []float64
		var units string
		for _, info := range fs.Stores[k].DimInfo(local) {
			if fs.isTimeDim(local, info.Name) {
				values = info.Values
				units = info.Units
				break
			}
		}

		for i := 0; i < count; i++ {
			if i < len(values) {
				unified = append(unified, ConvertTimeUnits(values[i], units, ref_units))
			} else {
				unified = append(unified, float64(i))
			}
		}
	}

	return unified
}

// ReadTimeseries concatenates the per-store vectors for one node,
// normalising each store's time coordinates to store-0 units. In GRIB
// union mode the union vector drives the read: for each union time
// the first matching store is queried, and holes come back as fill
// with valid = 0.
func (fs *Fileset) ReadTimeseries(v *Variable, node, d int) (*TimeseriesResult, error) {
	if fs.Grib_times != nil {
		return fs.readGribUnionTimeseries(v, node, d)
	}

	ref_units := fs.refTimeUnits(v)

	total := fs.NTimes()
	result := &TimeseriesResult{
		Times:  make([]float64, 0, total),
		Values: make([]float64, 0, total),
		Valid:  make([]bool, 0, total),
	}

	for k := range fs.Stores {
		count := fs.Offsets[k+1] - fs.Offsets[k]

		local := fs.varInStore(k, v.Name)
		if local == nil {
			for i := 0; i < count; i++ {
				result.Times = append(result.Times, float64(i))
				result.Values = append(result.Values, v.Fill_value)
				result.Valid = append(result.Valid, false)
			}
			continue
		}

		series, err := fs.Stores[k].ReadTimeseries(local, node, d)
		if err != nil {
			for i := 0; i < count; i++ {
				result.Times = append(result.Times, float64(i))
				result.Values = append(result.Values, v.Fill_value)
				result.Valid = append(result.Valid, false)
			}
			continue
		}

		var units string
		for _, info := range fs.Stores[k].DimInfo(local) {
			if fs.isTimeDim(local, info.Name) {
				units = info.Units
				break
			}
		}

		for i := 0; i < count; i++ {
			if i < len(series.Values) {
				result.Times = append(result.Times, ConvertTimeUnits(series.Times[i], units, ref_units))
				result.Values = append(result.Values, series.Values[i])
				result.Valid = append(result.Valid, series.Valid[i])
			} else {
				result.Times = append(result.Times, float64(i))
				result.Values = append(result.Values, v.Fill_value)
				result.Valid = append(result.Valid, false)
			}
		}
	}

	return result, nil
}

func (fs *Fileset) readGribUnionTimeseries(v *Variable, node, d int) (*TimeseriesResult, error) {
	result := &TimeseriesResult{
		Times:  make([]float64, len(fs.Grib_times)),
		Values: make([]float64, len(fs.Grib_times)),
		Valid:  make([]bool, len(fs.Grib_times)),
	}
	copy(result.Times, fs.Grib_times)

	for t, abs_time := range fs.Grib_times {
		result.Values[t] = v.Fill_value

		for k := range fs.Stores {
			local := fs.varInStore(k, v.Name)
			if local == nil || local.grib == nil {
				continue
			}

			msg_idx := local.grib.MessageAtTime(d, abs_time)
			if msg_idx < 0 {
				continue
			}

			values := fs.Stores[k].Grib().Messages[msg_idx].Values
			if node >= len(values) {
				continue
			}

			val := float64(values[node])
			if ValueMissing(val, v.Fill_value) {
				continue
			}

			result.Values[t] = val
			result.Valid[t] = true
			break
		}
	}

	return result, nil
}
