package ushow

// VariableInfo is the JSON-facing summary of one discovered variable.
type VariableInfo struct {
	Name       string
	Long_name  string
	Units      string
	Fill_value float64
	Dims       []DimSpec
	N_times    int
	N_depths   int
	N_nodes    int
	Time_axis  []string `json:",omitempty"` // calendar rendering, GRIB unions
}

// MeshInfo summarises the mesh a dataset produced.
type MeshInfo struct {
	N_points   int
	Coord_type string
	Orig_nx    int `json:",omitempty"`
	Orig_ny    int `json:",omitempty"`
	N_elements int `json:",omitempty"`
	N_vertices int `json:",omitempty"`
}

// DatasetInfo is the overarching metadata export for a store or
// fileset: the kind, the constituent paths, the mesh summary and the
// discoverable variable table.
type DatasetInfo struct {
	Kind      string
	Uris      []string
	N_times   int
	Mesh      MeshInfo
	Variables []VariableInfo
}

// BuildDatasetInfo collates the metadata for an opened fileset.
func BuildDatasetInfo(fs *Fileset, mesh *Mesh, vars *VariableSet) DatasetInfo {
	info := DatasetInfo{
		Kind:    StoreKindNames[fs.Kind],
		Uris:    fs.Uris,
		N_times: fs.NTimes(),
		Mesh: MeshInfo{
			N_points:   mesh.N,
			Coord_type: CoordTypeNames[mesh.Coord_type],
			Orig_nx:    mesh.Orig_nx,
			Orig_ny:    mesh.Orig_ny,
			N_elements: mesh.N_elements,
			N_vertices: mesh.N_vertices,
		},
		Variables: make([]VariableInfo, 0, vars.Len()),
	}

	for _, v := range vars.Vars {
		vi := VariableInfo{
			Name:       v.Name,
			Long_name:  v.Long_name,
			Units:      v.Units,
			Fill_value: v.Fill_value,
			Dims:       v.Dims,
			N_times:    fs.NTimes(),
			N_depths:   v.NDepths(),
			N_nodes:    v.SpatialSize(),
		}

		// GRIB unions carry absolute days; render them as calendar
		// stamps for human readers
		if fs.Grib_times != nil {
			vi.Time_axis = make([]string, len(fs.Grib_times))
			for i, days := range fs.Grib_times {
				vi.Time_axis[i] = FormatAbsoluteDays(days)
			}
		}

		info.Variables = append(info.Variables, vi)
	}

	return info
}
