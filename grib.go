package ushow

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sdifrance/gogrib2"
)

// GribMessage is the indexed form of one decoded GRIB message: the
// grouping key attributes plus the field values themselves. gogrib2
// decodes a whole file in one pass, so the read plan keeps the decoded
// message rather than a byte offset; the lookup contract, find the
// message matching (level, time), is unchanged.
type GribMessage struct {
	Short_name    string
	Type_of_level string
	Level         float64
	Abs_time      float64 // days since 1970-01-01
	Values        []float32
	N_points      int
}

type gribKey struct {
	level_idx int
	time_idx  int
}

// GribGroup collects the messages sharing (shortName, typeOfLevel).
// Levels and Times are the sorted deduplicated unions of the group's
// message attributes; message maps a (level, time) position to the
// store's message table.
type GribGroup struct {
	Short_name    string
	Type_of_level string
	Levels        []float64
	Times         []float64

	message map[gribKey]int
}

// MessageAt returns the message table index for (level_idx, time_idx),
// or -1 when no message carries that pair.
func (g *GribGroup) MessageAt(level_idx, time_idx int) int {
	idx, ok := g.message[gribKey{level_idx, time_idx}]
	if !ok {
		return -1
	}
	return idx
}

// MessageAtTime returns the message index for an absolute time on the
// given level, or -1.
func (g *GribGroup) MessageAtTime(level_idx int, abs_time float64) int {
	time_idx := sort.SearchFloat64s(g.Times, abs_time)
	if time_idx >= len(g.Times) || g.Times[time_idx] != abs_time {
		return -1
	}
	return g.MessageAt(level_idx, time_idx)
}

// GribStore is one opened GRIB file: the message table, the grid
// coordinates shared by its messages, and the (shortName, typeOfLevel)
// groups that become variables.
type GribStore struct {
	Uri      string
	Messages []GribMessage
	Lon      []float64
	Lat      []float64

	Groups      map[string]*GribGroup
	Group_order []string
}

// TimeFromCivil converts a wall-clock instant to days since
// 1970-01-01 using the civil-calendar formula.
func TimeFromCivil(t time.Time) float64 {
	days := CivilToDays(t.Year(), int(t.Month()), t.Day())
	seconds := float64(t.Hour())*3600.0 + float64(t.Minute())*60.0 + float64(t.Second())
	return float64(days) + seconds/86400.0
}

// parseGribLevel splits a wgrib2-style level description into a level
// value and a type-of-level token, eg "500 mb" -> (500, "mb") and
// "2 m above ground" -> (2, "m_above_ground"). Descriptions with no
// leading number keep level 0, eg "surface" -> (0, "surface").
func parseGribLevel(level string) (float64, string) {
	fields := strings.Fields(strings.TrimSpace(level))
	if len(fields) == 0 {
		return 0, "surface"
	}

	if value, err := strconv.ParseFloat(fields[0], 64); err == nil && len(fields) > 1 {
		return value, strings.Join(fields[1:], "_")
	}

	return 0, strings.Join(fields, "_")
}

// OpenGrib opens and indexes a GRIB2 file.
func OpenGrib(uri string) (*GribStore, error) {
	data, err := os.ReadFile(uri)
	if err != nil {
		return nil, errors.Join(ErrOpenStore, err)
	}

	fields, err := gogrib2.Read(data)
	if err != nil {
		return nil, errors.Join(ErrDecodeStore, err)
	}
	if len(fields) == 0 {
		return nil, errors.Join(ErrDecodeStore,
			fmt.Errorf("no GRIB messages in %s", uri))
	}

	messages := make([]GribMessage, 0, len(fields))
	var lon, lat []float64

	for _, field := range fields {
		// validity time, falling back to the reference time
		valid := field.VerfTime
		if valid.IsZero() {
			valid = field.RefTime
		}

		level, type_of_level := parseGribLevel(field.Level)

		values := make([]float32, len(field.Values))
		for i, v := range field.Values {
			values[i] = v.Value
		}

		if lon == nil {
			lon = make([]float64, len(field.Values))
			lat = make([]float64, len(field.Values))
			for i, v := range field.Values {
				lon[i] = v.Longitude
				lat[i] = v.Latitude
			}
		}

		messages = append(messages, GribMessage{
			Short_name:    field.Name,
			Type_of_level: type_of_level,
			Level:         level,
			Abs_time:      TimeFromCivil(valid),
			Values:        values,
			N_points:      len(values),
		})
	}

	return NewGribStoreFromMessages(uri, messages, lon, lat), nil
}

// NewGribStoreFromMessages assembles a store from an already-built
// message table. OpenGrib funnels through here, as do tests that
// synthesise message tables directly.
func NewGribStoreFromMessages(uri string, messages []GribMessage, lon, lat []float64) *GribStore {
	store := &GribStore{
		Uri:      uri,
		Messages: messages,
		Lon:      lon,
		Lat:      lat,
		Groups:   make(map[string]*GribGroup),
	}

	for _, msg := range messages {
		key := msg.Short_name + "|" + msg.Type_of_level
		if _, ok := store.Groups[key]; !ok {
			store.Groups[key] = &GribGroup{
				Short_name:    msg.Short_name,
				Type_of_level: msg.Type_of_level,
			}
			store.Group_order = append(store.Group_order, key)
		}

		grp := store.Groups[key]
		grp.Levels = append(grp.Levels, msg.Level)
		grp.Times = append(grp.Times, msg.Abs_time)
	}

	// sorted deduplicated level/time vectors per group, then the
	// (level, time) -> message map against the final positions
	for _, key := range store.Group_order {
		grp := store.Groups[key]

		grp.Levels = lo.Uniq(grp.Levels)
		sort.Float64s(grp.Levels)
		grp.Times = lo.Uniq(grp.Times)
		sort.Float64s(grp.Times)

		grp.message = make(map[gribKey]int)
	}

	for i, msg := range messages {
		grp := store.Groups[msg.Short_name+"|"+msg.Type_of_level]
		level_idx := sort.SearchFloat64s(grp.Levels, msg.Level)
		time_idx := sort.SearchFloat64s(grp.Times, msg.Abs_time)
		grp.message[gribKey{level_idx, time_idx}] = i
	}

	return store
}

// Close releases the decoded message table.
func (gs *GribStore) Close() {
	gs.Messages = nil
}

// AllTimes returns the sorted deduplicated union of message times
// across every group in this store.
func (gs *GribStore) AllTimes() []float64 {
	times := make([]float64, 0, len(gs.Messages))
	for _, msg := range gs.Messages {
		times = append(times, msg.Abs_time)
	}
	times = lo.Uniq(times)
	sort.Float64s(times)
	return times
}

// CreateMesh builds an unstructured mesh from the message grid
// coordinates.
func (gs *GribStore) CreateMesh() (*Mesh, error) {
	if len(gs.Lon) == 0 {
		return nil, errors.Join(ErrInvalidMesh,
			fmt.Errorf("no grid coordinates in %s", gs.Uri))
	}

	lon := make([]float64, len(gs.Lon))
	lat := make([]float64, len(gs.Lat))
	copy(lon, gs.Lon)
	copy(lat, gs.Lat)

	return NewMesh(lon, lat, COORD_UNSTRUCTURED_1D)
}

// GroupVariableName is the exposed name for a group: the bare
// shortName for multi-level groups, otherwise the single-level form
// "{shortName}@{typeOfLevel}={level}". The format is user visible and
// preserved verbatim.
func GroupVariableName(grp *GribGroup) string {
	if len(grp.Levels) > 1 {
		return grp.Short_name
	}
	level := 0.0
	if len(grp.Levels) == 1 {
		level = grp.Levels[0]
	}
	return fmt.Sprintf("%s@%s=%g", grp.Short_name, grp.Type_of_level, level)
}

// ScanVariables exposes each group as a variable: multi-level groups
// navigate their level vector as the depth axis.
func (gs *GribStore) ScanVariables(mesh *Mesh, store *Store) (*VariableSet, error) {
	set := NewVariableSet()

	for _, key := range gs.Group_order {
		grp := gs.Groups[key]

		n_points := mesh.N
		dims := make([]DimSpec, 0, 3)
		time_dim := -1
		depth_dim := -1

		if len(grp.Times) > 0 {
			time_dim = len(dims)
			dims = append(dims, DimSpec{Name: "time", Size: len(grp.Times)})
		}
		if len(grp.Levels) > 1 {
			depth_dim = len(dims)
			dims = append(dims, DimSpec{Name: "level", Size: len(grp.Levels)})
		}
		spatial_dim := len(dims)
		dims = append(dims, DimSpec{Name: "values", Size: n_points})

		set.Add(&Variable{
			Name:         GroupVariableName(grp),
			Long_name:    grp.Short_name,
			Units:        "",
			Fill_value:   DEFAULT_FILL_VALUE,
			Scale_factor: 1.0,
			Dims:         dims,
			Time_dim:     time_dim,
			Depth_dim:    depth_dim,
			Spatial_dim:  spatial_dim,
			Lat_dim:      -1,
			Lon_dim:      -1,
			Store:        store,
			grib:         grp,
		})
	}

	return set, nil
}

// ReadSlice copies the message for (t, d) into out; a missing message
// fills the slice.
func (gs *GribStore) ReadSlice(v *Variable, t, d int, out []float64) error {
	if v.grib == nil {
		return errors.Join(ErrNoVariable, fmt.Errorf("%s has no grib read plan", v.Name))
	}
	if t < 0 || t >= v.NTimes() || d < 0 || d >= v.NDepths() {
		return errors.Join(ErrOutOfRange,
			fmt.Errorf("slice (%d, %d) of %s", t, d, v.Name))
	}

	n := v.SpatialSize()
	if len(out) < n {
		return errors.Join(ErrOutOfRange,
			fmt.Errorf("slice buffer %d but spatial size %d", len(out), n))
	}

	msg_idx := v.grib.MessageAt(d, t)
	if msg_idx < 0 {
		fillSlice(out[:n], v.Fill_value)
		return nil
	}

	gs.copyMessage(msg_idx, out[:n], v.Fill_value)
	return nil
}

// ReadSliceAtTime resolves an absolute time against the group's time
// vector; filesets use it to satisfy union reads. The boolean reports
// whether a matching message existed.
func (gs *GribStore) ReadSliceAtTime(v *Variable, abs_time float64, d int, out []float64) (bool, error) {
	if v.grib == nil {
		return false, errors.Join(ErrNoVariable, fmt.Errorf("%s has no grib read plan", v.Name))
	}

	n := v.SpatialSize()
	if len(out) < n {
		return false, errors.Join(ErrOutOfRange,
			fmt.Errorf("slice buffer %d but spatial size %d", len(out), n))
	}

	msg_idx := v.grib.MessageAtTime(d, abs_time)
	if msg_idx < 0 {
		fillSlice(out[:n], v.Fill_value)
		return false, nil
	}

	gs.copyMessage(msg_idx, out[:n], v.Fill_value)
	return true, nil
}

func (gs *GribStore) copyMessage(msg_idx int, out []float64, fill float64) {
	values := gs.Messages[msg_idx].Values
	for i := range out {
		if i < len(values) {
			v := float64(values[i])
			if v != v {
				out[i] = fill
			} else {
				out[i] = v
			}
		} else {
			out[i] = fill
		}
	}
}

func fillSlice(out []float64, fill float64) {
	for i := range out {
		out[i] = fill
	}
}

// EstimateRange samples three evenly spaced times at the first level.
func (gs *GribStore) EstimateRange(v *Variable) (float64, float64, error) {
	return estimateRangeSampled(v, func(t, d int, out []float64) error {
		return gs.ReadSlice(v, t, d, out)
	})
}

// GribTimeUnits is the units string of the GRIB absolute time axis.
const GribTimeUnits = "days since 1970-01-01 00:00:00"

// DimInfo lists the group's time vector (absolute days) and, for
// multi-level groups, the level vector.
func (gs *GribStore) DimInfo(v *Variable) []DimInfo {
	if v.grib == nil {
		return nil
	}

	infos := make([]DimInfo, 0, 2)

	if v.Time_dim >= 0 {
		times := v.grib.Times
		info := DimInfo{
			Name:   "time",
			Units:  GribTimeUnits,
			Size:   len(times),
			Values: times,
		}
		if len(times) > 0 {
			info.Min = times[0]
			info.Max = times[len(times)-1]
		}
		infos = append(infos, info)
	}

	if v.Depth_dim >= 0 {
		levels := v.grib.Levels
		info := DimInfo{
			Name:   "level",
			Units:  v.grib.Type_of_level,
			Size:   len(levels),
			Values: levels,
		}
		if len(levels) > 0 {
			info.Min = levels[0]
			info.Max = levels[len(levels)-1]
		}
		infos = append(infos, info)
	}

	return infos
}

// ReadTimeseries walks the group's time vector for one node.
func (gs *GribStore) ReadTimeseries(v *Variable, node, d int) (*TimeseriesResult, error) {
	if v.grib == nil {
		return nil, errors.Join(ErrNoVariable, fmt.Errorf("%s has no grib read plan", v.Name))
	}
	if node < 0 || node >= v.SpatialSize() {
		return nil, errors.Join(ErrOutOfRange, fmt.Errorf("node %d", node))
	}

	times := v.grib.Times
	result := &TimeseriesResult{
		Times:  make([]float64, len(times)),
		Values: make([]float64, len(times)),
		Valid:  make([]bool, len(times)),
	}
	copy(result.Times, times)

	for t := range times {
		msg_idx := v.grib.MessageAt(d, t)
		if msg_idx < 0 {
			result.Values[t] = v.Fill_value
			continue
		}

		values := gs.Messages[msg_idx].Values
		if node >= len(values) {
			result.Values[t] = v.Fill_value
			continue
		}

		val := float64(values[node])
		if ValueMissing(val, v.Fill_value) {
			result.Values[t] = v.Fill_value
			continue
		}

		result.Values[t] = val
		result.Valid[t] = true
	}

	return result, nil
}
