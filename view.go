package ushow

import (
	"errors"
	"fmt"
	"os"
)

type RenderMode int

const (
	RENDER_INTERPOLATE RenderMode = 1 + iota
	RENDER_POLYGON
)

// RangeAction is one of the four user range adjustments.
type RangeAction int

const (
	RANGE_MIN_DOWN RangeAction = 1 + iota
	RANGE_MIN_UP
	RANGE_MAX_DOWN
	RANGE_MAX_UP
)

// fraction of the current span moved per range adjustment
const rangeAdjustStep = 0.05

// View is the stateful conductor: the current variable, navigation
// indices, render mode and the working buffers. UIs drive it through
// the entry points below and read pixels back out; every mutation
// invalidates the current frame until the next Update.
type View struct {
	Variable *Variable
	Vars     *VariableSet
	Mesh     *Mesh
	Regrid   *Regridder // nil in pure polygon mode
	Files    *Fileset   // nil for single-store views

	Colormaps *ColormapRegistry

	Time_index  int
	Depth_index int
	N_times     int
	N_depths    int

	Mode         RenderMode
	Scale_factor int

	// animation direction, -2..+2 steps per tick
	Direction int

	raw_data  []float64
	regridded []float64
	pixels    []uint8
	out_nx    int // base target dims, before scaling
	out_ny    int

	data_valid bool

	user_min  float64
	user_max  float64
	has_range bool
	ranges    map[string][2]float64 // remembered per variable name
}

// NewView constructs an empty view bound to the process colormap
// registry.
func NewView() *View {
	return &View{
		Colormaps:    DefaultColormaps,
		Mode:         RENDER_INTERPOLATE,
		Scale_factor: MIN_SCALE_FACTOR,
		ranges:       make(map[string][2]float64),
	}
}

// AttachFileset binds a fileset; subsequent SetVariable calls derive
// the virtual time extent from it.
func (vw *View) AttachFileset(fs *Fileset) {
	vw.Files = fs
}

// SetVariable makes a variable current: indices reset, extents and
// target dimensions recompute, buffers reallocate and the user range
// seeds from a store estimate on first use.
func (vw *View) SetVariable(v *Variable, mesh *Mesh, regrid *Regridder) error {
	if v == nil || mesh == nil {
		return errors.Join(ErrNoVariable, errors.New("nil variable or mesh"))
	}

	vw.Variable = v
	vw.Mesh = mesh
	vw.Regrid = regrid

	vw.Time_index = 0
	vw.Depth_index = 0

	if vw.Files != nil {
		vw.N_times = vw.Files.NTimes()
	} else {
		vw.N_times = v.NTimes()
	}
	vw.N_depths = v.NDepths()

	if regrid != nil {
		vw.out_nx = regrid.Nx
		vw.out_ny = regrid.Ny
	} else {
		vw.out_nx = POLYGON_FALLBACK_WIDTH
		vw.out_ny = POLYGON_FALLBACK_HEIGHT
		if vw.Mode == RENDER_INTERPOLATE {
			// nothing to interpolate onto without a regridder
			vw.Mode = RENDER_POLYGON
		}
	}

	vw.allocBuffers()

	if stored, ok := vw.ranges[v.Name]; ok {
		vw.user_min, vw.user_max = stored[0], stored[1]
		vw.has_range = true
	} else {
		vmin, vmax, err := vw.estimateRange(v)
		if err != nil && !errors.Is(err, ErrRangeEmpty) {
			return err
		}
		vw.user_min, vw.user_max = vmin, vmax
		vw.has_range = true
		vw.ranges[v.Name] = [2]float64{vmin, vmax}
	}

	vw.data_valid = false

	return nil
}

// SelectVariable switches to the i-th scanned variable, keeping the
// current mesh and regridder.
func (vw *View) SelectVariable(i int) error {
	if vw.Vars == nil || i < 0 || i >= vw.Vars.Len() {
		return errors.Join(ErrOutOfRange, fmt.Errorf("variable index %d", i))
	}
	return vw.SetVariable(vw.Vars.Vars[i], vw.Mesh, vw.Regrid)
}

func (vw *View) estimateRange(v *Variable) (float64, float64, error) {
	if vw.Files != nil {
		return vw.Files.EstimateRange(v)
	}
	return v.Store.EstimateRange(v)
}

// allocBuffers (re)allocates the working buffers. They are only
// rebuilt when the variable or scale factor changes.
func (vw *View) allocBuffers() {
	n := vw.Variable.SpatialSize()
	if len(vw.raw_data) != n {
		vw.raw_data = make([]float64, n)
	}

	if vw.Regrid != nil {
		cells := vw.out_nx * vw.out_ny
		if len(vw.regridded) != cells {
			vw.regridded = make([]float64, cells)
		}
	} else {
		vw.regridded = nil
	}

	need := 3 * vw.Scale_factor * vw.Scale_factor * vw.out_nx * vw.out_ny
	if len(vw.pixels) != need {
		vw.pixels = make([]uint8, need)
	}
}

// SetTime clamps the time index into range.
func (vw *View) SetTime(i int) {
	if i < 0 {
		i = 0
	} else if i >= vw.N_times {
		i = vw.N_times - 1
	}
	if i != vw.Time_index {
		vw.Time_index = i
		vw.data_valid = false
	}
}

// SetDepth clamps the depth index into range.
func (vw *View) SetDepth(i int) {
	if i < 0 {
		i = 0
	} else if i >= vw.N_depths {
		i = vw.N_depths - 1
	}
	if i != vw.Depth_index {
		vw.Depth_index = i
		vw.data_valid = false
	}
}

// StepTime advances the time index by delta and returns the new
// index. A step clamped at either end returns ErrTimeBoundary so
// animators can bounce.
func (vw *View) StepTime(delta int) (int, error) {
	next := vw.Time_index + delta

	var err error
	if next < 0 {
		next = 0
		err = ErrTimeBoundary
	} else if next >= vw.N_times {
		next = vw.N_times - 1
		err = ErrTimeBoundary
	}

	if next != vw.Time_index {
		vw.Time_index = next
		vw.data_valid = false
	}

	return vw.Time_index, err
}

// SetAnimationDirection stores the animation step, one of
// {-2, -1, 0, +1, +2}.
func (vw *View) SetAnimationDirection(delta int) {
	if delta < -2 {
		delta = -2
	} else if delta > 2 {
		delta = 2
	}
	vw.Direction = delta
}

// Tick advances one animation frame in the stored direction, bouncing
// at the time axis ends.
func (vw *View) Tick() int {
	if vw.Direction == 0 {
		return vw.Time_index
	}

	idx, err := vw.StepTime(vw.Direction)
	if errors.Is(err, ErrTimeBoundary) {
		vw.Direction = -vw.Direction
	}

	return idx
}

// ToggleRenderMode flips between interpolate and polygon rendering.
// Polygon mode needs element connectivity.
func (vw *View) ToggleRenderMode() error {
	if vw.Mode == RENDER_INTERPOLATE {
		if !vw.Mesh.PolygonAvailable() {
			return ErrPolygonUnavailable
		}
		vw.Mode = RENDER_POLYGON
	} else {
		if vw.Regrid == nil {
			return errors.Join(ErrOutOfRange, errors.New("no regridder for interpolate mode"))
		}
		vw.Mode = RENDER_INTERPOLATE
	}

	vw.data_valid = false
	return nil
}

// NextColormap cycles the registry cursor forward.
func (vw *View) NextColormap() {
	vw.Colormaps.Next()
	vw.data_valid = false
}

// PrevColormap cycles the registry cursor back.
func (vw *View) PrevColormap() {
	vw.Colormaps.Prev()
	vw.data_valid = false
}

// AdjustRange nudges one end of the user range by 5% of the span.
func (vw *View) AdjustRange(action RangeAction) {
	step := (vw.user_max - vw.user_min) * rangeAdjustStep
	if step == 0 {
		step = 1.0
	}

	switch action {
	case RANGE_MIN_DOWN:
		vw.user_min -= step
	case RANGE_MIN_UP:
		vw.user_min += step
	case RANGE_MAX_DOWN:
		vw.user_max -= step
	case RANGE_MAX_UP:
		vw.user_max += step
	}

	if vw.Variable != nil {
		vw.ranges[vw.Variable.Name] = [2]float64{vw.user_min, vw.user_max}
	}
	vw.data_valid = false
}

// SetRange overrides the user range outright.
func (vw *View) SetRange(vmin, vmax float64) {
	vw.user_min, vw.user_max = vmin, vmax
	vw.has_range = true
	if vw.Variable != nil {
		vw.ranges[vw.Variable.Name] = [2]float64{vmin, vmax}
	}
	vw.data_valid = false
}

// Range reports the current user range.
func (vw *View) Range() (float64, float64) {
	return vw.user_min, vw.user_max
}

// ZoomDelta adjusts the integer upscale factor within [1, 8],
// reallocating the pixel buffer.
func (vw *View) ZoomDelta(delta int) {
	scale := vw.Scale_factor + delta
	if scale < MIN_SCALE_FACTOR {
		scale = MIN_SCALE_FACTOR
	} else if scale > MAX_SCALE_FACTOR {
		scale = MAX_SCALE_FACTOR
	}

	if scale == vw.Scale_factor {
		return
	}

	vw.Scale_factor = scale
	if vw.Variable != nil {
		vw.allocBuffers()
	}
	vw.data_valid = false
}

// readSlice dispatches the snapshot read to the fileset or the single
// store.
func (vw *View) readSlice() error {
	if vw.Files != nil {
		return vw.Files.ReadSlice(vw.Variable, vw.Time_index, vw.Depth_index, vw.raw_data)
	}
	return vw.Variable.Store.ReadSlice(vw.Variable, vw.Time_index, vw.Depth_index, vw.raw_data)
}

// Update is the workhorse: when the frame is stale it reads the
// current slice and renders it, either through the regridder and
// colormap or straight through the polygon rasteriser. A polygon
// render failure falls back to interpolate mode when a regridder is
// attached.
func (vw *View) Update() error {
	if vw.data_valid {
		return nil
	}
	if vw.Variable == nil {
		return ErrNoVariable
	}

	if err := vw.readSlice(); err != nil {
		return err
	}

	cmap := vw.Colormaps.Current()
	fill := vw.Variable.Fill_value

	if vw.Mode == RENDER_POLYGON {
		err := RenderElements(vw.Mesh, vw.raw_data, vw.user_min, vw.user_max, fill,
			cmap, vw.out_nx*vw.Scale_factor, vw.out_ny*vw.Scale_factor, vw.pixels)
		if err == nil {
			vw.data_valid = true
			return nil
		}
		if vw.Regrid == nil {
			return err
		}
		vw.Mode = RENDER_INTERPOLATE
	}

	if vw.Regrid == nil {
		return errors.Join(ErrOutOfRange, errors.New("no regridder attached"))
	}

	if err := vw.Regrid.Apply(vw.raw_data, vw.regridded, fill); err != nil {
		return err
	}

	err := ApplyColormapScaled(vw.regridded, vw.out_nx, vw.out_ny,
		vw.user_min, vw.user_max, fill, cmap, vw.Scale_factor, vw.pixels)
	if err != nil {
		return err
	}

	vw.data_valid = true
	return nil
}

// Pixels hands out the current frame and its dimensions. Callers must
// Update first; the buffer is owned by the view.
func (vw *View) Pixels() ([]uint8, int, int) {
	return vw.pixels, vw.out_nx * vw.Scale_factor, vw.out_ny * vw.Scale_factor
}

// DimInfo lists the current variable's scannable dimensions, stamped
// with the view's navigation position.
func (vw *View) DimInfo() []DimInfo {
	if vw.Variable == nil {
		return nil
	}

	var infos []DimInfo
	if vw.Files != nil {
		infos = vw.Files.DimInfo(vw.Variable)
	} else {
		infos = vw.Variable.Store.DimInfo(vw.Variable)
	}

	for i := range infos {
		if vw.Variable.Time_dim >= 0 && infos[i].Name == vw.Variable.Dims[vw.Variable.Time_dim].Name {
			infos[i].Current = vw.Time_index
		} else if vw.Variable.Depth_dim >= 0 && infos[i].Name == vw.Variable.Dims[vw.Variable.Depth_dim].Name {
			infos[i].Current = vw.Depth_index
		}
	}

	return infos
}

// ReadTimeseries extracts one node's values across the whole time
// axis at the current depth.
func (vw *View) ReadTimeseries(node int) (*TimeseriesResult, error) {
	if vw.Variable == nil {
		return nil, ErrNoVariable
	}
	if vw.Files != nil {
		return vw.Files.ReadTimeseries(vw.Variable, node, vw.Depth_index)
	}
	return vw.Variable.Store.ReadTimeseries(vw.Variable, node, vw.Depth_index)
}

// SavePpm writes the current frame as a binary PPM.
func (vw *View) SavePpm(path string) error {
	if err := vw.Update(); err != nil {
		return err
	}

	pixels, width, height := vw.Pixels()
	return WritePpm(path, pixels, width, height)
}

// WritePpm writes raw RGB bytes as a binary (P6) PPM file.
func WritePpm(path string, pixels []uint8, width, height int) error {
	if len(pixels) < 3*width*height {
		return errors.Join(ErrWritePpm,
			fmt.Errorf("pixel buffer %d for %dx%d", len(pixels), width, height))
	}

	fid, err := os.Create(path)
	if err != nil {
		return errors.Join(ErrWritePpm, err)
	}
	defer fid.Close()

	if _, err := fmt.Fprintf(fid, "P6\n%d %d\n255\n", width, height); err != nil {
		return errors.Join(ErrWritePpm, err)
	}
	if _, err := fid.Write(pixels[:3*width*height]); err != nil {
		return errors.Join(ErrWritePpm, err)
	}

	return nil
}
