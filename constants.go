package ushow

// Fill value conventions. A value is treated as missing when its
// magnitude reaches INVALID_DATA_THRESHOLD, when it is NaN, or when it
// sits within relative epsilon of the variable's declared fill value.
const (
	DEFAULT_FILL_VALUE     float64 = 1.0e20
	INVALID_DATA_THRESHOLD float64 = 1.0e37
	FILL_MATCH_EPSILON     float64 = 1.0e-6
)

// Per-snapshot missing threshold used by the regridder and the colormap
// apply step. The regridder treats values at or beyond this magnitude as
// missing; the colormap apply step treats values strictly beyond it as
// missing. Missing values render as background.
const RENDER_MISSING_THRESHOLD float64 = 1.0e10

// Target raster defaults.
const (
	DEFAULT_RESOLUTION_DEG    float64 = 1.0
	DEFAULT_INFLUENCE_METRES  float64 = 200_000.0
	POLYGON_FALLBACK_WIDTH    int     = 720
	POLYGON_FALLBACK_HEIGHT   int     = 360
	MIN_SCALE_FACTOR          int     = 1
	MAX_SCALE_FACTOR          int     = 8
	RANGE_ESTIMATE_TIME_SAMPLES int   = 3
)

// Background colour for missing raster cells (dark gray).
const (
	MISSING_R uint8 = 30
	MISSING_G uint8 = 30
	MISSING_B uint8 = 30
)

// Names recognised as coordinate variables. Anything matching is
// excluded from the discoverable variable list.
var CoordinateNames = map[string]bool{
	"lon":        true,
	"longitude":  true,
	"lat":        true,
	"latitude":   true,
	"x":          true,
	"y":          true,
	"time":       true,
	"depth":      true,
	"lev":        true,
	"level":      true,
	"nav_lon":    true,
	"nav_lat":    true,
	"time_bnds":  true,
	"depth_bnds": true,
	"bounds_lon": true,
	"bounds_lat": true,
}

// Dimension names treated as the unstructured spatial axis.
var NodeDimNames = map[string]bool{
	"nod2":    true,
	"nod2d":   true,
	"nodes":   true,
	"nodes_2d": true,
	"ncells":  true,
	"cell":    true,
	"node":    true,
}

// Dimension names treated as time / depth by direct name match.
// Attribute based fallbacks handle the rest, see NetcdfStore.dimRole.
var TimeDimNames = map[string]bool{
	"time":         true,
	"t":            true,
	"time_counter": true,
}

var DepthDimNames = map[string]bool{
	"depth":   true,
	"deptht":  true,
	"depthu":  true,
	"depthv":  true,
	"lev":     true,
	"level":   true,
	"z":       true,
	"nz1":     true,
	"nz":      true,
	"plev":    true,
}
