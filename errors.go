package ushow

import (
	"errors"
)

var ErrOpenStore = errors.New("Error Opening Store")
var ErrDecodeStore = errors.New("Error Decoding Store Contents")
var ErrInvalidMesh = errors.New("Error Invalid Mesh Coordinates")
var ErrOutOfRange = errors.New("Error Index Out Of Range")
var ErrPolygonUnavailable = errors.New("Error Polygon Mode Requires Element Connectivity")
var ErrRangeEmpty = errors.New("Error No Valid Samples For Range Estimate")
var ErrNoVariable = errors.New("Error Variable Not Found")
var ErrNoTimeDim = errors.New("Error Variable Has No Time Dimension")
var ErrStoreKind = errors.New("Error Unrecognised Store Kind")
var ErrChunkDecode = errors.New("Error Decoding Chunk")
var ErrDtype = errors.New("Error Unsupported Datatype")
var ErrWritePpm = errors.New("Error Writing PPM")

// ErrTimeBoundary signals that a time step was clamped at either end of
// the virtual time axis. Animation callers treat it as a bounce marker,
// not a failure.
var ErrTimeBoundary = errors.New("Error Time Step Clamped At Boundary")
