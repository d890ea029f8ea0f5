package ushow

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ZarrCompressor mirrors the numcodecs compressor object of a .zarray
// header. A nil compressor means raw chunks.
type ZarrCompressor struct {
	Id        string `json:"id"`
	Cname     string `json:"cname"`
	Clevel    int    `json:"clevel"`
	Shuffle   int    `json:"shuffle"`
	Blocksize int    `json:"blocksize"`
	Level     int    `json:"level"`
}

// ZarrArray is one array of a Zarr v2 directory store: the parsed
// .zarray header plus its .zattrs.
type ZarrArray struct {
	Name       string
	Shape      []int           `json:"shape"`
	Chunks     []int           `json:"chunks"`
	Dtype      string          `json:"dtype"`
	Fill_value any             `json:"fill_value"`
	Compressor *ZarrCompressor `json:"compressor"`
	Order      string          `json:"order"`

	Attrs map[string]any `json:"-"`

	store *ZarrStore
}

// ZarrStore is an opened Zarr v2 directory store. Arrays are the
// immediate children carrying a .zarray header; consolidated metadata
// at .zmetadata is preferred when present so fileset scans touch one
// file per store.
type ZarrStore struct {
	Uri          string
	Arrays       map[string]*ZarrArray
	Order        []string // array names in discovery order
	Consolidated bool
}

// zmetadataBlob is the consolidated metadata envelope.
type zmetadataBlob struct {
	Metadata map[string]json.RawMessage `json:"metadata"`
	Format   int                        `json:"zarr_consolidated_format"`
}

// OpenZarr opens a Zarr v2 directory store.
func OpenZarr(uri string) (*ZarrStore, error) {
	info, err := os.Stat(uri)
	if err != nil {
		return nil, errors.Join(ErrOpenStore, err)
	}
	if !info.IsDir() {
		return nil, errors.Join(ErrOpenStore,
			fmt.Errorf("%s is not a zarr directory store", uri))
	}

	store := &ZarrStore{
		Uri:    uri,
		Arrays: make(map[string]*ZarrArray),
		Order:  make([]string, 0),
	}

	if blob, err := os.ReadFile(filepath.Join(uri, ".zmetadata")); err == nil {
		if err := store.loadConsolidated(blob); err != nil {
			return nil, err
		}
		store.Consolidated = true
		return store, nil
	}

	// no consolidated blob; walk the immediate children
	if _, err := os.Stat(filepath.Join(uri, ".zgroup")); err != nil {
		// a bare array store: the directory itself holds .zarray
		if _, err2 := os.Stat(filepath.Join(uri, ".zarray")); err2 != nil {
			return nil, errors.Join(ErrOpenStore,
				fmt.Errorf("%s has neither .zgroup nor .zarray", uri))
		}
		// chunk keys resolve as <store root>/<array name>/<key>, so a
		// bare array store roots at its parent directory
		clean := strings.TrimSuffix(uri, string(os.PathSeparator))
		name := filepath.Base(clean)
		store.Uri = filepath.Dir(clean)
		arr, err2 := store.loadArrayDir(name, filepath.Join(store.Uri, name))
		if err2 != nil {
			return nil, err2
		}
		arr.Name = name
		store.Arrays[name] = arr
		store.Order = append(store.Order, name)
		return store, nil
	}

	entries, err := os.ReadDir(uri)
	if err != nil {
		return nil, errors.Join(ErrOpenStore, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		child := filepath.Join(uri, entry.Name())
		if _, err := os.Stat(filepath.Join(child, ".zarray")); err != nil {
			continue
		}
		arr, err := store.loadArrayDir(entry.Name(), child)
		if err != nil {
			return nil, err
		}
		store.Arrays[entry.Name()] = arr
		store.Order = append(store.Order, entry.Name())
	}

	if len(store.Arrays) == 0 {
		return nil, errors.Join(ErrOpenStore,
			fmt.Errorf("no arrays under %s", uri))
	}

	return store, nil
}

func (zs *ZarrStore) loadConsolidated(blob []byte) error {
	var meta zmetadataBlob
	if err := json.Unmarshal(blob, &meta); err != nil {
		return errors.Join(ErrDecodeStore, err)
	}

	for key, raw := range meta.Metadata {
		if !strings.HasSuffix(key, "/.zarray") {
			continue
		}
		name := strings.TrimSuffix(key, "/.zarray")

		arr := &ZarrArray{Name: name, store: zs}
		if err := json.Unmarshal(raw, arr); err != nil {
			return errors.Join(ErrDecodeStore, err)
		}

		if attrs_raw, ok := meta.Metadata[name+"/.zattrs"]; ok {
			_ = json.Unmarshal(attrs_raw, &arr.Attrs)
		}

		zs.Arrays[name] = arr
		zs.Order = append(zs.Order, name)
	}

	// stable discovery order regardless of map iteration
	sortStrings(zs.Order)

	if len(zs.Arrays) == 0 {
		return errors.Join(ErrDecodeStore,
			fmt.Errorf("consolidated metadata of %s lists no arrays", zs.Uri))
	}

	return nil
}

func (zs *ZarrStore) loadArrayDir(name, dir string) (*ZarrArray, error) {
	blob, err := os.ReadFile(filepath.Join(dir, ".zarray"))
	if err != nil {
		return nil, errors.Join(ErrOpenStore, err)
	}

	arr := &ZarrArray{Name: name, store: zs}
	if err := json.Unmarshal(blob, arr); err != nil {
		return nil, errors.Join(ErrDecodeStore, err)
	}

	if attrs_blob, err := os.ReadFile(filepath.Join(dir, ".zattrs")); err == nil {
		_ = json.Unmarshal(attrs_blob, &arr.Attrs)
	}

	return arr, nil
}

// Close is a no-op for directory stores; chunk files are opened per
// read. Kept for contract symmetry.
func (zs *ZarrStore) Close() {}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// itemSize decodes the byte width of a numpy-style dtype such as <f4.
func (za *ZarrArray) itemSize() (int, error) {
	if len(za.Dtype) < 3 {
		return 0, errors.Join(ErrDtype, fmt.Errorf("dtype %q", za.Dtype))
	}
	size, err := strconv.Atoi(za.Dtype[2:])
	if err != nil {
		return 0, errors.Join(ErrDtype, fmt.Errorf("dtype %q", za.Dtype))
	}
	return size, nil
}

func (za *ZarrArray) byteOrder() binary.ByteOrder {
	if strings.HasPrefix(za.Dtype, ">") {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// fillAsFloat interprets the header's fill_value.
func (za *ZarrArray) fillAsFloat() float64 {
	switch fv := za.Fill_value.(type) {
	case float64:
		return fv
	case string:
		switch fv {
		case "NaN":
			return math.NaN()
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
	}
	return DEFAULT_FILL_VALUE
}

// decodeElement pulls element i out of a raw chunk.
func (za *ZarrArray) decodeElement(raw []byte, i, item_size int, order binary.ByteOrder) float64 {
	off := i * item_size
	kind := za.Dtype[1]

	switch {
	case kind == 'f' && item_size == 4:
		return float64(math.Float32frombits(order.Uint32(raw[off:])))
	case kind == 'f' && item_size == 8:
		return math.Float64frombits(order.Uint64(raw[off:]))
	case kind == 'i' && item_size == 1:
		return float64(int8(raw[off]))
	case kind == 'i' && item_size == 2:
		return float64(int16(order.Uint16(raw[off:])))
	case kind == 'i' && item_size == 4:
		return float64(int32(order.Uint32(raw[off:])))
	case kind == 'i' && item_size == 8:
		return float64(int64(order.Uint64(raw[off:])))
	case kind == 'u' && item_size == 1:
		return float64(raw[off])
	case kind == 'u' && item_size == 2:
		return float64(order.Uint16(raw[off:]))
	case kind == 'u' && item_size == 4:
		return float64(order.Uint32(raw[off:]))
	case kind == 'u' && item_size == 8:
		return float64(order.Uint64(raw[off:]))
	}
	return math.NaN()
}

// chunkKey builds the dot-separated chunk key, eg "0.2.1".
func chunkKey(indices []int) string {
	parts := make([]string, len(indices))
	for i, v := range indices {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// readChunk loads and decompresses one chunk, returning nil when the
// chunk file does not exist (an all-fill chunk).
func (za *ZarrArray) readChunk(indices []int) ([]byte, error) {
	key := chunkKey(indices)

	path := filepath.Join(za.store.Uri, za.Name, key)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Join(ErrDecodeStore, err)
	}

	item_size, err := za.itemSize()
	if err != nil {
		return nil, err
	}
	n_elem := 1
	for _, c := range za.Chunks {
		n_elem *= c
	}
	expected := n_elem * item_size

	return decompressChunk(raw, expected, za.Compressor)
}

// decompressChunk dispatches on the numcodecs compressor id.
func decompressChunk(raw []byte, expected int, comp *ZarrCompressor) ([]byte, error) {
	if comp == nil {
		return raw, nil
	}

	switch comp.Id {
	case "zlib":
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, errors.Join(ErrChunkDecode, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Join(ErrChunkDecode, err)
		}
		return out, nil
	case "zstd":
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Join(ErrChunkDecode, err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, errors.Join(ErrChunkDecode, err)
		}
		return out, nil
	case "blosc":
		return bloscDecode(raw, expected)
	}

	return nil, errors.Join(ErrChunkDecode,
		fmt.Errorf("unsupported compressor %q", comp.Id))
}

// blosc1 frame constants
const (
	bloscMemcpyed   = 0x2
	bloscShuffle    = 0x1
	bloscBitshuffle = 0x4
)

// bloscDecode unpacks a blosc1 frame: 16 byte header, optional block
// start table, then per-block split streams each prefixed with its
// compressed size. A split whose compressed size equals its plain size
// is stored raw. Byte shuffle is undone at block granularity;
// bit-shuffle is refused.
func bloscDecode(raw []byte, expected int) ([]byte, error) {
	if len(raw) < 16 {
		return nil, errors.Join(ErrChunkDecode, fmt.Errorf("blosc frame of %d bytes", len(raw)))
	}

	flags := raw[2]
	typesize := int(raw[3])
	nbytes := int(binary.LittleEndian.Uint32(raw[4:8]))
	blocksize := int(binary.LittleEndian.Uint32(raw[8:12]))

	if nbytes != expected {
		// trust the frame; callers compare against the header shape
		expected = nbytes
	}

	if flags&bloscMemcpyed != 0 {
		if len(raw) < 16+expected {
			return nil, errors.Join(ErrChunkDecode, fmt.Errorf("short memcpy blosc frame"))
		}
		out := make([]byte, expected)
		copy(out, raw[16:16+expected])
		return out, nil
	}

	if flags&bloscBitshuffle != 0 {
		return nil, errors.Join(ErrChunkDecode, errors.New("bit-shuffled blosc frames are not supported"))
	}

	codec := flags >> 5

	if blocksize <= 0 {
		blocksize = expected
	}
	n_blocks := (expected + blocksize - 1) / blocksize

	if len(raw) < 16+4*n_blocks {
		return nil, errors.Join(ErrChunkDecode, fmt.Errorf("blosc frame missing block table"))
	}
	bstarts := make([]int, n_blocks)
	for i := 0; i < n_blocks; i++ {
		bstarts[i] = int(binary.LittleEndian.Uint32(raw[16+4*i:]))
	}

	shuffled := flags&bloscShuffle != 0 && typesize > 1

	out := make([]byte, expected)

	for b := 0; b < n_blocks; b++ {
		bsize := blocksize
		if b == n_blocks-1 && expected%blocksize != 0 {
			bsize = expected % blocksize
		}

		n_splits := 1
		if shuffled && bsize%typesize == 0 {
			n_splits = typesize
		}
		split_size := bsize / n_splits

		block := make([]byte, 0, bsize)
		pos := bstarts[b]

		for s := 0; s < n_splits; s++ {
			if pos+4 > len(raw) {
				return nil, errors.Join(ErrChunkDecode, fmt.Errorf("blosc block %d truncated", b))
			}
			csize := int(binary.LittleEndian.Uint32(raw[pos:]))
			pos += 4
			if pos+csize > len(raw) {
				return nil, errors.Join(ErrChunkDecode, fmt.Errorf("blosc split overruns frame"))
			}
			payload := raw[pos : pos+csize]
			pos += csize

			if csize == split_size {
				// stored verbatim
				block = append(block, payload...)
				continue
			}

			plain, err := bloscInner(codec, payload, split_size)
			if err != nil {
				return nil, err
			}
			block = append(block, plain...)
		}

		if shuffled && n_splits == typesize {
			block = unshuffleBytes(block, typesize)
		}

		copy(out[b*blocksize:], block)
	}

	return out, nil
}

// bloscInner decompresses one split with the inner codec identified by
// the frame flags: 1/2 lz4, 4 zlib, 5 zstd.
func bloscInner(codec byte, payload []byte, plain_size int) ([]byte, error) {
	switch codec {
	case 1, 2:
		out := make([]byte, plain_size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, errors.Join(ErrChunkDecode, err)
		}
		return out[:n], nil
	case 4:
		r, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Join(ErrChunkDecode, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Join(ErrChunkDecode, err)
		}
		return out, nil
	case 5:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Join(ErrChunkDecode, err)
		}
		defer dec.Close()
		return dec.DecodeAll(payload, nil)
	}
	return nil, errors.Join(ErrChunkDecode,
		fmt.Errorf("unsupported blosc inner codec %d", codec))
}

// unshuffleBytes reverses the blosc byte shuffle: lane-major back to
// element-major.
func unshuffleBytes(data []byte, typesize int) []byte {
	n_elem := len(data) / typesize
	out := make([]byte, len(data))
	for lane := 0; lane < typesize; lane++ {
		for k := 0; k < n_elem; k++ {
			out[k*typesize+lane] = data[lane*n_elem+k]
		}
	}
	return out
}

// ReadSlab copies the requested hyperslab [begin, begin+count) into a
// float64 buffer. Every chunk whose rectangle intersects the request
// is loaded once; missing chunk files contribute the fill value. This
// is the single read path for data and coordinate arrays alike, so
// multi-chunk coordinates are always assembled completely.
func (za *ZarrArray) ReadSlab(begin, count []int) ([]float64, error) {
	rank := len(za.Shape)
	if len(begin) != rank || len(count) != rank {
		return nil, errors.Join(ErrOutOfRange,
			fmt.Errorf("slab rank %d/%d vs array rank %d", len(begin), len(count), rank))
	}

	n_out := 1
	for i := 0; i < rank; i++ {
		if begin[i] < 0 || count[i] < 0 || begin[i]+count[i] > za.Shape[i] {
			return nil, errors.Join(ErrOutOfRange,
				fmt.Errorf("slab [%d, %d) on axis %d of extent %d", begin[i], begin[i]+count[i], i, za.Shape[i]))
		}
		n_out *= count[i]
	}

	item_size, err := za.itemSize()
	if err != nil {
		return nil, err
	}
	order := za.byteOrder()
	fill := za.fillAsFloat()

	out := make([]float64, n_out)
	for i := range out {
		out[i] = fill
	}
	if n_out == 0 {
		return out, nil
	}

	// output strides, row major
	out_stride := make([]int, rank)
	stride := 1
	for i := rank - 1; i >= 0; i-- {
		out_stride[i] = stride
		stride *= count[i]
	}

	// chunk strides within one chunk
	chunk_stride := make([]int, rank)
	stride = 1
	for i := rank - 1; i >= 0; i-- {
		chunk_stride[i] = stride
		stride *= za.Chunks[i]
	}

	// iterate the chunk grid rectangle covering the request
	chunk_lo := make([]int, rank)
	chunk_hi := make([]int, rank)
	for i := 0; i < rank; i++ {
		chunk_lo[i] = begin[i] / za.Chunks[i]
		chunk_hi[i] = (begin[i] + count[i] - 1) / za.Chunks[i]
	}

	chunk_idx := make([]int, rank)
	copy(chunk_idx, chunk_lo)

	for {
		raw, err := za.readChunk(chunk_idx)
		if err != nil {
			return nil, err
		}

		if raw != nil {
			za.copyIntersection(raw, chunk_idx, begin, count, out, out_stride, chunk_stride, item_size, order)
		}

		// odometer increment over the chunk grid
		axis := rank - 1
		for axis >= 0 {
			chunk_idx[axis]++
			if chunk_idx[axis] <= chunk_hi[axis] {
				break
			}
			chunk_idx[axis] = chunk_lo[axis]
			axis--
		}
		if axis < 0 {
			break
		}
	}

	return out, nil
}

// copyIntersection copies the overlap of one chunk with the request.
func (za *ZarrArray) copyIntersection(raw []byte, chunk_idx, begin, count []int, out []float64, out_stride, chunk_stride []int, item_size int, order binary.ByteOrder) {
	rank := len(za.Shape)

	lo := make([]int, rank) // global coordinates of the overlap start
	hi := make([]int, rank)
	for i := 0; i < rank; i++ {
		chunk_start := chunk_idx[i] * za.Chunks[i]
		chunk_end := chunk_start + za.Chunks[i]
		if chunk_end > za.Shape[i] {
			chunk_end = za.Shape[i]
		}

		lo[i] = begin[i]
		if chunk_start > lo[i] {
			lo[i] = chunk_start
		}
		hi[i] = begin[i] + count[i]
		if chunk_end < hi[i] {
			hi[i] = chunk_end
		}
		if lo[i] >= hi[i] {
			return
		}
	}

	pos := make([]int, rank)
	copy(pos, lo)

	for {
		src := 0
		dst := 0
		for i := 0; i < rank; i++ {
			src += (pos[i] - chunk_idx[i]*za.Chunks[i]) * chunk_stride[i]
			dst += (pos[i] - begin[i]) * out_stride[i]
		}

		if (src+1)*item_size <= len(raw) {
			out[dst] = za.decodeElement(raw, src, item_size, order)
		}

		axis := rank - 1
		for axis >= 0 {
			pos[axis]++
			if pos[axis] < hi[axis] {
				break
			}
			pos[axis] = lo[axis]
			axis--
		}
		if axis < 0 {
			break
		}
	}
}

// attrString pulls a string attribute from an array's .zattrs.
func (za *ZarrArray) attrString(name string) string {
	if za.Attrs == nil {
		return ""
	}
	if v, ok := za.Attrs[name].(string); ok {
		return v
	}
	return ""
}

func (za *ZarrArray) attrFloat(name string) (float64, bool) {
	if za.Attrs == nil {
		return 0, false
	}
	if v, ok := za.Attrs[name].(float64); ok {
		return v, true
	}
	return 0, false
}

// dimNames returns the xarray-style _ARRAY_DIMENSIONS when present,
// synthetic names otherwise.
func (za *ZarrArray) dimNames() []string {
	names := make([]string, len(za.Shape))

	if za.Attrs != nil {
		if raw, ok := za.Attrs["_ARRAY_DIMENSIONS"].([]any); ok && len(raw) == len(za.Shape) {
			for i, v := range raw {
				names[i] = fmt.Sprint(v)
			}
			return names
		}
	}

	for i := range names {
		names[i] = fmt.Sprintf("dim_%d", i)
	}
	return names
}

// dimRole mirrors the NetCDF fallback chain against a coordinate
// array's .zattrs.
func (zs *ZarrStore) dimRole(dim string) (is_time, is_depth bool) {
	lowered := strings.ToLower(dim)

	if TimeDimNames[lowered] {
		return true, false
	}
	if DepthDimNames[lowered] {
		return false, true
	}

	coord, ok := zs.Arrays[dim]
	if !ok {
		return false, false
	}

	axis := strings.ToUpper(coord.attrString("axis"))
	if strings.HasPrefix(axis, "T") {
		return true, false
	}
	if strings.HasPrefix(axis, "Z") {
		return false, true
	}

	std := strings.ToLower(coord.attrString("standard_name"))
	if std == "time" {
		return true, false
	}
	if std == "depth" || std == "height" || std == "air_pressure" {
		return false, true
	}

	if strings.Contains(strings.ToLower(coord.attrString("units")), "since") {
		return true, false
	}

	positive := strings.ToLower(coord.attrString("positive"))
	if positive == "up" || positive == "down" {
		return false, true
	}

	return false, false
}

// readCoordinate reads a whole 1-D or 2-D coordinate array through the
// slab path.
func (zs *ZarrStore) readCoordinate(name string) ([]float64, []int, error) {
	arr, ok := zs.Arrays[name]
	if !ok {
		return nil, nil, ErrNoVariable
	}

	begin := make([]int, len(arr.Shape))
	data, err := arr.ReadSlab(begin, arr.Shape)
	if err != nil {
		return nil, nil, err
	}

	return data, arr.Shape, nil
}

// CreateMesh builds a Mesh from the store's coordinate arrays with the
// same classification rules as the NetCDF adapter.
func (zs *ZarrStore) CreateMesh() (*Mesh, error) {
	var lon, lat []float64
	var lon_shape, lat_shape []int
	var err error

	for _, name := range ncLonNames {
		if lon, lon_shape, err = zs.readCoordinate(name); err == nil {
			break
		}
	}
	if lon == nil {
		return nil, errors.Join(ErrInvalidMesh,
			fmt.Errorf("no longitude array in %s", zs.Uri))
	}

	for _, name := range ncLatNames {
		if lat, lat_shape, err = zs.readCoordinate(name); err == nil {
			break
		}
	}
	if lat == nil {
		return nil, errors.Join(ErrInvalidMesh,
			fmt.Errorf("no latitude array in %s", zs.Uri))
	}

	switch {
	case len(lon_shape) == 2 && len(lat_shape) == 2:
		return NewCurvilinearMesh(lon, lat, lon_shape[1], lon_shape[0])
	case len(lon_shape) == 1 && len(lat_shape) == 1 && len(lon) != len(lat):
		return NewStructuredMesh(lon, lat)
	case len(lon_shape) == 1 && len(lat_shape) == 1:
		return NewMesh(lon, lat, COORD_UNSTRUCTURED_1D)
	}

	return nil, errors.Join(ErrInvalidMesh,
		fmt.Errorf("coordinate ranks lon=%d lat=%d", len(lon_shape), len(lat_shape)))
}

// ScanVariables enumerates the displayable arrays.
func (zs *ZarrStore) ScanVariables(mesh *Mesh, store *Store) (*VariableSet, error) {
	set := NewVariableSet()

	for _, name := range zs.Order {
		if CoordinateNames[strings.ToLower(name)] {
			continue
		}

		arr := zs.Arrays[name]
		if len(arr.Shape) == 0 {
			continue
		}

		dim_names := arr.dimNames()
		dims := make([]DimSpec, len(arr.Shape))
		for i := range dims {
			dims[i] = DimSpec{Name: dim_names[i], Size: arr.Shape[i]}
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
			is_time, is_depth := zs.dimRole(d.Name)
			if is_time && time_dim < 0 {
				time_dim = i
			} else if is_depth && depth_dim < 0 {
				depth_dim = i
			}
		}

		fill := arr.fillAsFloat()
		scale := 1.0
		offset := 0.0
		if v, ok := arr.attrFloat("scale_factor"); ok {
			scale = v
		}
		if v, ok := arr.attrFloat("add_offset"); ok {
			offset = v
		}

		set.Add(&Variable{
			Name:         name,
			Long_name:    arr.attrString("long_name"),
			Units:        arr.attrString("units"),
			Fill_value:   fill,
			Scale_factor: scale,
			Add_offset:   offset,
			Dims:         dims,
			Time_dim:     time_dim,
			Depth_dim:    depth_dim,
			Spatial_dim:  spatial,
			Spatial_2d:   spatial_2d,
			Lat_dim:      lat_dim,
			Lon_dim:      lon_dim,
			Store:        store,
			zarr:         arr,
		})
	}

	return set, nil
}

// ReadSlice reads one (t, d) snapshot into out.
func (zs *ZarrStore) ReadSlice(v *Variable, t, d int, out []float64) error {
	if v.zarr == nil {
		return errors.Join(ErrNoVariable, fmt.Errorf("%s has no zarr read plan", v.Name))
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

	begin := make([]int, len(v.Dims))
	count := make([]int, len(v.Dims))
	for i, dim := range v.Dims {
		switch i {
		case v.Time_dim:
			begin[i], count[i] = t, 1
		case v.Depth_dim:
			begin[i], count[i] = d, 1
		default:
			begin[i], count[i] = 0, dim.Size
		}
	}

	data, err := v.zarr.ReadSlab(begin, count)
	if err != nil {
		return err
	}
	if len(data) < n {
		return errors.Join(ErrDecodeStore,
			fmt.Errorf("short slice read %d of %d", len(data), n))
	}

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

// EstimateRange samples three evenly spaced times at depth 0.
func (zs *ZarrStore) EstimateRange(v *Variable) (float64, float64, error) {
	return estimateRangeSampled(v, func(t, d int, out []float64) error {
		return zs.ReadSlice(v, t, d, out)
	})
}

// DimInfo lists the scannable dims with coordinate vectors read
// through the full multi-chunk slab path.
func (zs *ZarrStore) DimInfo(v *Variable) []DimInfo {
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

		if coord, ok := zs.Arrays[dim.Name]; ok {
			info.Units = coord.attrString("units")
			if values, _, err := zs.readCoordinate(dim.Name); err == nil && len(values) > 0 {
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

// ReadTimeseries reads one node across the time axis at fixed depth.
func (zs *ZarrStore) ReadTimeseries(v *Variable, node, d int) (*TimeseriesResult, error) {
	if v.zarr == nil {
		return nil, errors.Join(ErrNoVariable, fmt.Errorf("%s has no zarr read plan", v.Name))
	}
	if node < 0 || node >= v.SpatialSize() {
		return nil, errors.Join(ErrOutOfRange, fmt.Errorf("node %d", node))
	}

	n_times := v.NTimes()

	result := &TimeseriesResult{
		Times:  make([]float64, n_times),
		Values: make([]float64, n_times),
		Valid:  make([]bool, n_times),
	}

	for t := 0; t < n_times; t++ {
		result.Times[t] = float64(t)
	}
	if v.Time_dim >= 0 {
		if values, _, err := zs.readCoordinate(v.Dims[v.Time_dim].Name); err == nil && len(values) >= n_times {
			copy(result.Times, values[:n_times])
		}
	}

	var row, col int
	if v.Spatial_2d {
		nx := v.Dims[v.Lon_dim].Size
		row = node / nx
		col = node % nx
	}

	begin := make([]int, len(v.Dims))
	count := make([]int, len(v.Dims))

	for t := 0; t < n_times; t++ {
		for i, dim := range v.Dims {
			switch i {
			case v.Time_dim:
				begin[i], count[i] = t, 1
			case v.Depth_dim:
				begin[i], count[i] = d, 1
			case v.Spatial_dim:
				begin[i], count[i] = node, 1
			case v.Lat_dim:
				begin[i], count[i] = row, 1
			case v.Lon_dim:
				begin[i], count[i] = col, 1
			default:
				begin[i], count[i] = 0, dim.Size
			}
		}

		data, err := v.zarr.ReadSlab(begin, count)
		if err != nil || len(data) == 0 {
			result.Values[t] = v.Fill_value
			continue
		}

		val := data[0]
		if !ValueMissing(val, v.Fill_value) {
			result.Values[t] = val*v.Scale_factor + v.Add_offset
			result.Valid[t] = true
		} else {
			result.Values[t] = v.Fill_value
		}
	}

	return result, nil
}
