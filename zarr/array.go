package zarr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
)

// ArrayMeta is the ".zarray" document for a chunked array.
type ArrayMeta struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	Dtype              Dtype           `json:"dtype"`
	Compressor         *CompressorMeta `json:"compressor"`
	FillValue          any             `json:"fill_value"`
	Order              string          `json:"order"`
	Filters            any             `json:"filters"`
	DimensionSeparator string          `json:"dimension_separator,omitempty"`
}

// CompressorMeta identifies the primary compression codec for chunk data.
type CompressorMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

// ArrayDef describes a new array. Chunks defaulting to nil means one chunk
// per whole array.
type ArrayDef struct {
	Shape      []int
	Chunks     []int
	Dtype      Dtype
	Compressor *CompressorMeta
}

// Array is a chunked N-dimensional array stored as one object per chunk
// under the array's path, with "/"-separated chunk keys. Edge chunks are
// stored at full chunk size, zero padded; absent chunks read as zeros.
type Array struct {
	store Store
	path  string
	meta  ArrayMeta
	codec chunkCodec
}

// CreateArray creates an array and, when data is non-nil, writes it in one
// pass. data must be a dense C-order buffer of exactly
// prod(shape)*itemsize bytes.
func CreateArray(ctx context.Context, store Store, arrayPath string, def ArrayDef, data []byte, overwrite bool) (*Array, error) {
	if err := def.Dtype.validate(); err != nil {
		return nil, err
	}
	if len(def.Shape) == 0 {
		return nil, errors.New("zarr: array shape must not be empty")
	}
	for _, n := range def.Shape {
		if n <= 0 {
			return nil, fmt.Errorf("zarr: invalid shape %v", def.Shape)
		}
	}
	chunks := def.Chunks
	if chunks == nil {
		chunks = append([]int(nil), def.Shape...)
	}
	if len(chunks) != len(def.Shape) {
		return nil, fmt.Errorf("zarr: chunk rank %d does not match shape rank %d", len(chunks), len(def.Shape))
	}
	for _, c := range chunks {
		if c <= 0 {
			return nil, fmt.Errorf("zarr: invalid chunk shape %v", chunks)
		}
	}

	metaKey := joinKey(arrayPath, arrayMetaKey)
	exists, err := store.Exists(ctx, metaKey)
	if err != nil {
		return nil, err
	}
	if exists && !overwrite {
		return nil, fmt.Errorf("zarr: array %s: %w", arrayPath, ErrExists)
	}

	a := &Array{
		store: store,
		path:  arrayPath,
		meta: ArrayMeta{
			ZarrFormat:         zarrFormat,
			Shape:              append([]int(nil), def.Shape...),
			Chunks:             chunks,
			Dtype:              def.Dtype,
			Compressor:         def.Compressor,
			FillValue:          0,
			Order:              "C",
			Filters:            nil,
			DimensionSeparator: "/",
		},
	}
	a.codec, err = newChunkCodec(def.Compressor)
	if err != nil {
		return nil, err
	}
	if err := a.writeMeta(ctx); err != nil {
		return nil, err
	}
	if data != nil {
		if err := a.Write(ctx, data); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// OpenArray opens an existing array by reading its ".zarray" document.
func OpenArray(ctx context.Context, store Store, arrayPath string) (*Array, error) {
	var meta ArrayMeta
	err := getJSON(ctx, store, joinKey(arrayPath, arrayMetaKey), &meta)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("zarr: array %s: %w", arrayPath, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := meta.Dtype.validate(); err != nil {
		return nil, err
	}
	codec, err := newChunkCodec(meta.Compressor)
	if err != nil {
		return nil, err
	}
	return &Array{store: store, path: arrayPath, meta: meta, codec: codec}, nil
}

// Path returns the array's slash-separated path within the store.
func (a *Array) Path() string { return a.path }

// Name returns the last path component.
func (a *Array) Name() string {
	parts := strings.Split(a.path, "/")
	return parts[len(parts)-1]
}

// Shape returns a copy of the array shape.
func (a *Array) Shape() []int { return append([]int(nil), a.meta.Shape...) }

// Chunks returns a copy of the chunk shape.
func (a *Array) Chunks() []int { return append([]int(nil), a.meta.Chunks...) }

// Dtype returns the element type.
func (a *Array) Dtype() Dtype { return a.meta.Dtype }

// Size returns the total number of elements.
func (a *Array) Size() int { return product(a.meta.Shape) }

func (a *Array) writeMeta(ctx context.Context) error {
	return putJSON(ctx, a.store, joinKey(a.path, arrayMetaKey), a.meta)
}

// Write stores a dense C-order buffer covering the whole array.
func (a *Array) Write(ctx context.Context, data []byte) error {
	itemSize := a.meta.Dtype.ItemSize()
	if len(data) != product(a.meta.Shape)*itemSize {
		return fmt.Errorf("zarr: data length %d does not match shape %v dtype %s",
			len(data), a.meta.Shape, a.meta.Dtype)
	}
	grid := chunkGrid(a.meta.Shape, a.meta.Chunks)
	chunkLen := product(a.meta.Chunks) * itemSize
	for ci := range gridIndices(grid) {
		chunkBuf := make([]byte, chunkLen)
		origin, extent := chunkRegion(ci, a.meta.Shape, a.meta.Chunks)
		copyBlock(data, a.meta.Shape, origin, chunkBuf, a.meta.Chunks, extent, itemSize, true)
		encoded, err := a.codec.compress(chunkBuf)
		if err != nil {
			return err
		}
		if err := a.store.Put(ctx, a.chunkKey(ci), bytes.NewReader(encoded)); err != nil {
			return fmt.Errorf("zarr: writing chunk %v: %w", ci, err)
		}
	}
	return nil
}

// Read assembles the whole array into a dense C-order buffer. Chunks that
// have never been written read as the zero fill value.
func (a *Array) Read(ctx context.Context) ([]byte, error) {
	itemSize := a.meta.Dtype.ItemSize()
	out := make([]byte, product(a.meta.Shape)*itemSize)
	grid := chunkGrid(a.meta.Shape, a.meta.Chunks)
	chunkLen := product(a.meta.Chunks) * itemSize
	for ci := range gridIndices(grid) {
		chunkBuf, err := a.readChunk(ctx, ci, chunkLen)
		if err != nil {
			return nil, err
		}
		if chunkBuf == nil {
			continue // absent chunk, fill value is zero
		}
		origin, extent := chunkRegion(ci, a.meta.Shape, a.meta.Chunks)
		copyBlock(out, a.meta.Shape, origin, chunkBuf, a.meta.Chunks, extent, itemSize, false)
	}
	return out, nil
}

func (a *Array) readChunk(ctx context.Context, ci []int, chunkLen int) ([]byte, error) {
	rc, err := a.store.Get(ctx, a.chunkKey(ci))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("zarr: reading chunk %v: %w", ci, err)
	}
	defer func() { _ = rc.Close() }()

	encoded, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	chunkBuf, err := a.codec.decompress(encoded, chunkLen)
	if err != nil {
		return nil, fmt.Errorf("zarr: decoding chunk %v: %w", ci, err)
	}
	if len(chunkBuf) != chunkLen {
		return nil, fmt.Errorf("zarr: chunk %v has %d bytes, want %d", ci, len(chunkBuf), chunkLen)
	}
	return chunkBuf, nil
}

// Resize changes the array shape without touching chunk data. The rank must
// stay the same. Growing exposes zero-filled regions; shrinking leaves
// stale chunks in place but out of addressable range.
func (a *Array) Resize(ctx context.Context, shape []int) error {
	if len(shape) != len(a.meta.Shape) {
		return fmt.Errorf("zarr: resize rank %d does not match array rank %d", len(shape), len(a.meta.Shape))
	}
	for _, n := range shape {
		if n <= 0 {
			return fmt.Errorf("zarr: invalid resize shape %v", shape)
		}
	}
	a.meta.Shape = append([]int(nil), shape...)
	return a.writeMeta(ctx)
}

func (a *Array) chunkKey(ci []int) string {
	parts := make([]string, len(ci))
	for i, c := range ci {
		parts[i] = strconv.Itoa(c)
	}
	return joinKey(a.path, strings.Join(parts, "/"))
}

// -----------------------------------------------------------------------------
// Chunk geometry
// -----------------------------------------------------------------------------

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// chunkGrid returns the number of chunks along each axis.
func chunkGrid(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// gridIndices yields every chunk index vector in C order.
func gridIndices(grid []int) iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		idx := make([]int, len(grid))
		for {
			if !yield(append([]int(nil), idx...)) {
				return
			}
			d := len(grid) - 1
			for d >= 0 {
				idx[d]++
				if idx[d] < grid[d] {
					break
				}
				idx[d] = 0
				d--
			}
			if d < 0 {
				return
			}
		}
	}
}

// chunkRegion returns the dense-buffer origin of a chunk and the in-bounds
// extent (edge chunks are clipped against the array shape).
func chunkRegion(ci, shape, chunks []int) (origin, extent []int) {
	origin = make([]int, len(shape))
	extent = make([]int, len(shape))
	for d := range shape {
		origin[d] = ci[d] * chunks[d]
		end := origin[d] + chunks[d]
		if end > shape[d] {
			end = shape[d]
		}
		extent[d] = end - origin[d]
	}
	return origin, extent
}

// copyBlock copies a hyperrectangle between a dense array buffer and a
// chunk buffer. When toChunk is true the dense region at origin is copied
// into the chunk origin (0,...,0); otherwise the reverse.
func copyBlock(dense []byte, denseShape, origin []int, chunk []byte, chunkShape, extent []int, itemSize int, toChunk bool) {
	rank := len(denseShape)
	denseStrides := strides(denseShape)
	chunkStrides := strides(chunkShape)

	rowLen := extent[rank-1] * itemSize
	idx := make([]int, rank-1)
	for {
		denseOff := 0
		chunkOff := 0
		for d := 0; d < rank-1; d++ {
			denseOff += (origin[d] + idx[d]) * denseStrides[d]
			chunkOff += idx[d] * chunkStrides[d]
		}
		denseOff = (denseOff + origin[rank-1]) * itemSize
		chunkOff *= itemSize

		if toChunk {
			copy(chunk[chunkOff:chunkOff+rowLen], dense[denseOff:denseOff+rowLen])
		} else {
			copy(dense[denseOff:denseOff+rowLen], chunk[chunkOff:chunkOff+rowLen])
		}

		d := rank - 2
		for d >= 0 {
			idx[d]++
			if idx[d] < extent[d] {
				break
			}
			idx[d] = 0
			d--
		}
		if d < 0 {
			return
		}
	}
}

// strides returns C-order strides in elements.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for d := len(shape) - 1; d >= 0; d-- {
		s[d] = acc
		acc *= shape[d]
	}
	return s
}

// joinKey joins key components, tolerating an empty leading path.
func joinKey(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}
