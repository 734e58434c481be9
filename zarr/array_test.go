package zarr

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
)

// patternUint16 fills a little-endian uint16 buffer with its element index.
func patternUint16(n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(i))
	}
	return buf
}

func TestArray_WriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	// chunk shape deliberately misaligned so edge chunks are exercised
	data := patternUint16(4 * 5)
	arr, err := CreateArray(ctx, store, "img", ArrayDef{
		Shape:  []int{4, 5},
		Chunks: []int{3, 2},
		Dtype:  Uint16,
	}, data, false)
	if err != nil {
		t.Fatal(err)
	}

	got, err := arr.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("read data differs from written data")
	}

	// chunk keys use the "/" dimension separator
	ok, err := store.Exists(ctx, "img/1/2")
	if err != nil || !ok {
		t.Errorf("expected chunk key img/1/2 to exist, got %v, %v", ok, err)
	}
}

func TestArray_ZstdRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	data := patternUint16(6 * 6)
	if _, err := CreateArray(ctx, store, "img", ArrayDef{
		Shape:      []int{6, 6},
		Chunks:     []int{4, 4},
		Dtype:      Uint16,
		Compressor: ZstdCompressor(3),
	}, data, false); err != nil {
		t.Fatal(err)
	}

	arr, err := OpenArray(ctx, store, "img")
	if err != nil {
		t.Fatal(err)
	}
	if arr.meta.Compressor == nil || arr.meta.Compressor.ID != "zstd" {
		t.Fatalf("compressor not persisted: %+v", arr.meta.Compressor)
	}
	got, err := arr.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("zstd round trip corrupted data")
	}
}

func TestArray_AbsentChunksReadAsZero(t *testing.T) {
	ctx := context.Background()
	arr, err := CreateArray(ctx, NewMemory(), "img", ArrayDef{
		Shape: []int{3, 3},
		Dtype: Uint8,
	}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	got, err := arr.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestArray_ResizeGrowExposesZeros(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	data := patternUint16(2 * 3)
	arr, err := CreateArray(ctx, store, "img", ArrayDef{
		Shape:  []int{2, 3},
		Chunks: []int{2, 3},
		Dtype:  Uint16,
	}, data, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := arr.Resize(ctx, []int{4, 3}); err != nil {
		t.Fatal(err)
	}

	got, err := arr.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4*3*2 {
		t.Fatalf("resized read returned %d bytes, want %d", len(got), 4*3*2)
	}
	if !bytes.Equal(got[:len(data)], data) {
		t.Error("original region changed after resize")
	}
	for i := len(data); i < len(got); i++ {
		if got[i] != 0 {
			t.Fatalf("grown region byte %d = %d, want 0", i, got[i])
		}
	}
}

func TestArray_ResizeRankMismatch(t *testing.T) {
	ctx := context.Background()
	arr, err := CreateArray(ctx, NewMemory(), "img", ArrayDef{
		Shape: []int{2, 3},
		Dtype: Uint8,
	}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := arr.Resize(ctx, []int{2, 3, 1}); err == nil {
		t.Error("expected rank-mismatch error")
	}
}

func TestCreateArray_Exclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	def := ArrayDef{Shape: []int{2}, Dtype: Uint8}

	if _, err := CreateArray(ctx, store, "img", def, nil, false); err != nil {
		t.Fatal(err)
	}
	_, err := CreateArray(ctx, store, "img", def, nil, false)
	if !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got: %v", err)
	}
	if _, err := CreateArray(ctx, store, "img", def, nil, true); err != nil {
		t.Errorf("overwrite create failed: %v", err)
	}
}

func TestCreateArray_BadDefs(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	cases := []struct {
		name string
		def  ArrayDef
	}{
		{"empty shape", ArrayDef{Dtype: Uint8}},
		{"zero dim", ArrayDef{Shape: []int{2, 0}, Dtype: Uint8}},
		{"chunk rank", ArrayDef{Shape: []int{2, 2}, Chunks: []int{2}, Dtype: Uint8}},
		{"bad dtype", ArrayDef{Shape: []int{2}, Dtype: Dtype("<u9")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := CreateArray(ctx, store, "bad", tc.def, nil, false); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestChunkGeometry(t *testing.T) {
	grid := chunkGrid([]int{4, 5}, []int{3, 2})
	if grid[0] != 2 || grid[1] != 3 {
		t.Errorf("chunkGrid = %v, want [2 3]", grid)
	}

	origin, extent := chunkRegion([]int{1, 2}, []int{4, 5}, []int{3, 2})
	if origin[0] != 3 || origin[1] != 4 {
		t.Errorf("origin = %v, want [3 4]", origin)
	}
	// edge chunk clipped against the array shape
	if extent[0] != 1 || extent[1] != 1 {
		t.Errorf("extent = %v, want [1 1]", extent)
	}

	count := 0
	for range gridIndices(grid) {
		count++
	}
	if count != 6 {
		t.Errorf("gridIndices yielded %d chunks, want 6", count)
	}
}
