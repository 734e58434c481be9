package ngff

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/openmicrodata/ngff/zarr"
)

func TestPosition_CreateImageWritesDocuments(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemory()
	pos := createFOV(t, ctx, store, "GFP", "DAPI")

	shape := []int{1, 2, 1, 4, 4}
	data := make([]byte, 2*4*4*2)
	if _, err := pos.CreateImage(ctx, "0", data, shape, zarr.Uint16); err != nil {
		t.Fatal(err)
	}

	root, err := zarr.OpenRoot(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	attrs, err := root.Attrs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	meta, err := ParseImagesMeta(attrs)
	if err != nil {
		t.Fatalf("position document not flushed: %v", err)
	}
	if len(meta.Multiscales[0].Datasets) != 1 || meta.Multiscales[0].Datasets[0].Path != "0" {
		t.Errorf("datasets = %+v", meta.Multiscales[0].Datasets)
	}
	if meta.Multiscales[0].Datasets[0].CoordinateTransformations[0].Type != "identity" {
		t.Error("default identity transform missing")
	}
	if meta.Omero == nil || len(meta.Omero.Channels) != 2 {
		t.Fatalf("omero block = %+v", meta.Omero)
	}
	if meta.Omero.Channels[0].Label != "GFP" || !meta.Omero.Channels[0].Active {
		t.Errorf("first channel = %+v", meta.Omero.Channels[0])
	}
	if meta.Omero.Channels[1].Active {
		t.Error("second channel should start inactive")
	}

	// default chunking: ZYX extent padded with singleton leading dims
	arr, err := pos.Image(ctx, "0")
	if err != nil {
		t.Fatal(err)
	}
	chunks := arr.Chunks()
	want := []int{1, 1, 1, 4, 4}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunks = %v, want %v", chunks, want)
		}
	}
}

func TestPosition_ChannelCountChecks(t *testing.T) {
	ctx := context.Background()
	pos := createFOV(t, ctx, zarr.NewMemory(), "GFP", "DAPI")

	// more channels than names is a hard error
	if _, err := pos.CreateImage(ctx, "bad", make([]byte, 3*4), []int{1, 3, 1, 2, 2}, zarr.Uint8); err == nil {
		t.Error("expected channel-count error")
	}

	// fewer channels than names is legal (late-bound appends)
	if _, err := pos.CreateImage(ctx, "0", make([]byte, 4), []int{1, 1, 1, 2, 2}, zarr.Uint8); err != nil {
		t.Errorf("channel shortfall should be a warning only: %v", err)
	}

	// rank mismatch against the declared axes
	if _, err := pos.CreateImage(ctx, "bad2", make([]byte, 4), []int{1, 2, 2}, zarr.Uint8); err == nil {
		t.Error("expected rank error")
	}
}

func TestPosition_AppendChannelResizesArrays(t *testing.T) {
	ctx := context.Background()
	pos := createFOV(t, ctx, zarr.NewMemory(), "a", "b", "c")

	mk := func(n int) []byte { return make([]byte, n) }
	if _, err := pos.CreateImage(ctx, "full", mk(2*3*4*5*6), []int{2, 3, 4, 5, 6}, zarr.Uint8); err != nil {
		t.Fatal(err)
	}
	if _, err := pos.CreateImage(ctx, "low", mk(3*4*5*6), []int{3, 4, 5, 6}, zarr.Uint8, WithoutShapeCheck()); err != nil {
		t.Fatal(err)
	}

	if err := pos.AppendChannel(ctx, "d", true); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		image string
		want  []int
	}{
		{"full", []int{2, 4, 4, 5, 6}},
		{"low", []int{4, 4, 5, 6}},
	}
	for _, tc := range cases {
		arr, err := pos.Image(ctx, tc.image)
		if err != nil {
			t.Fatal(err)
		}
		shape := arr.Shape()
		if len(shape) != len(tc.want) {
			t.Fatalf("%s shape = %v, want %v", tc.image, shape, tc.want)
		}
		for i := range tc.want {
			if shape[i] != tc.want[i] {
				t.Errorf("%s shape = %v, want %v", tc.image, shape, tc.want)
				break
			}
		}
	}

	names := pos.ChannelNames()
	if len(names) != 4 || names[3] != "d" {
		t.Errorf("channel names = %v", names)
	}
	// OMERO display channels move in the same operation
	if got := len(pos.Metadata().Omero.Channels); got != 4 {
		t.Errorf("omero channels = %d, want 4", got)
	}
}

func TestPosition_AppendChannelLeftPads(t *testing.T) {
	ctx := context.Background()
	pos := createFOV(t, ctx, zarr.NewMemory(), "a")

	// 3D array: channel axis not materialized yet
	if _, err := pos.CreateImage(ctx, "vol", make([]byte, 4*5*6), []int{4, 5, 6}, zarr.Uint8, WithoutShapeCheck()); err != nil {
		t.Fatal(err)
	}
	if err := pos.AppendChannel(ctx, "b", true); err != nil {
		t.Fatal(err)
	}

	arr, err := pos.Image(ctx, "vol")
	if err != nil {
		t.Fatal(err)
	}
	shape := arr.Shape()
	want := []int{1, 4, 5, 6}
	if len(shape) != len(want) {
		t.Fatalf("shape = %v, want %v", shape, want)
	}
	for i := range want {
		if shape[i] != want[i] {
			t.Fatalf("shape = %v, want %v", shape, want)
		}
	}
}

func TestPosition_AppendChannelErrors(t *testing.T) {
	ctx := context.Background()
	pos := createFOV(t, ctx, zarr.NewMemory(), "a")

	if err := pos.AppendChannel(ctx, "a", false); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate append: expected ErrAlreadyExists, got %v", err)
	}

	// 2D array: channel axis is two dimensions away, not inferable
	if _, err := pos.CreateImage(ctx, "flat", make([]byte, 5*6), []int{5, 6}, zarr.Uint8, WithoutShapeCheck()); err != nil {
		t.Fatal(err)
	}
	if err := pos.AppendChannel(ctx, "b", true); !errors.Is(err, ErrAxisInference) {
		t.Errorf("expected ErrAxisInference, got %v", err)
	}
}

func TestPosition_DumpMetaIdempotent(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemory()
	pos := createFOV(t, ctx, store, "GFP")
	if _, err := pos.CreateImage(ctx, "0", make([]byte, 4), []int{1, 1, 1, 2, 2}, zarr.Uint8); err != nil {
		t.Fatal(err)
	}

	readAttrs := func() []byte {
		rc, err := store.Get(ctx, ".zattrs")
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	first := readAttrs()
	if err := pos.DumpMeta(ctx); err != nil {
		t.Fatal(err)
	}
	second := readAttrs()
	if string(first) != string(second) {
		t.Error("DumpMeta without mutation changed the attribute document")
	}
}

func TestPosition_ReopenParsesChannels(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemory()
	pos := createFOV(t, ctx, store, "GFP", "DAPI")
	if _, err := pos.CreateImage(ctx, "0", make([]byte, 2*4), []int{1, 2, 1, 2, 2}, zarr.Uint8); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenPosition(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	names := reopened.ChannelNames()
	if len(names) != 2 || names[0] != "GFP" || names[1] != "DAPI" {
		t.Errorf("reopened channel names = %v", names)
	}
	axes := reopened.Axes()
	if len(axes) != 5 || axes[1].Type != "channel" {
		t.Errorf("reopened axes = %v", axes)
	}
}
