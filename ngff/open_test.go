package ngff

import (
	"context"
	"errors"
	"testing"

	"github.com/openmicrodata/ngff/zarr"
)

func createFOV(t *testing.T, ctx context.Context, store zarr.Store, channels ...string) *Position {
	t.Helper()
	pos, err := OpenPosition(ctx, store,
		WithMode(CreateExclusive),
		WithChannelNames(channels...),
	)
	if err != nil {
		t.Fatal(err)
	}
	return pos
}

// writeTestImage writes a small 5D array so the position carries a
// multiscales document.
func writeTestImage(t *testing.T, ctx context.Context, pos *Position, channels int) {
	t.Helper()
	shape := []int{1, channels, 1, 2, 2}
	data := make([]byte, channels*2*2)
	if _, err := pos.CreateImage(ctx, "0", data, shape, zarr.Uint8); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_ReadModesRequireExistingStore(t *testing.T) {
	ctx := context.Background()
	for _, mode := range []Mode{ReadOnly, ReadWrite} {
		_, err := Open(ctx, zarr.NewMemory(), WithMode(mode))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("mode %s: expected ErrNotFound, got: %v", mode, err)
		}
	}
}

func TestOpen_CreateExclusiveNeverModifiesExisting(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemory()
	pos := createFOV(t, ctx, store, "GFP")
	writeTestImage(t, ctx, pos, 1)

	before, err := store.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = Open(ctx, store, WithMode(CreateExclusive), WithLayout(LayoutFOV), WithChannelNames("GFP"))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got: %v", err)
	}

	after, err := store.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != len(after) {
		t.Errorf("store modified by failed exclusive create: %d keys before, %d after", len(before), len(after))
	}
}

func TestOpen_CreateOverwriteDestroys(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemory()
	pos := createFOV(t, ctx, store, "GFP")
	writeTestImage(t, ctx, pos, 1)

	fresh, err := OpenPosition(ctx, store, WithMode(CreateOverwrite), WithChannelNames("DAPI"))
	if err != nil {
		t.Fatal(err)
	}
	images, err := fresh.Images(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 0 {
		t.Errorf("overwritten store kept images: %v", images)
	}
}

func TestOpen_AppendCreateResolves(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemory()

	// absent store: resolves to exclusive create
	pos, err := OpenPosition(ctx, store, WithMode(AppendCreate), WithChannelNames("GFP"))
	if err != nil {
		t.Fatal(err)
	}
	writeTestImage(t, ctx, pos, 1)

	// existing store: resolves to read-write, layout inferred
	node, err := Open(ctx, store, WithMode(AppendCreate), WithChannelNames("GFP"))
	if err != nil {
		t.Fatal(err)
	}
	if node.Kind() != KindPosition {
		t.Errorf("Kind = %s, want position", node.Kind())
	}
}

func TestOpen_LayoutAuto(t *testing.T) {
	ctx := context.Background()

	fovStore := zarr.NewMemory()
	writeTestImage(t, ctx, createFOV(t, ctx, fovStore, "GFP"), 1)

	hcsStore := zarr.NewMemory()
	plate, err := OpenPlate(ctx, hcsStore, WithMode(CreateExclusive), WithChannelNames("GFP"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := plate.CreateWell(ctx, "A", "1"); err != nil {
		t.Fatal(err)
	}

	node, err := Open(ctx, fovStore)
	if err != nil {
		t.Fatal(err)
	}
	if node.Kind() != KindPosition {
		t.Errorf("fov store resolved to %s", node.Kind())
	}

	node, err = Open(ctx, hcsStore)
	if err != nil {
		t.Fatal(err)
	}
	if node.Kind() != KindPlate {
		t.Errorf("hcs store resolved to %s", node.Kind())
	}
}

func TestOpen_LayoutErrors(t *testing.T) {
	ctx := context.Background()

	// existing store with neither plate nor multiscales metadata
	bare := zarr.NewMemory()
	if _, err := zarr.CreateRoot(ctx, bare); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(ctx, bare); !errors.Is(err, ErrAmbiguousLayout) {
		t.Errorf("expected ErrAmbiguousLayout, got: %v", err)
	}

	// explicit layout contradicting the stored one
	fovStore := zarr.NewMemory()
	writeTestImage(t, ctx, createFOV(t, ctx, fovStore, "GFP"), 1)
	if _, err := Open(ctx, fovStore, WithLayout(LayoutHCS)); !errors.Is(err, ErrLayoutMismatch) {
		t.Errorf("expected ErrLayoutMismatch, got: %v", err)
	}

	// creating a new store requires an explicit layout
	_, err := Open(ctx, zarr.NewMemory(), WithMode(CreateExclusive), WithChannelNames("GFP"))
	if !errors.Is(err, ErrAmbiguousLayout) {
		t.Errorf("expected ErrAmbiguousLayout for auto-layout create, got: %v", err)
	}
}

func TestOpen_CreateRequiresChannelNames(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, zarr.NewMemory(), WithMode(CreateExclusive), WithLayout(LayoutFOV))
	if err == nil {
		t.Error("expected error for create without channel names")
	}
}

func TestOpen_ReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemory()
	writeTestImage(t, ctx, createFOV(t, ctx, store, "GFP"), 1)

	pos, err := OpenPosition(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	_, err = pos.CreateImage(ctx, "1", make([]byte, 4), []int{1, 1, 1, 2, 2}, zarr.Uint8)
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got: %v", err)
	}

	// reads still work
	images, err := pos.Images(ctx)
	if err != nil || len(images) != 1 {
		t.Errorf("Images = %v, %v; want one image", images, err)
	}
	arr, err := pos.Image(ctx, "0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := arr.Read(ctx); err != nil {
		t.Errorf("read-only pixel read failed: %v", err)
	}
}
