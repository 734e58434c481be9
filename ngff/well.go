package ngff

import (
	"context"
	"fmt"
)

// Well is the group level containing position groups. Its metadata document
// lists (acquisition, position-path) placements.
type Well struct {
	node
	meta *WellMeta
}

func newWell(ctx context.Context, cfg nodeConfig) (*Well, error) {
	w := &Well{node: newNodeState(cfg)}
	if cfg.parseMeta {
		attrs, err := w.group.Attrs(ctx)
		if err == nil {
			var meta *WellMeta
			meta, err = ParseWellMeta(attrs)
			if err == nil {
				w.meta = meta
				return w, nil
			}
		}
		w.warnInvalidMeta(KindWell, err)
	}
	return w, nil
}

// Kind returns KindWell.
func (w *Well) Kind() NodeKind { return KindWell }

// Metadata returns the current in-memory document, or nil for a well with
// no positions yet.
func (w *Well) Metadata() *WellMeta { return w.meta }

// Positions returns the sorted names of all position groups in the well.
func (w *Well) Positions(ctx context.Context) ([]string, error) {
	return w.group.GroupKeys(ctx)
}

// Position opens a position group by name.
func (w *Well) Position(ctx context.Context, name string) (*Position, error) {
	group, err := w.group.Group(ctx, name)
	if err != nil {
		return nil, err
	}
	return newPosition(ctx, w.childConfig(group, true))
}

// CreatePosition creates a new position group in the well and records its
// image placement. The position's own multiscale metadata is deferred until
// its first image array is written: an empty position group is legal.
func (w *Well) CreatePosition(ctx context.Context, name string, acquisition int) (*Position, error) {
	group, err := w.group.CreateGroup(ctx, name, w.overwrite)
	if err != nil {
		return nil, err
	}
	ref := ImageRef{Acquisition: acquisition, Path: group.Name()}
	if w.meta == nil {
		w.meta = &WellMeta{Images: []ImageRef{ref}}
	} else {
		w.meta.Images = append(w.meta.Images, ref)
	}
	if err := w.DumpMeta(ctx); err != nil {
		return nil, err
	}
	return newPosition(ctx, w.childConfig(group, false))
}

// DumpMeta flushes the well document to the group attributes.
func (w *Well) DumpMeta(ctx context.Context) error {
	if w.meta == nil {
		return fmt.Errorf("ngff: well %s has no metadata to dump", w.group.Path())
	}
	return w.group.UpdateAttrs(ctx, map[string]any{wellAttrKey: w.meta})
}
