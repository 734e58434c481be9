package mmtiff

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Index is the coordinate index over a set of container files. It owns its
// entries; at most one entry exists per coordinate.
type Index struct {
	entries map[Coordinate]IndexEntry
	extent  Extent
	logger  *slog.Logger
}

// IndexOption configures index construction.
type IndexOption func(*Index)

// WithLogger sets the logger used for duplicate-coordinate warnings. The
// default is slog.Default.
func WithLogger(logger *slog.Logger) IndexOption {
	return func(idx *Index) { idx.logger = logger }
}

func newIndex(opts ...IndexOption) *Index {
	idx := &Index{
		entries: make(map[Coordinate]IndexEntry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// BuildIndex decodes the page directory of every container file and
// accumulates the coordinate index. Files are processed in sorted order so
// duplicate resolution is deterministic: a coordinate seen twice is a
// data-integrity defect, logged as a warning, and the later file wins.
//
// Frame geometry (height, width, dtype) must be constant across all
// containers; a mismatch fails with ErrMalformedContainer.
func BuildIndex(ctx context.Context, parser PageParser, files []string, opts ...IndexOption) (*Index, error) {
	idx := newIndex(opts...)

	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	for _, path := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := parser.ParsePages(path)
		if err != nil {
			return nil, fmt.Errorf("mmtiff: indexing %s: %w", path, err)
		}
		if err := idx.mergeContainer(path, info); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *Index) mergeContainer(path string, info *ContainerInfo) error {
	if idx.extent.Height == 0 && idx.extent.Width == 0 {
		idx.extent.Height = info.Height
		idx.extent.Width = info.Width
		idx.extent.Dtype = info.Dtype
	} else if info.Height != idx.extent.Height || info.Width != idx.extent.Width || info.Dtype != idx.extent.Dtype {
		return fmt.Errorf("mmtiff: %s frame geometry %dx%d %s differs from %dx%d %s: %w",
			path, info.Height, info.Width, info.Dtype,
			idx.extent.Height, idx.extent.Width, idx.extent.Dtype, ErrMalformedContainer)
	}

	for page, rec := range info.Pages {
		if prev, dup := idx.entries[rec.Coord]; dup {
			idx.logger.Warn("duplicate coordinate, keeping later entry",
				"coord", rec.Coord.String(), "kept", path, "dropped", prev.File)
		}
		idx.insert(IndexEntry{
			Coord:  rec.Coord,
			File:   path,
			Page:   page,
			Offset: rec.Offset,
		})
	}
	return nil
}

func (idx *Index) insert(entry IndexEntry) {
	idx.entries[entry.Coord] = entry
	c := entry.Coord
	if c.Position+1 > idx.extent.Positions {
		idx.extent.Positions = c.Position + 1
	}
	if c.Time+1 > idx.extent.Times {
		idx.extent.Times = c.Time + 1
	}
	if c.Channel+1 > idx.extent.Channels {
		idx.extent.Channels = c.Channel + 1
	}
	if c.Slice+1 > idx.extent.Slices {
		idx.extent.Slices = c.Slice + 1
	}
}

// Lookup returns the entry for a coordinate. A coordinate absent from
// every container fails with ErrCoordinateNotFound; this is the primary
// read-path error and callers must handle it rather than expect the index
// to fabricate data.
func (idx *Index) Lookup(coord Coordinate) (IndexEntry, error) {
	entry, ok := idx.entries[coord]
	if !ok {
		return IndexEntry{}, fmt.Errorf("mmtiff: %s: %w", coord, ErrCoordinateNotFound)
	}
	return entry, nil
}

// Len returns the number of indexed planes.
func (idx *Index) Len() int { return len(idx.entries) }

// Extent returns the global dense extent over every position.
func (idx *Index) Extent() Extent { return idx.extent }

// PositionExtent returns the extent spanned by one position's own
// coordinates. Positions may be ragged: each reports only the timepoints,
// channels, and slices it actually holds, never the global maxima. A
// position with no entries fails with ErrCoordinateNotFound.
func (idx *Index) PositionExtent(position int) (Extent, error) {
	ext := Extent{
		Positions: 1,
		Height:    idx.extent.Height,
		Width:     idx.extent.Width,
		Dtype:     idx.extent.Dtype,
	}
	found := false
	for coord := range idx.entries {
		if coord.Position != position {
			continue
		}
		found = true
		if coord.Time+1 > ext.Times {
			ext.Times = coord.Time + 1
		}
		if coord.Channel+1 > ext.Channels {
			ext.Channels = coord.Channel + 1
		}
		if coord.Slice+1 > ext.Slices {
			ext.Slices = coord.Slice + 1
		}
	}
	if !found {
		return Extent{}, fmt.Errorf("mmtiff: position %d: %w", position, ErrCoordinateNotFound)
	}
	return ext, nil
}

// Entries returns every index entry sorted by coordinate.
func (idx *Index) Entries() []IndexEntry {
	entries := make([]IndexEntry, 0, len(idx.entries))
	for _, entry := range idx.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Coord, entries[j].Coord
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Slice < b.Slice
	})
	return entries
}
