// Package mmtiff indexes legacy Micro-Manager multi-page OME-TIFF
// acquisitions for lazy, per-plane random access. A coordinate index maps
// each (position, time, channel, slice) tuple to the byte offset of its 2D
// pixel plane inside a set of container files, so a single plane can be
// read without loading or decoding whole files.
//
// The index is built once per dataset by a PageParser walking each
// container's page directory. Planes are then served through memory-mapped
// read-only views, and whole per-position stacks are assembled on demand.
// The index can be persisted to a bolt cache or exported as a Parquet
// table.
package mmtiff

import (
	"errors"
	"fmt"

	"github.com/openmicrodata/ngff/zarr"
)

// Error sentinel values for common conditions.
var (
	// ErrCoordinateNotFound indicates a lookup for a coordinate absent
	// from every container. Gaps are common in partially-acquired
	// datasets; callers decide whether to fill or propagate.
	ErrCoordinateNotFound = errors.New("coordinate not found")

	// ErrMalformedContainer indicates a container file whose page
	// directory or offset tags cannot be decoded.
	ErrMalformedContainer = errors.New("malformed container")
)

// Coordinate identifies one 2D image plane in an acquisition. All
// components are non-negative.
type Coordinate struct {
	Position int
	Time     int
	Channel  int
	Slice    int
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(p=%d t=%d c=%d z=%d)", c.Position, c.Time, c.Channel, c.Slice)
}

// IndexEntry locates one plane: the container file holding it, the page
// number within that file, and the byte offset of the plane's pixel data.
// Entries are immutable once the index is built.
type IndexEntry struct {
	Coord  Coordinate
	File   string
	Page   int
	Offset int64
}

// PageRecord is one page of a container's directory as decoded by a
// PageParser: its acquisition coordinate and pixel-data byte offset.
type PageRecord struct {
	Coord  Coordinate
	Offset int64
}

// ContainerInfo is the decoded page directory of one container file.
// Height, Width, and Dtype describe every page; mixed frame geometry
// within one file is rejected by the parser.
type ContainerInfo struct {
	Pages  []PageRecord
	Height int
	Width  int
	Dtype  zarr.Dtype
}

// PageParser decodes a container file's internal page directory.
type PageParser interface {
	// ParsePages returns the per-page coordinates and byte offsets of
	// one container. Fails with ErrMalformedContainer when the directory
	// cannot be decoded.
	ParsePages(path string) (*ContainerInfo, error)
}

// Extent is the dense shape spanned by a set of coordinates: the maximum
// observed value plus one along each axis, plus the constant frame
// geometry. It is derived from the index, never stored in containers.
type Extent struct {
	Positions int
	Times     int
	Channels  int
	Slices    int
	Height    int
	Width     int
	Dtype     zarr.Dtype
}

// PlaneBytes returns the byte length of one 2D plane.
func (e Extent) PlaneBytes() int {
	return e.Height * e.Width * e.Dtype.ItemSize()
}
