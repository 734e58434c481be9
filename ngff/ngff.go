// Package ngff maintains OME-NGFF (OME-Zarr) dataset hierarchies: a nested
// tree of plate, row, well, and position groups whose structure is kept
// consistent with typed JSON metadata documents across create, open, and
// append lifecycles.
//
// Two layouts exist. A single-position ("fov") dataset is one position
// group holding multiscale image arrays. A high-content-screening ("hcs")
// dataset nests positions under plate/row/well groups with plate-level
// well-placement metadata. Open resolves persistence mode and layout
// against an existing or new store and returns the root node.
//
// Every structural mutation (creating a well, a position, an image array,
// appending a channel) updates the in-memory metadata document and flushes
// it to the group's attributes immediately, so readers never observe a
// group without its describing document.
package ngff

import (
	"errors"
	"fmt"
)

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a missing store, group, or image.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an exclusive-create collision.
	ErrAlreadyExists = errors.New("already exists")

	// ErrLayoutMismatch indicates a requested layout that contradicts the
	// metadata actually present in the store.
	ErrLayoutMismatch = errors.New("layout does not match existing metadata")

	// ErrAmbiguousLayout indicates an existing store whose root metadata
	// carries neither a plate nor a multiscales document.
	ErrAmbiguousLayout = errors.New("cannot infer layout from metadata")

	// ErrAxisInference indicates a channel append whose shape inference
	// cannot proceed for an existing image array.
	ErrAxisInference = errors.New("cannot infer channel axis")

	// ErrInvalidMetadata indicates a metadata document that fails
	// structural validation.
	ErrInvalidMetadata = errors.New("invalid metadata")

	// ErrReadOnly indicates a mutation attempted through a dataset opened
	// in read-only mode.
	ErrReadOnly = errors.New("dataset is read-only")
)

// Version is the OME-NGFF specification version written to new metadata
// documents. Only 0.4 semantics are implemented.
const Version = "0.4"

// Mode is the persistence mode for opening a dataset store.
type Mode int

// Persistence modes.
const (
	// ReadOnly opens an existing store for reading; the store must exist.
	ReadOnly Mode = iota

	// ReadWrite opens an existing store for reading and writing; the
	// store must exist.
	ReadWrite

	// AppendCreate opens read-write, creating the store when absent.
	AppendCreate

	// CreateOverwrite creates a store, destroying any existing content
	// after logging a warning.
	CreateOverwrite

	// CreateExclusive creates a store, failing with ErrAlreadyExists when
	// the target already holds data.
	CreateExclusive
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	case AppendCreate:
		return "append-create"
	case CreateOverwrite:
		return "create-overwrite"
	case CreateExclusive:
		return "create-exclusive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// creates reports whether the resolved mode builds a new store rather than
// parsing an existing one.
func (m Mode) creates() bool {
	return m == CreateOverwrite || m == CreateExclusive
}

// Layout selects the dataset topology.
type Layout int

// Dataset layouts.
const (
	// LayoutAuto infers the layout from existing root metadata. Only legal
	// when opening an existing store.
	LayoutAuto Layout = iota

	// LayoutFOV is a single-position dataset: the root group holds the
	// multiscale image arrays directly.
	LayoutFOV

	// LayoutHCS is the high-content-screening hierarchy:
	// plate -> row -> well -> position.
	LayoutHCS
)

func (l Layout) String() string {
	switch l {
	case LayoutAuto:
		return "auto"
	case LayoutFOV:
		return "fov"
	case LayoutHCS:
		return "hcs"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// NodeKind identifies a level of the HCS hierarchy.
type NodeKind int

// Hierarchy levels, coarsest first.
const (
	KindPlate NodeKind = iota
	KindRow
	KindWell
	KindPosition
)

func (k NodeKind) String() string {
	switch k {
	case KindPlate:
		return "plate"
	case KindRow:
		return "row"
	case KindWell:
		return "well"
	case KindPosition:
		return "position"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// childKind maps each hierarchy level to the level its child groups hold.
// Resolved statically instead of through dynamic class attributes.
var childKind = map[NodeKind]NodeKind{
	KindPlate: KindRow,
	KindRow:   KindWell,
	KindWell:  KindPosition,
}
