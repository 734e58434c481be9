package mmtiff

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/mmap"

	"github.com/openmicrodata/ngff/zarr"
)

// Assembler materializes one position's planes into a dense (T, C, Z, H, W)
// buffer sized from that position's own ragged extent.
type Assembler struct {
	index       *Index
	fillMissing bool
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithFillMissing makes assembly tolerate coordinate gaps: absent planes
// stay zero-filled instead of failing the whole assembly. Off by default;
// partially-acquired data must be opted into, never silently fabricated.
func WithFillMissing() AssemblerOption {
	return func(a *Assembler) { a.fillMissing = true }
}

// NewAssembler returns an Assembler over a built index.
func NewAssembler(index *Index, opts ...AssemblerOption) *Assembler {
	a := &Assembler{index: index}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PositionStack is one position's dense pixel buffer with its extent.
type PositionStack struct {
	Position int
	Extent   Extent
	Data     []byte
}

// Shape returns the stack's (T, C, Z, H, W) shape.
func (s *PositionStack) Shape() []int {
	return []int{s.Extent.Times, s.Extent.Channels, s.Extent.Slices, s.Extent.Height, s.Extent.Width}
}

// Dtype returns the pixel element type.
func (s *PositionStack) Dtype() zarr.Dtype { return s.Extent.Dtype }

// Plane returns the raw bytes of the (t, c, z) plane as a subslice of the
// stack buffer.
func (s *PositionStack) Plane(t, c, z int) []byte {
	planeLen := s.Extent.PlaneBytes()
	off := ((t*s.Extent.Channels+c)*s.Extent.Slices + z) * planeLen
	return s.Data[off : off+planeLen]
}

// Assemble fills a dense buffer for one position, reading each (t, c, z)
// plane from its indexed container offset. Container mappings are opened
// once per file and shared across planes. A missing coordinate fails the
// whole assembly with ErrCoordinateNotFound unless WithFillMissing was set.
func (a *Assembler) Assemble(ctx context.Context, position int) (*PositionStack, error) {
	ext, err := a.index.PositionExtent(position)
	if err != nil {
		return nil, err
	}
	stack := &PositionStack{
		Position: position,
		Extent:   ext,
		Data:     make([]byte, ext.Times*ext.Channels*ext.Slices*ext.PlaneBytes()),
	}

	readers := make(map[string]*mmap.ReaderAt)
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()

	for t := 0; t < ext.Times; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for c := 0; c < ext.Channels; c++ {
			for z := 0; z < ext.Slices; z++ {
				coord := Coordinate{Position: position, Time: t, Channel: c, Slice: z}
				entry, err := a.index.Lookup(coord)
				if errors.Is(err, ErrCoordinateNotFound) {
					if a.fillMissing {
						continue
					}
					return nil, fmt.Errorf("mmtiff: assembling position %d: %w", position, err)
				}
				if err != nil {
					return nil, err
				}

				reader, ok := readers[entry.File]
				if !ok {
					reader, err = mmap.Open(entry.File)
					if err != nil {
						return nil, fmt.Errorf("mmtiff: mapping %s: %w", entry.File, err)
					}
					readers[entry.File] = reader
				}
				plane, err := newPlane(reader, nil, entry, ext.Height, ext.Width, ext.Dtype)
				if err != nil {
					return nil, err
				}
				if err := plane.ReadInto(stack.Plane(t, c, z)); err != nil {
					return nil, fmt.Errorf("mmtiff: reading plane %s: %w", coord, err)
				}
			}
		}
	}
	return stack, nil
}
