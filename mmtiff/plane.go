package mmtiff

import (
	"fmt"
	"io"

	"golang.org/x/exp/mmap"

	"github.com/openmicrodata/ngff/zarr"
)

// Plane is a read-only view of one 2D pixel plane inside a container file,
// backed by a memory mapping. No pixel data is copied until a Read call;
// the view stays valid until Close releases the mapping.
type Plane struct {
	reader   *mmap.ReaderAt
	closer   io.Closer // nil when the mapping is shared
	offset   int64
	height   int
	width    int
	itemSize int
}

// AcquirePlane maps the entry's container file and returns a view of the
// plane at the recorded offset. Fails when the file is missing or
// truncated below the plane's extent. The caller owns the view and must
// Close it.
func AcquirePlane(entry IndexEntry, height, width int, dtype zarr.Dtype) (*Plane, error) {
	reader, err := mmap.Open(entry.File)
	if err != nil {
		return nil, fmt.Errorf("mmtiff: mapping %s: %w", entry.File, err)
	}
	plane, err := newPlane(reader, reader, entry, height, width, dtype)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	return plane, nil
}

func newPlane(reader *mmap.ReaderAt, closer io.Closer, entry IndexEntry, height, width int, dtype zarr.Dtype) (*Plane, error) {
	itemSize := dtype.ItemSize()
	end := entry.Offset + int64(height*width*itemSize)
	if end > int64(reader.Len()) {
		return nil, fmt.Errorf("mmtiff: %s truncated: plane %s ends at %d, file has %d bytes: %w",
			entry.File, entry.Coord, end, reader.Len(), io.ErrUnexpectedEOF)
	}
	return &Plane{
		reader:   reader,
		closer:   closer,
		offset:   entry.Offset,
		height:   height,
		width:    width,
		itemSize: itemSize,
	}, nil
}

// Len returns the plane's byte length.
func (p *Plane) Len() int { return p.height * p.width * p.itemSize }

// ReadInto copies the whole plane into dst, which must be exactly Len
// bytes.
func (p *Plane) ReadInto(dst []byte) error {
	if len(dst) != p.Len() {
		return fmt.Errorf("mmtiff: plane buffer is %d bytes, want %d", len(dst), p.Len())
	}
	_, err := p.reader.ReadAt(dst, p.offset)
	return err
}

// ReadRow copies one image row into dst, which must be exactly
// width*itemsize bytes.
func (p *Plane) ReadRow(y int, dst []byte) error {
	rowLen := p.width * p.itemSize
	if y < 0 || y >= p.height {
		return fmt.Errorf("mmtiff: row %d out of range [0,%d)", y, p.height)
	}
	if len(dst) != rowLen {
		return fmt.Errorf("mmtiff: row buffer is %d bytes, want %d", len(dst), rowLen)
	}
	_, err := p.reader.ReadAt(dst, p.offset+int64(y*rowLen))
	return err
}

// Close releases the mapping when the view owns it.
func (p *Plane) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
