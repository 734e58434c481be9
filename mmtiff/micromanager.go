package mmtiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/openmicrodata/ngff/zarr"
)

// Micro-Manager OME-TIFF layout constants. Acquisition software writes a
// private index map after the standard TIFF header so readers can locate
// every page without walking the IFD chain.
const (
	tiffMagic = 42

	indexMapOffsetHeader = 54773648
	indexMapHeader       = 3453623

	// bytes per index-map entry: channel, slice, frame, position, ifdOffset
	indexMapEntrySize = 20
)

// TIFF tag and field-type codes used by the page directory walk.
const (
	tagImageWidth    = 256
	tagImageLength   = 257
	tagBitsPerSample = 258
	tagStripOffsets  = 273
	tagSampleFormat  = 339

	fieldShort = 3
	fieldLong  = 4

	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// MicroManagerParser decodes Micro-Manager OME-TIFF containers: the
// private index map gives each page's acquisition coordinate and IFD
// offset, and the IFD's StripOffsets tag gives the pixel-data offset.
//
// Only little-endian classic TIFF is supported, which is what the
// acquisition software writes.
type MicroManagerParser struct{}

var _ PageParser = MicroManagerParser{}

// ParsePages implements PageParser.
func (MicroManagerParser) ParsePages(path string) (*ContainerInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, 16)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("reading header: %w", ErrMalformedContainer)
	}
	if header[0] != 'I' || header[1] != 'I' || binary.LittleEndian.Uint16(header[2:4]) != tiffMagic {
		return nil, fmt.Errorf("not a little-endian TIFF: %w", ErrMalformedContainer)
	}
	if binary.LittleEndian.Uint32(header[8:12]) != indexMapOffsetHeader {
		return nil, fmt.Errorf("index map offset header absent: %w", ErrMalformedContainer)
	}
	indexOffset := int64(binary.LittleEndian.Uint32(header[12:16]))

	entries, err := readIndexMap(f, indexOffset)
	if err != nil {
		return nil, err
	}

	info := &ContainerInfo{Pages: make([]PageRecord, 0, len(entries))}
	for i, e := range entries {
		page, err := readPageDirectory(f, int64(e.ifdOffset))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if i == 0 {
			info.Height = page.height
			info.Width = page.width
			info.Dtype = page.dtype
		} else if page.height != info.Height || page.width != info.Width || page.dtype != info.Dtype {
			return nil, fmt.Errorf("page %d geometry differs within one container: %w", i, ErrMalformedContainer)
		}
		info.Pages = append(info.Pages, PageRecord{
			Coord: Coordinate{
				Position: int(e.position),
				Time:     int(e.frame),
				Channel:  int(e.channel),
				Slice:    int(e.slice),
			},
			Offset: page.dataOffset,
		})
	}
	return info, nil
}

type indexMapEntry struct {
	channel, slice, frame, position, ifdOffset uint32
}

func readIndexMap(r io.ReaderAt, offset int64) ([]indexMapEntry, error) {
	head := make([]byte, 8)
	if _, err := r.ReadAt(head, offset); err != nil {
		return nil, fmt.Errorf("reading index map: %w", ErrMalformedContainer)
	}
	if binary.LittleEndian.Uint32(head[0:4]) != indexMapHeader {
		return nil, fmt.Errorf("index map header absent: %w", ErrMalformedContainer)
	}
	count := int(binary.LittleEndian.Uint32(head[4:8]))
	if count == 0 {
		return nil, fmt.Errorf("empty index map: %w", ErrMalformedContainer)
	}

	buf := make([]byte, count*indexMapEntrySize)
	if _, err := r.ReadAt(buf, offset+8); err != nil {
		return nil, fmt.Errorf("reading %d index map entries: %w", count, ErrMalformedContainer)
	}
	entries := make([]indexMapEntry, count)
	for i := range entries {
		rec := buf[i*indexMapEntrySize:]
		entries[i] = indexMapEntry{
			channel:   binary.LittleEndian.Uint32(rec[0:4]),
			slice:     binary.LittleEndian.Uint32(rec[4:8]),
			frame:     binary.LittleEndian.Uint32(rec[8:12]),
			position:  binary.LittleEndian.Uint32(rec[12:16]),
			ifdOffset: binary.LittleEndian.Uint32(rec[16:20]),
		}
	}
	return entries, nil
}

type pageDirectory struct {
	width, height int
	dtype         zarr.Dtype
	dataOffset    int64
}

// readPageDirectory walks one IFD and extracts the frame geometry and the
// first strip offset, which is where the page's pixel data begins.
func readPageDirectory(r io.ReaderAt, offset int64) (*pageDirectory, error) {
	var countBuf [2]byte
	if _, err := r.ReadAt(countBuf[:], offset); err != nil {
		return nil, fmt.Errorf("reading IFD: %w", ErrMalformedContainer)
	}
	numEntries := int(binary.LittleEndian.Uint16(countBuf[:]))
	if numEntries == 0 {
		return nil, fmt.Errorf("empty IFD: %w", ErrMalformedContainer)
	}

	buf := make([]byte, numEntries*12)
	if _, err := r.ReadAt(buf, offset+2); err != nil {
		return nil, fmt.Errorf("reading %d IFD entries: %w", numEntries, ErrMalformedContainer)
	}

	var (
		width, height, bits int
		sampleFormat        = 1 // unsigned unless declared otherwise
		stripOffset         int64
		haveStrips          bool
	)
	for i := 0; i < numEntries; i++ {
		field := buf[i*12:]
		tag := binary.LittleEndian.Uint16(field[0:2])
		fieldType := binary.LittleEndian.Uint16(field[2:4])
		count := binary.LittleEndian.Uint32(field[4:8])
		value := binary.LittleEndian.Uint32(field[8:12])

		switch tag {
		case tagImageWidth:
			width = int(inlineValue(fieldType, value))
		case tagImageLength:
			height = int(inlineValue(fieldType, value))
		case tagBitsPerSample:
			bits = int(inlineValue(fieldType, value))
		case tagSampleFormat:
			sampleFormat = int(inlineValue(fieldType, value))
		case tagStripOffsets:
			off, err := firstStripOffset(r, fieldType, count, value)
			if err != nil {
				return nil, err
			}
			stripOffset = off
			haveStrips = true
		}
	}
	if !haveStrips {
		return nil, fmt.Errorf("StripOffsets tag absent: %w", ErrMalformedContainer)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame geometry %dx%d: %w", height, width, ErrMalformedContainer)
	}
	dtype, err := dtypeFor(bits, sampleFormat)
	if err != nil {
		return nil, err
	}
	return &pageDirectory{width: width, height: height, dtype: dtype, dataOffset: stripOffset}, nil
}

// inlineValue interprets the value word of an IFD field that fits inline.
// SHORT values occupy the low two bytes of the little-endian word.
func inlineValue(fieldType uint16, value uint32) uint32 {
	if fieldType == fieldShort {
		return value & 0xffff
	}
	return value
}

// firstStripOffset resolves the StripOffsets tag to the offset of the first
// strip. A single-strip page stores the offset inline; multi-strip pages
// point at an offset array.
func firstStripOffset(r io.ReaderAt, fieldType uint16, count, value uint32) (int64, error) {
	if count == 0 {
		return 0, fmt.Errorf("StripOffsets tag has no strips: %w", ErrMalformedContainer)
	}
	if count == 1 {
		return int64(inlineValue(fieldType, value)), nil
	}
	switch fieldType {
	case fieldLong:
		var buf [4]byte
		if _, err := r.ReadAt(buf[:], int64(value)); err != nil {
			return 0, fmt.Errorf("reading strip offset array: %w", ErrMalformedContainer)
		}
		return int64(binary.LittleEndian.Uint32(buf[:])), nil
	case fieldShort:
		var buf [2]byte
		if _, err := r.ReadAt(buf[:], int64(value)); err != nil {
			return 0, fmt.Errorf("reading strip offset array: %w", ErrMalformedContainer)
		}
		return int64(binary.LittleEndian.Uint16(buf[:])), nil
	default:
		return 0, fmt.Errorf("StripOffsets field type %d: %w", fieldType, ErrMalformedContainer)
	}
}

// dtypeFor maps TIFF bit depth and sample format onto an array dtype.
func dtypeFor(bits, sampleFormat int) (zarr.Dtype, error) {
	switch {
	case bits == 8:
		return zarr.Uint8, nil
	case bits == 16 && sampleFormat == sampleFormatInt:
		return zarr.Int16, nil
	case bits == 16:
		return zarr.Uint16, nil
	case bits == 32 && sampleFormat == sampleFormatFloat:
		return zarr.Float32, nil
	case bits == 64 && sampleFormat == sampleFormatFloat:
		return zarr.Float64, nil
	default:
		return "", fmt.Errorf("unsupported pixel format: %d bits sample format %d: %w",
			bits, sampleFormat, ErrMalformedContainer)
	}
}
