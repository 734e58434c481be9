package mmtiff

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/openmicrodata/ngff/zarr"
)

// testPage is one synthetic acquisition plane destined for a container.
type testPage struct {
	coord Coordinate
	data  []byte
}

// planeFill produces a deterministic pixel pattern for a coordinate so
// tests can verify that reads land on the right plane.
func planeFill(c Coordinate, n int) []byte {
	data := make([]byte, n)
	seed := c.Position*73 + c.Time*31 + c.Channel*17 + c.Slice*7
	for i := range data {
		data[i] = byte((seed + i) % 251)
	}
	return data
}

func tiffBits(dtype zarr.Dtype) (bits, sampleFormat uint32) {
	switch dtype {
	case zarr.Uint8:
		return 8, 1
	case zarr.Uint16:
		return 16, 1
	case zarr.Int16:
		return 16, sampleFormatInt
	case zarr.Float32:
		return 32, sampleFormatFloat
	case zarr.Float64:
		return 64, sampleFormatFloat
	default:
		panic("unsupported test dtype " + string(dtype))
	}
}

func putIFDField(buf []byte, tag, fieldType uint16, count, value uint32) {
	binary.LittleEndian.PutUint16(buf[0:2], tag)
	binary.LittleEndian.PutUint16(buf[2:4], fieldType)
	binary.LittleEndian.PutUint32(buf[4:8], count)
	binary.LittleEndian.PutUint32(buf[8:12], value)
}

// writeContainer lays out a minimal Micro-Manager OME-TIFF: the 16-byte
// header with the private index-map pointer, then per page pixel data
// followed by its IFD, then the index map at the tail.
func writeContainer(t *testing.T, path string, height, width int, dtype zarr.Dtype, pages []testPage) {
	t.Helper()

	bits, sampleFormat := tiffBits(dtype)
	planeLen := height * width * dtype.ItemSize()
	const ifdLen = 2 + 5*12 + 4

	var (
		body       []byte
		ifdOffsets []uint32
	)
	cursor := uint32(16)
	for _, page := range pages {
		if len(page.data) != planeLen {
			t.Fatalf("page %v: %d data bytes, want %d", page.coord, len(page.data), planeLen)
		}
		pixelOffset := cursor
		body = append(body, page.data...)
		cursor += uint32(planeLen)

		ifd := make([]byte, ifdLen)
		binary.LittleEndian.PutUint16(ifd[0:2], 5)
		putIFDField(ifd[2:], tagImageWidth, fieldLong, 1, uint32(width))
		putIFDField(ifd[14:], tagImageLength, fieldLong, 1, uint32(height))
		putIFDField(ifd[26:], tagBitsPerSample, fieldShort, 1, bits)
		putIFDField(ifd[38:], tagStripOffsets, fieldLong, 1, pixelOffset)
		putIFDField(ifd[50:], tagSampleFormat, fieldShort, 1, sampleFormat)
		body = append(body, ifd...)
		ifdOffsets = append(ifdOffsets, cursor)
		cursor += ifdLen
	}

	indexMapOffset := cursor
	indexMap := make([]byte, 8+len(pages)*indexMapEntrySize)
	binary.LittleEndian.PutUint32(indexMap[0:4], indexMapHeader)
	binary.LittleEndian.PutUint32(indexMap[4:8], uint32(len(pages)))
	for i, page := range pages {
		rec := indexMap[8+i*indexMapEntrySize:]
		binary.LittleEndian.PutUint32(rec[0:4], uint32(page.coord.Channel))
		binary.LittleEndian.PutUint32(rec[4:8], uint32(page.coord.Slice))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(page.coord.Time))
		binary.LittleEndian.PutUint32(rec[12:16], uint32(page.coord.Position))
		binary.LittleEndian.PutUint32(rec[16:20], ifdOffsets[i])
	}

	header := make([]byte, 16)
	header[0], header[1] = 'I', 'I'
	binary.LittleEndian.PutUint16(header[2:4], tiffMagic)
	if len(ifdOffsets) > 0 {
		binary.LittleEndian.PutUint32(header[4:8], ifdOffsets[0])
	}
	binary.LittleEndian.PutUint32(header[8:12], indexMapOffsetHeader)
	binary.LittleEndian.PutUint32(header[12:16], indexMapOffset)

	out := append(header, body...)
	out = append(out, indexMap...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatal(err)
	}
}
