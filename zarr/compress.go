package zarr

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// chunkCodec compresses and decompresses whole chunks.
type chunkCodec interface {
	compress(src []byte) ([]byte, error)
	decompress(src []byte, decodedLen int) ([]byte, error)
}

// newChunkCodec resolves a ".zarray" compressor document. A nil compressor
// means raw chunks.
func newChunkCodec(meta *CompressorMeta) (chunkCodec, error) {
	if meta == nil {
		return rawCodec{}, nil
	}
	switch meta.ID {
	case "zstd":
		return newZstdCodec(meta.Level)
	default:
		return nil, fmt.Errorf("zarr: unsupported compressor %q", meta.ID)
	}
}

// ZstdCompressor returns the compressor document for zstd at the given
// level. Level 1 matches the write defaults used for microscopy data,
// where throughput matters more than ratio.
func ZstdCompressor(level int) *CompressorMeta {
	return &CompressorMeta{ID: "zstd", Level: level}
}

// -----------------------------------------------------------------------------
// Zstd codec
// -----------------------------------------------------------------------------

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec(level int) (*zstdCodec, error) {
	if level <= 0 {
		level = 1
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

func (c *zstdCodec) decompress(src []byte, decodedLen int) ([]byte, error) {
	return c.dec.DecodeAll(src, make([]byte, 0, decodedLen))
}

// -----------------------------------------------------------------------------
// Raw codec
// -----------------------------------------------------------------------------

type rawCodec struct{}

func (rawCodec) compress(src []byte) ([]byte, error) { return src, nil }

func (rawCodec) decompress(src []byte, _ int) ([]byte, error) { return src, nil }
