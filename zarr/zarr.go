// Package zarr implements a minimal Zarr v2 hierarchical store: groups,
// JSON attribute documents, and chunked N-dimensional arrays over a
// pluggable object store.
//
// The package covers the persistence structure needed by OME-NGFF datasets
// (nested named groups, ".zattrs" documents, zstd-compressed chunks with
// "/"-separated chunk keys). It is not a general Zarr implementation: only
// C-order arrays with a zero fill value and a small set of numeric dtypes
// are supported.
package zarr

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Zarr v2 metadata object keys.
const (
	groupMetaKey = ".zgroup"
	arrayMetaKey = ".zarray"
	attrsKey     = ".zattrs"
)

// zarrFormat is the storage specification version written to every
// ".zgroup" and ".zarray" document.
const zarrFormat = 2

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a requested key, group, or array does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists indicates an attempt to create a group or array that is
	// already present without requesting overwrite.
	ErrExists = errors.New("already exists")

	// ErrInvalidKey indicates a key that would escape the storage root.
	ErrInvalidKey = errors.New("invalid key: escapes storage root")
)

// Dtype is a NumPy protocol type string restricted to the pixel types
// produced by scientific cameras: byte order character ("<", ">", "|"),
// basic type character, byte size.
type Dtype string

// Supported dtypes.
const (
	Uint8   Dtype = "|u1"
	Uint16  Dtype = "<u2"
	Int16   Dtype = "<i2"
	Float32 Dtype = "<f4"
	Float64 Dtype = "<f8"
)

var dtypeSizes = map[Dtype]int{
	Uint8:   1,
	Uint16:  2,
	Int16:   2,
	Float32: 4,
	Float64: 8,
}

// ItemSize returns the number of bytes per array element.
func (d Dtype) ItemSize() int {
	return dtypeSizes[d]
}

// Valid reports whether the dtype is one of the supported type strings.
func (d Dtype) Valid() bool {
	_, ok := dtypeSizes[d]
	return ok
}

func (d Dtype) validate() error {
	if !d.Valid() {
		return fmt.Errorf("zarr: unsupported dtype %q", string(d))
	}
	return nil
}
