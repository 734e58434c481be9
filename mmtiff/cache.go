package mmtiff

import (
	"encoding/binary"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	bolt "go.etcd.io/bbolt"

	"github.com/openmicrodata/ngff/zarr"
)

// Persistent index cache. Rebuilding the coordinate index of a large
// acquisition means re-walking every container's page directory; the cache
// stores the built index in a bolt file next to the dataset so reopening
// skips the scan.

var (
	entriesBucket = []byte("entries")
	extentBucket  = []byte("extent")

	extentKey = []byte("extent")
)

var cacheJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// cachedEntry is the stored value for one coordinate. The coordinate
// itself is the bucket key.
type cachedEntry struct {
	File   string `json:"file"`
	Page   int    `json:"page"`
	Offset int64  `json:"offset"`
}

type cachedExtent struct {
	Height int        `json:"height"`
	Width  int        `json:"width"`
	Dtype  zarr.Dtype `json:"dtype"`
}

// SaveCache writes the index to a bolt file, replacing any previous cache.
func SaveCache(path string, idx *Index) error {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("mmtiff: opening cache %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, extentBucket} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}
		entries, err := tx.CreateBucket(entriesBucket)
		if err != nil {
			return err
		}
		extent, err := tx.CreateBucket(extentBucket)
		if err != nil {
			return err
		}

		for _, entry := range idx.Entries() {
			encoded, err := cacheJSON.Marshal(cachedEntry{
				File:   entry.File,
				Page:   entry.Page,
				Offset: entry.Offset,
			})
			if err != nil {
				return err
			}
			if err := entries.Put(coordKey(entry.Coord), encoded); err != nil {
				return err
			}
		}

		ext := idx.Extent()
		encoded, err := cacheJSON.Marshal(cachedExtent{
			Height: ext.Height,
			Width:  ext.Width,
			Dtype:  ext.Dtype,
		})
		if err != nil {
			return err
		}
		return extent.Put(extentKey, encoded)
	})
}

// LoadCache rebuilds an index from a bolt cache file written by SaveCache.
func LoadCache(path string, opts ...IndexOption) (*Index, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("mmtiff: opening cache %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	idx := newIndex(opts...)
	err = db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		extent := tx.Bucket(extentBucket)
		if entries == nil || extent == nil {
			return fmt.Errorf("mmtiff: cache %s has no index buckets", path)
		}

		var ext cachedExtent
		if err := cacheJSON.Unmarshal(extent.Get(extentKey), &ext); err != nil {
			return fmt.Errorf("mmtiff: cache extent: %w", err)
		}
		idx.extent.Height = ext.Height
		idx.extent.Width = ext.Width
		idx.extent.Dtype = ext.Dtype

		return entries.ForEach(func(k, v []byte) error {
			coord, err := parseCoordKey(k)
			if err != nil {
				return err
			}
			var cached cachedEntry
			if err := cacheJSON.Unmarshal(v, &cached); err != nil {
				return fmt.Errorf("mmtiff: cache entry %s: %w", coord, err)
			}
			idx.insert(IndexEntry{
				Coord:  coord,
				File:   cached.File,
				Page:   cached.Page,
				Offset: cached.Offset,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// coordKey encodes a coordinate as a 16-byte big-endian key so bolt's
// byte-sorted iteration matches coordinate order.
func coordKey(c Coordinate) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint32(key[0:4], uint32(c.Position))
	binary.BigEndian.PutUint32(key[4:8], uint32(c.Time))
	binary.BigEndian.PutUint32(key[8:12], uint32(c.Channel))
	binary.BigEndian.PutUint32(key[12:16], uint32(c.Slice))
	return key
}

func parseCoordKey(key []byte) (Coordinate, error) {
	if len(key) != 16 {
		return Coordinate{}, fmt.Errorf("mmtiff: cache key is %d bytes, want 16", len(key))
	}
	return Coordinate{
		Position: int(binary.BigEndian.Uint32(key[0:4])),
		Time:     int(binary.BigEndian.Uint32(key[4:8])),
		Channel:  int(binary.BigEndian.Uint32(key[8:12])),
		Slice:    int(binary.BigEndian.Uint32(key[12:16])),
	}, nil
}
