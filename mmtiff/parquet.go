package mmtiff

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/openmicrodata/ngff/zarr"
)

// Parquet interchange of the index table. One row per indexed plane, with
// the frame geometry denormalized into every row so an exported file is
// self-contained.

// indexRow is the Parquet record schema for one index entry.
type indexRow struct {
	Position int32  `parquet:"position"`
	Time     int32  `parquet:"time"`
	Channel  int32  `parquet:"channel"`
	Slice    int32  `parquet:"slice"`
	File     string `parquet:"file"`
	Page     int32  `parquet:"page"`
	Offset   int64  `parquet:"offset"`
	Height   int32  `parquet:"height"`
	Width    int32  `parquet:"width"`
	Dtype    string `parquet:"dtype"`
}

// ExportParquet writes the whole index as a Parquet table, rows sorted by
// coordinate.
func ExportParquet(w io.Writer, idx *Index) error {
	ext := idx.Extent()
	rows := make([]indexRow, 0, idx.Len())
	for _, entry := range idx.Entries() {
		rows = append(rows, indexRow{
			Position: int32(entry.Coord.Position),
			Time:     int32(entry.Coord.Time),
			Channel:  int32(entry.Coord.Channel),
			Slice:    int32(entry.Coord.Slice),
			File:     entry.File,
			Page:     int32(entry.Page),
			Offset:   entry.Offset,
			Height:   int32(ext.Height),
			Width:    int32(ext.Width),
			Dtype:    string(ext.Dtype),
		})
	}

	writer := parquet.NewGenericWriter[indexRow](w, parquet.Compression(&parquet.Snappy))
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("mmtiff: writing parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("mmtiff: closing parquet writer: %w", err)
	}
	return nil
}

// ImportParquet rebuilds an index from a Parquet table written by
// ExportParquet.
func ImportParquet(r io.Reader, opts ...IndexOption) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("mmtiff: reading parquet table: %w", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("mmtiff: opening parquet table: %w", err)
	}

	reader := parquet.NewGenericReader[indexRow](file)
	defer func() { _ = reader.Close() }()

	idx := newIndex(opts...)
	rows := make([]indexRow, 128)
	for {
		n, err := reader.Read(rows)
		for i := 0; i < n; i++ {
			row := rows[i]
			if idx.Len() == 0 {
				idx.extent.Height = int(row.Height)
				idx.extent.Width = int(row.Width)
				idx.extent.Dtype = zarr.Dtype(row.Dtype)
			}
			idx.insert(IndexEntry{
				Coord: Coordinate{
					Position: int(row.Position),
					Time:     int(row.Time),
					Channel:  int(row.Channel),
					Slice:    int(row.Slice),
				},
				File:   row.File,
				Page:   int(row.Page),
				Offset: row.Offset,
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("mmtiff: reading parquet rows: %w", err)
		}
	}
	return idx, nil
}
