package zarr

import (
	"bytes"
	"context"
	"io"
)

// putJSON writes v as an indented JSON document. Map keys are sorted by the
// codec, so the same value always produces byte-identical output.
func putJSON(ctx context.Context, store Store, key string, v any) error {
	data, err := jsonCodec.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return store.Put(ctx, key, bytes.NewReader(data))
}

// getJSON reads a JSON document into v. Returns ErrNotFound unchanged so
// callers can branch on a missing document.
func getJSON(ctx context.Context, store Store, key string, v any) error {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return jsonCodec.Unmarshal(data, v)
}
